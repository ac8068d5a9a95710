package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/rolesweep/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketGrants        = []byte("grants")
	bucketNotifications = []byte("notifications")
	bucketDelegations   = []byte("delegations")
)

// keySep separates the components of composite keys
const keySep = "\x00"

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "rolesweep.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketGrants,
			bucketNotifications,
			bucketDelegations,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is usable
func (s *BoltStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketGrants) == nil {
			return fmt.Errorf("bucket %s missing", bucketGrants)
		}
		return nil
	})
}

func compositeKey(parts ...string) []byte {
	var buf bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			buf.WriteString(keySep)
		}
		buf.WriteString(p)
	}
	return buf.Bytes()
}

// Grant operations

// PutGrant creates or replaces the grant for (member, role)
func (s *BoltStore) PutGrant(ctx context.Context, grant types.Grant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGrants)
		data, err := json.Marshal(grant)
		if err != nil {
			return err
		}
		return b.Put(compositeKey(grant.MemberID, grant.RoleID), data)
	})
}

func (s *BoltStore) GetGrant(ctx context.Context, memberID, roleID string) (*types.Grant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var grant types.Grant
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGrants)
		data := b.Get(compositeKey(memberID, roleID))
		if data == nil {
			return fmt.Errorf("grant %s/%s: %w", memberID, roleID, ErrNotFound)
		}
		return json.Unmarshal(data, &grant)
	})
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

func (s *BoltStore) ListGrants(ctx context.Context) ([]types.Grant, error) {
	return s.scanGrants(ctx, func(types.Grant) bool { return true })
}

// ListExpired returns grants that expired at or before now and match the filter
func (s *BoltStore) ListExpired(ctx context.Context, now time.Time, filter types.Filter) ([]types.Grant, error) {
	return s.scanGrants(ctx, func(g types.Grant) bool {
		return g.Expired(now) && filter.Matches(g)
	})
}

func (s *BoltStore) scanGrants(ctx context.Context, keep func(types.Grant) bool) ([]types.Grant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var grants []types.Grant
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGrants)
		return b.ForEach(func(k, v []byte) error {
			var grant types.Grant
			if err := json.Unmarshal(v, &grant); err != nil {
				return fmt.Errorf("decode grant %q: %w", k, err)
			}
			if keep(grant) {
				grants = append(grants, grant)
			}
			return nil
		})
	})
	return grants, err
}

// DeleteGrants removes all keys in a single transaction. Missing keys are ignored.
func (s *BoltStore) DeleteGrants(ctx context.Context, keys []types.GrantKey) error {
	if len(keys) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGrants)
		for _, k := range keys {
			if err := b.Delete(compositeKey(k.MemberID, k.RoleID)); err != nil {
				return fmt.Errorf("delete grant %s/%s: %w", k.MemberID, k.RoleID, err)
			}
		}
		return nil
	})
}

// Notification ledger operations

// UpsertNotification records that tag was sent to the member at sentAt
func (s *BoltStore) UpsertNotification(ctx context.Context, memberID, tag string, sentAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNotifications)
		data, err := json.Marshal(types.NotificationRecord{
			MemberID: memberID,
			Tag:      tag,
			SentAt:   sentAt,
		})
		if err != nil {
			return err
		}
		return b.Put(compositeKey(memberID, tag), data)
	})
}

func (s *BoltStore) LastNotification(ctx context.Context, memberID, tag string) (*types.NotificationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec types.NotificationRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNotifications)
		data := b.Get(compositeKey(memberID, tag))
		if data == nil {
			return fmt.Errorf("notification %s/%s: %w", memberID, tag, ErrNotFound)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delegation operations

func (s *BoltStore) PutDelegation(ctx context.Context, d types.Delegation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDelegations)
		data, err := json.Marshal(d)
		if err != nil {
			return err
		}
		return b.Put(compositeKey(d.OwnerID, d.DelegateID, d.RoleID), data)
	})
}

// ListDelegationsByOwner returns every delegation handed out by ownerID
func (s *BoltStore) ListDelegationsByOwner(ctx context.Context, ownerID string) ([]types.Delegation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := compositeKey(ownerID, "")
	var out []types.Delegation
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketDelegations).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var d types.Delegation
			if err := json.Unmarshal(v, &d); err != nil {
				return fmt.Errorf("decode delegation %q: %w", k, err)
			}
			out = append(out, d)
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) DeleteDelegations(ctx context.Context, ds []types.Delegation) error {
	if len(ds) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDelegations)
		for _, d := range ds {
			if err := b.Delete(compositeKey(d.OwnerID, d.DelegateID, d.RoleID)); err != nil {
				return err
			}
		}
		return nil
	})
}

var _ Store = (*BoltStore)(nil)
