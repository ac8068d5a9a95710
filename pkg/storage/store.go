package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cuemby/rolesweep/pkg/types"
)

// ErrNotFound indicates the requested record does not exist
var ErrNotFound = errors.New("storage: not found")

// Store defines the interface for grant state storage
type Store interface {
	// Grants
	PutGrant(ctx context.Context, grant types.Grant) error
	GetGrant(ctx context.Context, memberID, roleID string) (*types.Grant, error)
	ListGrants(ctx context.Context) ([]types.Grant, error)
	ListExpired(ctx context.Context, now time.Time, filter types.Filter) ([]types.Grant, error)
	DeleteGrants(ctx context.Context, keys []types.GrantKey) error

	// Notification ledger
	UpsertNotification(ctx context.Context, memberID, tag string, sentAt time.Time) error
	LastNotification(ctx context.Context, memberID, tag string) (*types.NotificationRecord, error)

	// Delegations
	PutDelegation(ctx context.Context, d types.Delegation) error
	ListDelegationsByOwner(ctx context.Context, ownerID string) ([]types.Delegation, error)
	DeleteDelegations(ctx context.Context, ds []types.Delegation) error

	// Utility
	Ping(ctx context.Context) error
	Close() error
}
