package storage

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/rolesweep/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGrantRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	expires := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.PutGrant(ctx, types.Grant{
		MemberID: "m1", RoleID: "r1", ExpiresAt: expires, Class: types.GrantClassPremium,
	}))

	got, err := store.GetGrant(ctx, "m1", "r1")
	require.NoError(t, err)
	assert.Equal(t, types.GrantClassPremium, got.Class)
	assert.True(t, got.ExpiresAt.Equal(expires))

	_, err = store.GetGrant(ctx, "m1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutGrantReplacesExisting(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now()

	require.NoError(t, store.PutGrant(ctx, types.Grant{MemberID: "m1", RoleID: "r1", ExpiresAt: now}))
	require.NoError(t, store.PutGrant(ctx, types.Grant{MemberID: "m1", RoleID: "r1", ExpiresAt: now.Add(time.Hour)}))

	grants, err := store.ListGrants(ctx)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.True(t, grants[0].ExpiresAt.After(now))
}

func TestListExpired(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	seed := []types.Grant{
		{MemberID: "m1", RoleID: "premium", ExpiresAt: now.Add(-time.Hour), Class: types.GrantClassPremium},
		{MemberID: "m2", RoleID: "muted", ExpiresAt: now, Class: types.GrantClassMute},
		{MemberID: "m3", RoleID: "muted", ExpiresAt: now.Add(time.Hour), Class: types.GrantClassMute},
	}
	for _, g := range seed {
		require.NoError(t, store.PutGrant(ctx, g))
	}

	tests := []struct {
		name    string
		filter  types.Filter
		members []string
	}{
		{name: "no filter", filter: types.Filter{}, members: []string{"m1", "m2"}},
		{name: "mute class", filter: types.Filter{Class: types.GrantClassMute}, members: []string{"m2"}},
		{name: "role ids", filter: types.Filter{RoleIDs: []string{"premium"}}, members: []string{"m1"}},
		{name: "no match", filter: types.Filter{RoleIDs: []string{"other"}}, members: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grants, err := store.ListExpired(ctx, now, tt.filter)
			require.NoError(t, err)

			var members []string
			for _, g := range grants {
				members = append(members, g.MemberID)
			}
			assert.ElementsMatch(t, tt.members, members)
		})
	}
}

func TestDeleteGrants(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now()

	for _, role := range []string{"r1", "r2", "r3"} {
		require.NoError(t, store.PutGrant(ctx, types.Grant{MemberID: "m1", RoleID: role, ExpiresAt: now}))
	}

	err := store.DeleteGrants(ctx, []types.GrantKey{
		{MemberID: "m1", RoleID: "r1"},
		{MemberID: "m1", RoleID: "r3"},
		{MemberID: "m1", RoleID: "absent"},
	})
	require.NoError(t, err)

	grants, err := store.ListGrants(ctx)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "r2", grants[0].RoleID)

	assert.NoError(t, store.DeleteGrants(ctx, nil))
}

func TestDeleteGrantsCancelledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, store.PutGrant(ctx, types.Grant{MemberID: "m1", RoleID: "r1"}))
	cancel()

	err := store.DeleteGrants(ctx, []types.GrantKey{{MemberID: "m1", RoleID: "r1"}})
	assert.ErrorIs(t, err, context.Canceled)

	grants, err := store.ListGrants(context.Background())
	require.NoError(t, err)
	assert.Len(t, grants, 1)
}

func TestUpsertNotificationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(time.Minute)

	_, err := store.LastNotification(ctx, "m1", "premium_expired")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.UpsertNotification(ctx, "m1", "premium_expired", first))
	require.NoError(t, store.UpsertNotification(ctx, "m1", "premium_expired", first))

	rec, err := store.LastNotification(ctx, "m1", "premium_expired")
	require.NoError(t, err)
	assert.True(t, rec.SentAt.Equal(first))

	require.NoError(t, store.UpsertNotification(ctx, "m1", "premium_expired", second))
	rec, err = store.LastNotification(ctx, "m1", "premium_expired")
	require.NoError(t, err)
	assert.True(t, rec.SentAt.Equal(second))
}

func TestDelegationsByOwner(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ds := []types.Delegation{
		{OwnerID: "owner", DelegateID: "d1", RoleID: "mod", Kind: types.DelegationModerator},
		{OwnerID: "owner", DelegateID: "d2", RoleID: "club", Kind: types.DelegationSubGroup},
		{OwnerID: "owner2", DelegateID: "d1", RoleID: "mod", Kind: types.DelegationModerator},
		// shares a prefix with "owner" but is a different owner
		{OwnerID: "ownerX", DelegateID: "d3", RoleID: "mod", Kind: types.DelegationModerator},
	}
	for _, d := range ds {
		require.NoError(t, store.PutDelegation(ctx, d))
	}

	owned, err := store.ListDelegationsByOwner(ctx, "owner")
	require.NoError(t, err)
	assert.Len(t, owned, 2)

	require.NoError(t, store.DeleteDelegations(ctx, owned[:1]))
	owned, err = store.ListDelegationsByOwner(ctx, "owner")
	require.NoError(t, err)
	assert.Len(t, owned, 1)

	other, err := store.ListDelegationsByOwner(ctx, "owner2")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}
