// Package cascade revokes privileges derived from a premium grant once that grant is gone.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/cuemby/rolesweep/pkg/log"
	"github.com/cuemby/rolesweep/pkg/platform"
	"github.com/cuemby/rolesweep/pkg/types"
)

// Cascade is invoked after a premium grant's removal has been committed.
// Implementations must be idempotent.
type Cascade interface {
	OnPremiumExpired(ctx context.Context, memberID string) error
}

// Func adapts a function to Cascade
type Func func(ctx context.Context, memberID string) error

func (f Func) OnPremiumExpired(ctx context.Context, memberID string) error {
	return f(ctx, memberID)
}

// DelegationStore is the persistence used by DelegationCascade
type DelegationStore interface {
	ListDelegationsByOwner(ctx context.Context, ownerID string) ([]types.Delegation, error)
	DeleteDelegations(ctx context.Context, ds []types.Delegation) error
}

// DelegationCascade strips delegated moderator and sub-group roles that the
// expired premium member handed out, then forgets the delegation records.
type DelegationCascade struct {
	store    DelegationStore
	provider platform.MembershipProvider
}

// NewDelegationCascade creates a cascade backed by store and provider
func NewDelegationCascade(store DelegationStore, provider platform.MembershipProvider) *DelegationCascade {
	return &DelegationCascade{store: store, provider: provider}
}

// OnPremiumExpired revokes every delegation owned by ownerID. Delegations
// whose revocation fails stay recorded and are retried on the next expiry
// of the same owner or by an operator.
func (c *DelegationCascade) OnPremiumExpired(ctx context.Context, ownerID string) error {
	delegations, err := c.store.ListDelegationsByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("list delegations of %s: %w", ownerID, err)
	}
	if len(delegations) == 0 {
		return nil
	}

	logger := log.WithMemberID(ownerID)

	byDelegate := make(map[string][]types.Delegation)
	for _, d := range delegations {
		byDelegate[d.DelegateID] = append(byDelegate[d.DelegateID], d)
	}
	delegates := make([]string, 0, len(byDelegate))
	for id := range byDelegate {
		delegates = append(delegates, id)
	}
	sort.Strings(delegates)

	var revoked []types.Delegation
	var errs []error
	for _, delegateID := range delegates {
		group := byDelegate[delegateID]
		if err := c.revoke(ctx, delegateID, group); err != nil {
			errs = append(errs, err)
			continue
		}
		revoked = append(revoked, group...)
	}

	if err := c.store.DeleteDelegations(ctx, revoked); err != nil {
		errs = append(errs, fmt.Errorf("delete delegations of %s: %w", ownerID, err))
	} else if len(revoked) > 0 {
		logger.Info().Int("revoked", len(revoked)).Msg("Revoked delegated privileges")
	}

	return errors.Join(errs...)
}

func (c *DelegationCascade) revoke(ctx context.Context, delegateID string, group []types.Delegation) error {
	member, err := c.provider.ResolveMember(ctx, delegateID)
	switch platform.Classify(err) {
	case platform.OutcomeOK:
	case platform.OutcomeMemberNotFound:
		// delegate left, nothing to strip
		return nil
	default:
		return fmt.Errorf("resolve delegate %s: %w", delegateID, err)
	}

	current, err := c.provider.CurrentRoles(ctx, member)
	if err != nil {
		return fmt.Errorf("current roles of delegate %s: %w", delegateID, err)
	}

	var roleIDs []string
	for _, d := range group {
		if _, ok := current[d.RoleID]; ok {
			roleIDs = append(roleIDs, d.RoleID)
		}
	}
	if len(roleIDs) == 0 {
		return nil
	}

	if err := c.provider.RemoveRoles(ctx, member, roleIDs, "delegating premium grant expired"); err != nil {
		return fmt.Errorf("remove delegated roles from %s: %w", delegateID, err)
	}
	return nil
}

var _ Cascade = (*DelegationCascade)(nil)
