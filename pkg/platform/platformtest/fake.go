// Package platformtest provides an in-memory MembershipProvider for tests.
package platformtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/rolesweep/pkg/platform"
	"github.com/cuemby/rolesweep/pkg/types"
)

// RemoveCall records one RemoveRoles invocation
type RemoveCall struct {
	MemberID string
	RoleIDs  []string
	Reason   string
}

// Fake is a goroutine-safe in-memory community
type Fake struct {
	mu      sync.Mutex
	members map[string]map[string]struct{}
	roles   map[string]types.Role

	// CommunityErr is returned by Community when set.
	CommunityErr error
	// MemberErrs forces ResolveMember to fail for a member id.
	MemberErrs map[string]error
	// RoleErrs forces ResolveRole to fail for a role id.
	RoleErrs map[string]error
	// RemoveErrs forces RemoveRoles to fail for a member id.
	RemoveErrs map[string]error
	// OnRemove runs inside RemoveRoles before the roles are stripped.
	OnRemove func(call RemoveCall)

	removeCalls   []RemoveCall
	resolveCounts map[string]int
}

// NewFake creates an empty community
func NewFake() *Fake {
	return &Fake{
		members:       make(map[string]map[string]struct{}),
		roles:         make(map[string]types.Role),
		MemberErrs:    make(map[string]error),
		RoleErrs:      make(map[string]error),
		RemoveErrs:    make(map[string]error),
		resolveCounts: make(map[string]int),
	}
}

// AddRole creates a role
func (f *Fake) AddRole(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[id] = types.Role{ID: id, Name: name}
}

// AddMember creates a member holding roleIDs
func (f *Fake) AddMember(id string, roleIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := make(map[string]struct{}, len(roleIDs))
	for _, r := range roleIDs {
		set[r] = struct{}{}
	}
	f.members[id] = set
}

// HasRole reports whether the member currently holds the role
func (f *Fake) HasRole(memberID, roleID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.members[memberID][roleID]
	return ok
}

// RemoveCalls returns the RemoveRoles invocations so far
func (f *Fake) RemoveCalls() []RemoveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RemoveCall(nil), f.removeCalls...)
}

// ResolveCount returns how often ResolveMember was called for memberID
func (f *Fake) ResolveCount(memberID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolveCounts[memberID]
}

func (f *Fake) Community(ctx context.Context) (*types.Community, error) {
	if f.CommunityErr != nil {
		return nil, f.CommunityErr
	}
	return &types.Community{ID: "test", Name: "Test Community"}, nil
}

func (f *Fake) ResolveMember(ctx context.Context, memberID string) (*types.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolveCounts[memberID]++

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, platform.ErrTransient)
	}
	if err := f.MemberErrs[memberID]; err != nil {
		return nil, err
	}
	if _, ok := f.members[memberID]; !ok {
		return nil, fmt.Errorf("member %s: %w", memberID, platform.ErrMemberNotFound)
	}
	return &types.Member{ID: memberID, Name: memberID}, nil
}

func (f *Fake) ResolveRole(ctx context.Context, roleID string) (*types.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.RoleErrs[roleID]; err != nil {
		return nil, err
	}
	role, ok := f.roles[roleID]
	if !ok {
		return nil, fmt.Errorf("role %s: %w", roleID, platform.ErrRoleNotFound)
	}
	return &role, nil
}

func (f *Fake) CurrentRoles(ctx context.Context, member *types.Member) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	roles, ok := f.members[member.ID]
	if !ok {
		return nil, fmt.Errorf("member %s: %w", member.ID, platform.ErrMemberNotFound)
	}
	out := make(map[string]struct{}, len(roles))
	for r := range roles {
		out[r] = struct{}{}
	}
	return out, nil
}

func (f *Fake) RemoveRoles(ctx context.Context, member *types.Member, roleIDs []string, reason string) error {
	ids := append([]string(nil), roleIDs...)
	sort.Strings(ids)
	call := RemoveCall{MemberID: member.ID, RoleIDs: ids, Reason: reason}

	f.mu.Lock()
	f.removeCalls = append(f.removeCalls, call)
	hook := f.OnRemove
	err := f.RemoveErrs[member.ID]
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range roleIDs {
		delete(f.members[member.ID], r)
	}
	return nil
}

var _ platform.MembershipProvider = (*Fake)(nil)
