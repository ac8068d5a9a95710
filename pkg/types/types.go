package types

import (
	"sort"
	"strings"
	"time"
)

// GrantClass distinguishes premium entitlements from mutes and other grants
type GrantClass string

const (
	GrantClassPremium GrantClass = "premium"
	GrantClassMute    GrantClass = "mute"
	GrantClassOther   GrantClass = "other"
)

// ExpiredTag returns the notification ledger tag used for expiry notices
func (c GrantClass) ExpiredTag() string {
	return string(c) + "_expired"
}

// Grant is a persisted, time-bounded role assignment for a community member
type Grant struct {
	MemberID  string     `json:"member_id"`
	RoleID    string     `json:"role_id"`
	ExpiresAt time.Time  `json:"expires_at"`
	Class     GrantClass `json:"class"`
}

// Key returns the unique (member, role) key of the grant
func (g Grant) Key() GrantKey {
	return GrantKey{MemberID: g.MemberID, RoleID: g.RoleID}
}

// Expired reports whether the grant has expired at the given instant
func (g Grant) Expired(now time.Time) bool {
	return !g.ExpiresAt.After(now)
}

// GrantKey identifies a grant row
type GrantKey struct {
	MemberID string
	RoleID   string
}

// Community is the external platform container holding members and roles
type Community struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Member is a resolved community member handle
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// RoleIDs is the set of role ids assigned when the member was resolved.
	// Providers that return roles with the member payload fill it in.
	RoleIDs []string `json:"roles,omitempty"`
}

// Role is a resolved platform role
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MembershipSnapshot is the per-run view of one member and its current roles
type MembershipSnapshot struct {
	Member *Member
	Roles  map[string]struct{}
}

// HasRole reports whether the snapshot contains the role
func (s *MembershipSnapshot) HasRole(roleID string) bool {
	_, ok := s.Roles[roleID]
	return ok
}

// NotificationRecord is a dedupe ledger entry
type NotificationRecord struct {
	MemberID string    `json:"member_id"`
	Tag      string    `json:"tag"`
	SentAt   time.Time `json:"sent_at"`
}

// DelegationKind describes a privilege derived from a premium grant
type DelegationKind string

const (
	DelegationModerator DelegationKind = "moderator"
	DelegationSubGroup  DelegationKind = "subgroup"
)

// Delegation is a privilege a premium member handed to another member.
// It must not outlive the owner's premium grant.
type Delegation struct {
	OwnerID    string         `json:"owner_id"`
	DelegateID string         `json:"delegate_id"`
	RoleID     string         `json:"role_id"`
	Kind       DelegationKind `json:"kind"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter restricts a reconciliation run to a grant class and/or role ids
type Filter struct {
	Class   GrantClass
	RoleIDs []string
}

// Matches reports whether the grant passes the filter
func (f Filter) Matches(g Grant) bool {
	if f.Class != "" && g.Class != f.Class {
		return false
	}
	if len(f.RoleIDs) == 0 {
		return true
	}
	for _, id := range f.RoleIDs {
		if id == g.RoleID {
			return true
		}
	}
	return false
}

// Overlaps reports whether some grant could match both filters. Passes
// with overlapping filters must not run concurrently.
func (f Filter) Overlaps(o Filter) bool {
	if f.Class != "" && o.Class != "" && f.Class != o.Class {
		return false
	}
	if len(f.RoleIDs) == 0 || len(o.RoleIDs) == 0 {
		return true
	}
	for _, a := range f.RoleIDs {
		for _, b := range o.RoleIDs {
			if a == b {
				return true
			}
		}
	}
	return false
}

// Key returns a stable identifier for the filter combination
func (f Filter) Key() string {
	class := string(f.Class)
	if class == "" {
		class = "*"
	}
	if len(f.RoleIDs) == 0 {
		return class + "/*"
	}
	ids := append([]string(nil), f.RoleIDs...)
	sort.Strings(ids)
	return class + "/" + strings.Join(ids, ",")
}
