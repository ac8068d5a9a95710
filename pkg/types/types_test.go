package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFilterMatches(t *testing.T) {
	grant := Grant{MemberID: "m1", RoleID: "r1", Class: GrantClassMute}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{name: "empty filter", filter: Filter{}, want: true},
		{name: "class match", filter: Filter{Class: GrantClassMute}, want: true},
		{name: "class mismatch", filter: Filter{Class: GrantClassPremium}, want: false},
		{name: "role match", filter: Filter{RoleIDs: []string{"r2", "r1"}}, want: true},
		{name: "role mismatch", filter: Filter{RoleIDs: []string{"r2"}}, want: false},
		{name: "class and role", filter: Filter{Class: GrantClassMute, RoleIDs: []string{"r1"}}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(grant))
		})
	}
}

func TestFilterKey(t *testing.T) {
	assert.Equal(t, "*/*", Filter{}.Key())
	assert.Equal(t, "mute/*", Filter{Class: GrantClassMute}.Key())
	assert.Equal(t,
		Filter{RoleIDs: []string{"b", "a"}}.Key(),
		Filter{RoleIDs: []string{"a", "b"}}.Key(),
	)
	assert.NotEqual(t, Filter{Class: GrantClassMute}.Key(), Filter{Class: GrantClassPremium}.Key())
}

func TestGrantExpired(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, Grant{ExpiresAt: now}.Expired(now))
	assert.True(t, Grant{ExpiresAt: now.Add(-time.Hour)}.Expired(now))
	assert.False(t, Grant{ExpiresAt: now.Add(time.Second)}.Expired(now))
}

func TestExpiredTag(t *testing.T) {
	assert.Equal(t, "premium_expired", GrantClassPremium.ExpiredTag())
	assert.Equal(t, "mute_expired", GrantClassMute.ExpiredTag())
}

func TestFilterOverlaps(t *testing.T) {
	all := Filter{}
	premium := Filter{Class: GrantClassPremium}
	mute := Filter{Class: GrantClassMute}
	r1 := Filter{RoleIDs: []string{"r1"}}
	r12 := Filter{RoleIDs: []string{"r1", "r2"}}
	mutesR2 := Filter{Class: GrantClassMute, RoleIDs: []string{"r2"}}
	mutesR3 := Filter{Class: GrantClassMute, RoleIDs: []string{"r3"}}

	tests := []struct {
		name string
		a, b Filter
		want bool
	}{
		{"unfiltered vs class", all, premium, true},
		{"same filter", premium, premium, true},
		{"different classes", premium, mute, false},
		{"roles without class vs class", r1, premium, true},
		{"shared role", r1, r12, true},
		{"disjoint roles same class", mutesR2, mutesR3, false},
		{"class with roles vs class", mutesR2, mute, true},
		{"class with roles vs other class", mutesR2, premium, false},
		{"shared role across classes", mutesR2, Filter{Class: GrantClassOther, RoleIDs: []string{"r2"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(tt.a))
		})
	}
}
