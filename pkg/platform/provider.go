package platform

import (
	"context"
	"errors"

	"github.com/cuemby/rolesweep/pkg/types"
)

var (
	// ErrMemberNotFound indicates the member left the community or never existed.
	ErrMemberNotFound = errors.New("platform: member not found")
	// ErrRoleNotFound indicates the role was deleted from the community.
	ErrRoleNotFound = errors.New("platform: role not found")
	// ErrPermissionDenied indicates the platform rejected the call for authorization reasons.
	ErrPermissionDenied = errors.New("platform: permission denied")
	// ErrTransient covers timeouts, rate limiting and transport failures.
	ErrTransient = errors.New("platform: transient error")
)

// MembershipProvider is the engine's view of the external community platform
type MembershipProvider interface {
	// Community identifies the target community. Failure is a setup error.
	Community(ctx context.Context) (*types.Community, error)
	ResolveMember(ctx context.Context, memberID string) (*types.Member, error)
	ResolveRole(ctx context.Context, roleID string) (*types.Role, error)
	CurrentRoles(ctx context.Context, member *types.Member) (map[string]struct{}, error)
	// RemoveRoles removes every role in roleIDs from the member in one call.
	RemoveRoles(ctx context.Context, member *types.Member, roleIDs []string, reason string) error
}

// Messenger delivers user-facing messages through the platform
type Messenger interface {
	SendDirectMessage(ctx context.Context, memberID, content string) error
	SendChannelMessage(ctx context.Context, channelID, content string, mentions []string) error
}

// Outcome is the tagged result of a platform call as seen by the reconciler
type Outcome string

const (
	OutcomeOK               Outcome = "ok"
	OutcomeMemberNotFound   Outcome = "member_not_found"
	OutcomeRoleNotFound     Outcome = "role_not_found"
	OutcomeRoleNotAssigned  Outcome = "role_not_assigned"
	OutcomePermissionDenied Outcome = "permission_denied"
	OutcomeTransient        Outcome = "transient"
)

// Outcomes lists every outcome in a stable order
var Outcomes = []Outcome{
	OutcomeOK,
	OutcomeMemberNotFound,
	OutcomeRoleNotFound,
	OutcomeRoleNotAssigned,
	OutcomePermissionDenied,
	OutcomeTransient,
}

// Classify maps an error returned by a provider into an Outcome.
// Anything not recognised, including context cancellation and deadlines,
// is Transient: it never confirms that a mutation happened or did not.
// RoleNotAssigned is never produced here, the reconciler derives it from a
// membership snapshot.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrMemberNotFound):
		return OutcomeMemberNotFound
	case errors.Is(err, ErrRoleNotFound):
		return OutcomeRoleNotFound
	case errors.Is(err, ErrPermissionDenied):
		return OutcomePermissionDenied
	default:
		return OutcomeTransient
	}
}
