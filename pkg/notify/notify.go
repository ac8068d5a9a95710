// Package notify delivers expiry notices to members after their grant is gone.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/rolesweep/pkg/log"
	"github.com/cuemby/rolesweep/pkg/platform"
	"github.com/cuemby/rolesweep/pkg/types"
)

// Handler is invoked once per removed grant, strictly after the deletion committed
type Handler func(ctx context.Context, member *types.Member, grant types.Grant, role *types.Role) error

// ErrNoRoute is returned when neither a direct message nor a fallback channel could be used
var ErrNoRoute = errors.New("notify: no delivery route")

// Dispatcher sends a direct message and falls back to a channel mention
type Dispatcher struct {
	messenger         platform.Messenger
	fallbackChannelID string
}

// NewDispatcher creates a dispatcher. An empty fallbackChannelID disables the fallback.
func NewDispatcher(m platform.Messenger, fallbackChannelID string) *Dispatcher {
	return &Dispatcher{messenger: m, fallbackChannelID: fallbackChannelID}
}

// Handler returns the dispatcher as a notification Handler
func (d *Dispatcher) Handler() Handler {
	return d.Notify
}

// Notify delivers the expiry notice for grant
func (d *Dispatcher) Notify(ctx context.Context, member *types.Member, grant types.Grant, role *types.Role) error {
	content := Message(grant, role)

	dmErr := d.messenger.SendDirectMessage(ctx, member.ID, content)
	if dmErr == nil {
		return nil
	}
	if d.fallbackChannelID == "" {
		return fmt.Errorf("direct message to %s: %w", member.ID, dmErr)
	}

	logger := log.WithMemberID(member.ID)
	logger.Debug().Err(dmErr).Str("channel_id", d.fallbackChannelID).Msg("Direct message failed, using fallback channel")

	if err := d.messenger.SendChannelMessage(ctx, d.fallbackChannelID, content, []string{member.ID}); err != nil {
		return fmt.Errorf("%w: direct message: %v, fallback channel: %v", ErrNoRoute, dmErr, err)
	}
	return nil
}

// Message renders the plain-text notice for an expired grant
func Message(grant types.Grant, role *types.Role) string {
	name := grant.RoleID
	if role != nil && role.Name != "" {
		name = role.Name
	}
	switch grant.Class {
	case types.GrantClassMute:
		return fmt.Sprintf("Your mute has ended (%s).", name)
	case types.GrantClassPremium:
		return fmt.Sprintf("Your premium role %s has expired.", name)
	default:
		return fmt.Sprintf("Your role %s has expired.", name)
	}
}
