package health

import (
	"context"
	"time"

	"github.com/cuemby/rolesweep/pkg/metrics"
	"github.com/cuemby/rolesweep/pkg/types"
)

// Pinger is implemented by the grant store
type Pinger interface {
	Ping(ctx context.Context) error
}

// CommunityResolver is implemented by membership providers
type CommunityResolver interface {
	Community(ctx context.Context) (*types.Community, error)
}

// StorageChecker pings the grant store
type StorageChecker struct {
	Store Pinger
}

func (c StorageChecker) Component() string { return metrics.ComponentStorage }

func (c StorageChecker) Check(ctx context.Context) Result {
	return timed(func() error { return c.Store.Ping(ctx) })
}

// PlatformChecker resolves the configured community
type PlatformChecker struct {
	Provider CommunityResolver
}

func (c PlatformChecker) Component() string { return metrics.ComponentPlatform }

func (c PlatformChecker) Check(ctx context.Context) Result {
	return timed(func() error {
		_, err := c.Provider.Community(ctx)
		return err
	})
}

func timed(fn func() error) Result {
	start := time.Now()
	err := fn()
	r := Result{Healthy: err == nil, CheckedAt: start, Duration: time.Since(start)}
	if err != nil {
		r.Message = err.Error()
	}
	return r
}
