package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/rolesweep/pkg/metrics"
	"github.com/cuemby/rolesweep/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyPinger struct {
	fail atomic.Bool
}

func (p *flakyPinger) Ping(ctx context.Context) error {
	if p.fail.Load() {
		return errors.New("database not open")
	}
	return nil
}

type community struct{ err error }

func (c community) Community(ctx context.Context) (*types.Community, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &types.Community{ID: "c1"}, nil
}

func TestStatusUpdate(t *testing.T) {
	cfg := Config{Retries: 2}
	s := NewStatus()

	s.Update(Result{Healthy: false}, cfg)
	assert.True(t, s.Healthy, "one failure is below the retry threshold")
	s.Update(Result{Healthy: false}, cfg)
	assert.False(t, s.Healthy)
	assert.Equal(t, 2, s.ConsecutiveFailures)

	s.Update(Result{Healthy: true}, cfg)
	assert.True(t, s.Healthy)
	assert.Zero(t, s.ConsecutiveFailures)
	assert.Equal(t, 1, s.ConsecutiveSuccesses)
}

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	r := PlatformChecker{Provider: community{}}.Check(ctx)
	assert.True(t, r.Healthy)

	r = PlatformChecker{Provider: community{err: errors.New("401")}}.Check(ctx)
	assert.False(t, r.Healthy)
	assert.Equal(t, "401", r.Message)

	assert.Equal(t, metrics.ComponentStorage, StorageChecker{}.Component())
	assert.Equal(t, metrics.ComponentPlatform, PlatformChecker{}.Component())
}

func TestMonitorReportsToRegistry(t *testing.T) {
	pinger := &flakyPinger{}
	mon := NewMonitor(Config{Interval: time.Hour, Timeout: time.Second, Retries: 2}, StorageChecker{Store: pinger})

	mon.CheckAll(context.Background())
	assert.Equal(t, "healthy", metrics.GetHealth().Components[metrics.ComponentStorage])

	pinger.fail.Store(true)
	mon.CheckAll(context.Background())
	status, ok := mon.Status(metrics.ComponentStorage)
	require.True(t, ok)
	assert.True(t, status.Healthy)

	mon.CheckAll(context.Background())
	assert.Equal(t, "unhealthy: database not open", metrics.GetHealth().Components[metrics.ComponentStorage])

	pinger.fail.Store(false)
	mon.CheckAll(context.Background())
	assert.Equal(t, "healthy", metrics.GetHealth().Components[metrics.ComponentStorage])
}

func TestMonitorStartStop(t *testing.T) {
	mon := NewMonitor(Config{Interval: 10 * time.Millisecond}, PlatformChecker{Provider: community{}})
	mon.Start()
	mon.Stop()
	mon.Stop()

	_, ok := mon.Status("unknown")
	assert.False(t, ok)
}
