package metrics

import (
	"context"
	"time"

	"github.com/cuemby/rolesweep/pkg/log"
	"github.com/cuemby/rolesweep/pkg/types"
)

// GrantLister is the read side of the grant store used by the collector
type GrantLister interface {
	ListGrants(ctx context.Context) ([]types.Grant, error)
}

// Collector periodically publishes grant inventory gauges
type Collector struct {
	grants   GrantLister
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(grants GrantLister, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Collector{
		grants:   grants,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), c.interval)
	defer cancel()

	grants, err := c.grants.ListGrants(ctx)
	if err != nil {
		UpdateComponent(ComponentStorage, false, err.Error())
		logger := log.WithComponent("metrics")
		logger.Warn().Err(err).Msg("Failed to collect grant metrics")
		return
	}
	UpdateComponent(ComponentStorage, true, "")

	now := c.now()
	totals := make(map[types.GrantClass]int)
	expired := make(map[types.GrantClass]int)
	for _, g := range grants {
		totals[g.Class]++
		if g.Expired(now) {
			expired[g.Class]++
		}
	}

	// classes that dropped to zero still need a zero sample
	for _, class := range []types.GrantClass{types.GrantClassPremium, types.GrantClassMute, types.GrantClassOther} {
		GrantsTotal.WithLabelValues(string(class)).Set(0)
		GrantsExpiredPending.WithLabelValues(string(class)).Set(0)
	}
	for class, n := range totals {
		GrantsTotal.WithLabelValues(string(class)).Set(float64(n))
	}
	for class, n := range expired {
		GrantsExpiredPending.WithLabelValues(string(class)).Set(float64(n))
	}
}
