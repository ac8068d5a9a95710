package health

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/rolesweep/pkg/log"
	"github.com/cuemby/rolesweep/pkg/metrics"
)

// Monitor runs checkers on an interval and publishes their state to the
// metrics health registry behind /health and /ready.
type Monitor struct {
	config   Config
	checkers []Checker

	mu       sync.Mutex
	statuses map[string]*Status

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor creates a monitor for the given checkers
func NewMonitor(config Config, checkers ...Checker) *Monitor {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.Retries <= 0 {
		config.Retries = 1
	}
	statuses := make(map[string]*Status, len(checkers))
	for _, c := range checkers {
		statuses[c.Component()] = NewStatus()
	}
	return &Monitor{
		config:   config,
		checkers: checkers,
		statuses: statuses,
		stopCh:   make(chan struct{}),
	}
}

// Start runs one round immediately and then every interval
func (m *Monitor) Start() {
	m.CheckAll(context.Background())

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.CheckAll(context.Background())
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop halts the monitor and waits for the loop to exit
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// CheckAll runs every checker once
func (m *Monitor) CheckAll(ctx context.Context) {
	for _, c := range m.checkers {
		cctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
		result := c.Check(cctx)
		cancel()
		m.record(c.Component(), result)
	}
}

func (m *Monitor) record(component string, result Result) {
	m.mu.Lock()
	status := m.statuses[component]
	wasHealthy := status.Healthy
	status.Update(result, m.config)
	healthy := status.Healthy
	m.mu.Unlock()

	msg := ""
	if !healthy {
		msg = result.Message
	}
	metrics.UpdateComponent(component, healthy, msg)

	if wasHealthy && !healthy {
		log.Logger.Warn().Str("component", component).Str("reason", result.Message).Msg("Component became unhealthy")
	} else if !wasHealthy && healthy {
		log.Logger.Info().Str("component", component).Msg("Component recovered")
	}
}

// Status returns a copy of the component's current status
func (m *Monitor) Status(component string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[component]
	if !ok {
		return Status{}, false
	}
	return *s, true
}
