package reconciler

import (
	"sync"

	"github.com/cuemby/rolesweep/pkg/platform"
	"github.com/cuemby/rolesweep/pkg/types"
)

// RunStats summarises the outcomes of one reconciliation run
type RunStats struct {
	Counts         map[platform.Outcome]int
	Members        map[platform.Outcome]map[string]struct{}
	Roles          map[platform.Outcome]map[string]struct{}
	// CommitFailures counts members whose deletion transaction failed.
	CommitFailures int
}

var trackedOutcomes = append(append([]platform.Outcome(nil), platform.Outcomes...), OutcomeCommitFailed)

// NewRunStats returns empty stats
func NewRunStats() RunStats {
	return RunStats{
		Counts:  make(map[platform.Outcome]int),
		Members: make(map[platform.Outcome]map[string]struct{}),
		Roles:   make(map[platform.Outcome]map[string]struct{}),
	}
}

func (s RunStats) add(outcome platform.Outcome, g types.Grant) {
	s.Counts[outcome]++
	if s.Members[outcome] == nil {
		s.Members[outcome] = make(map[string]struct{})
		s.Roles[outcome] = make(map[string]struct{})
	}
	s.Members[outcome][g.MemberID] = struct{}{}
	s.Roles[outcome][g.RoleID] = struct{}{}
}

// Total returns the number of grants seen in the run
func (s RunStats) Total() int {
	n := 0
	for _, c := range s.Counts {
		n += c
	}
	return n
}

// Changed returns the outcomes whose count or affected ids differ from prev
func (s RunStats) Changed(prev RunStats) []platform.Outcome {
	var changed []platform.Outcome
	for _, o := range trackedOutcomes {
		if s.Counts[o] != prev.Counts[o] ||
			!sameSet(s.Members[o], prev.Members[o]) ||
			!sameSet(s.Roles[o], prev.Roles[o]) {
			changed = append(changed, o)
		}
	}
	return changed
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// StatsTracker remembers the last RunStats per filter key so repeated
// identical runs can be logged quietly. It is advisory only: a nil tracker
// is valid and the reconciliation result never depends on it.
type StatsTracker struct {
	mu   sync.Mutex
	prev map[string]RunStats
}

// NewStatsTracker creates an empty tracker
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{prev: make(map[string]RunStats)}
}

// Record stores stats under key and returns the outcomes that changed since
// the previous record for that key.
func (t *StatsTracker) Record(key string, stats RunStats) []platform.Outcome {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.prev[key]
	if !ok {
		prev = NewRunStats()
	}
	t.prev[key] = stats
	return stats.Changed(prev)
}

// Previous returns the last stats recorded under key
func (t *StatsTracker) Previous(key string) (RunStats, bool) {
	if t == nil {
		return RunStats{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.prev[key]
	return s, ok
}

// Reset forgets all recorded runs
func (t *StatsTracker) Reset() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prev = make(map[string]RunStats)
}
