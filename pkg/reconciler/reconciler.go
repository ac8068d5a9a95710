package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/rolesweep/pkg/cascade"
	"github.com/cuemby/rolesweep/pkg/events"
	"github.com/cuemby/rolesweep/pkg/log"
	"github.com/cuemby/rolesweep/pkg/metrics"
	"github.com/cuemby/rolesweep/pkg/notify"
	"github.com/cuemby/rolesweep/pkg/platform"
	"github.com/cuemby/rolesweep/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const removalReason = "time-limited role expired"

// OutcomeCommitFailed marks grants whose removal was decided but whose
// deletion did not commit. They stay in the store for the next run.
const OutcomeCommitFailed platform.Outcome = "commit_failed"

// GrantStore is the persistence the reconciler reads expired grants from and deletes them in
type GrantStore interface {
	ListExpired(ctx context.Context, now time.Time, filter types.Filter) ([]types.Grant, error)
	// DeleteGrants must delete all keys atomically.
	DeleteGrants(ctx context.Context, keys []types.GrantKey) error
}

// NotificationLog is the dedupe ledger shared with the cooldown subsystems
type NotificationLog interface {
	UpsertNotification(ctx context.Context, memberID, tag string, sentAt time.Time) error
}

// Config wires the reconciler to its collaborators
type Config struct {
	Store    GrantStore
	Ledger   NotificationLog
	Provider platform.MembershipProvider

	// Notify, Cascade and Events are optional.
	Notify  notify.Handler
	Cascade cascade.Cascade
	Events  *events.Broker

	// Concurrency bounds how many members are processed in parallel.
	Concurrency int
	// CallTimeout bounds each platform call and each notification.
	CallTimeout time.Duration
	// CascadeTimeout bounds one member's premium cascade, which may make
	// several platform calls per delegate. Defaults to 10x CallTimeout.
	CascadeTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Reconciler brings persisted grants and platform role assignments back into agreement
type Reconciler struct {
	cfg Config
}

// NewReconciler creates a new reconciler
func NewReconciler(cfg Config) (*Reconciler, error) {
	if cfg.Store == nil {
		return nil, errors.New("reconciler: grant store is required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("reconciler: notification log is required")
	}
	if cfg.Provider == nil {
		return nil, errors.New("reconciler: membership provider is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.CascadeTimeout <= 0 {
		cfg.CascadeTimeout = 10 * cfg.CallTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reconciler{cfg: cfg}, nil
}

// decision is the verdict for one grant
type decision struct {
	grant   types.Grant
	role    *types.Role
	outcome platform.Outcome
	remove  bool
}

// notifies reports whether the member is told about the deletion
func (d decision) notifies() bool {
	return d.outcome == platform.OutcomeOK || d.outcome == platform.OutcomeRoleNotAssigned
}

// cascades reports whether a premium cascade follows the deletion
func (d decision) cascades() bool {
	if d.grant.Class != types.GrantClassPremium {
		return false
	}
	switch d.outcome {
	case platform.OutcomeOK, platform.OutcomeMemberNotFound, platform.OutcomeRoleNotAssigned:
		return true
	default:
		return false
	}
}

// memberResult collects one member's decisions and whether its deletions committed
type memberResult struct {
	memberID  string
	member    *types.Member
	decisions []decision
	committed bool
}

// Run performs one reconciliation pass over expired grants matching filter.
// It returns the number of grant rows deleted. Only setup failures (the
// community cannot be resolved, the store cannot be read) are returned as
// errors; per-member failures are logged and leave grants for the next run.
// Callers must not run two passes with overlapping filters concurrently.
func (r *Reconciler) Run(ctx context.Context, tracker *StatsTracker, filter types.Filter) (int, error) {
	key := filter.Key()
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ReconciliationDuration, key)

	logger := log.WithRunID(uuid.NewString()).With().
		Str("component", "reconciler").
		Str("filter", key).
		Logger()

	if _, err := r.cfg.Provider.Community(ctx); err != nil {
		metrics.ReconciliationRuns.WithLabelValues(key, "error").Inc()
		metrics.UpdateComponent(metrics.ComponentPlatform, false, err.Error())
		return 0, fmt.Errorf("resolve community: %w", err)
	}
	metrics.UpdateComponent(metrics.ComponentPlatform, true, "")

	now := r.cfg.Now()
	grants, err := r.cfg.Store.ListExpired(ctx, now, filter)
	if err != nil {
		metrics.ReconciliationRuns.WithLabelValues(key, "error").Inc()
		metrics.UpdateComponent(metrics.ComponentStorage, false, err.Error())
		return 0, fmt.Errorf("list expired grants: %w", err)
	}
	metrics.UpdateComponent(metrics.ComponentStorage, true, "")

	if len(grants) == 0 {
		prev, seen := tracker.Previous(key)
		tracker.Record(key, NewRunStats())
		metrics.ReconciliationRuns.WithLabelValues(key, "empty").Inc()
		if !seen || prev.Total() > 0 {
			logger.Info().Msg("No expired grants")
		} else {
			logger.Debug().Msg("No expired grants")
		}
		return 0, nil
	}

	groups := make(map[string][]types.Grant)
	for _, g := range grants {
		groups[g.MemberID] = append(groups[g.MemberID], g)
	}
	memberIDs := make([]string, 0, len(groups))
	for id := range groups {
		memberIDs = append(memberIDs, id)
	}
	sort.Strings(memberIDs)

	roles := newRoleCache(r.cfg.Provider)
	results := make([]memberResult, len(memberIDs))

	// Phase 1: external mutations and per-member commits.
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i, memberID := range memberIDs {
		i, memberID := i, memberID
		g.Go(func() error {
			results[i] = r.reconcileMember(ctx, logger, roles, memberID, groups[memberID])
			return nil
		})
	}
	_ = g.Wait()

	// Phase 2: side effects of committed deletions only.
	removed := 0
	stats := NewRunStats()
	for _, res := range results {
		for _, d := range res.decisions {
			outcome := d.outcome
			if d.remove {
				if res.committed {
					removed++
				} else {
					outcome = OutcomeCommitFailed
				}
			}
			stats.add(outcome, d.grant)
			metrics.GrantsReconciled.WithLabelValues(string(d.grant.Class), string(outcome)).Inc()
		}
		if !res.committed {
			if hasRemovals(res.decisions) {
				stats.CommitFailures++
			}
			r.publishRetained(res)
			continue
		}
		r.applySideEffects(ctx, logger, now, res)
	}

	changed := tracker.Record(key, stats)
	metrics.ReconciliationRuns.WithLabelValues(key, "ok").Inc()
	r.publish(events.EventRunCompleted, "reconciliation run completed", map[string]string{
		"filter":  key,
		"expired": strconv.Itoa(len(grants)),
		"removed": strconv.Itoa(removed),
	})

	ev := logger.Debug()
	if len(changed) > 0 {
		ev = logger.Info()
	}
	ev.Int("expired", len(grants)).
		Int("removed", removed).
		Int("member_not_found", stats.Counts[platform.OutcomeMemberNotFound]).
		Int("role_not_found", stats.Counts[platform.OutcomeRoleNotFound]).
		Int("role_not_assigned", stats.Counts[platform.OutcomeRoleNotAssigned]).
		Int("permission_denied", stats.Counts[platform.OutcomePermissionDenied]).
		Int("transient", stats.Counts[platform.OutcomeTransient]).
		Int("commit_failed", stats.Counts[OutcomeCommitFailed]).
		Int("commit_failures", stats.CommitFailures).
		Dur("elapsed", timer.Duration()).
		Msg("Reconciliation finished")

	return removed, nil
}

func hasRemovals(ds []decision) bool {
	for _, d := range ds {
		if d.remove {
			return true
		}
	}
	return false
}

// retainAll keeps every grant with the given outcome
func retainAll(grants []types.Grant, outcome platform.Outcome) []decision {
	out := make([]decision, len(grants))
	for i, g := range grants {
		out[i] = decision{grant: g, outcome: outcome}
	}
	return out
}

func (r *Reconciler) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.cfg.CallTimeout)
}

// reconcileMember decides every grant of one member, performs the batched
// removal and commits the member's deletions in one transaction.
func (r *Reconciler) reconcileMember(ctx context.Context, runLog zerolog.Logger, roles *roleCache, memberID string, grants []types.Grant) memberResult {
	logger := runLog.With().Str("member_id", memberID).Logger()
	res := memberResult{memberID: memberID}

	callCtx, cancel := r.callContext(ctx)
	member, err := r.cfg.Provider.ResolveMember(callCtx, memberID)
	cancel()

	var snapshot *types.MembershipSnapshot
	switch outcome := platform.Classify(err); outcome {
	case platform.OutcomeOK:
		callCtx, cancel := r.callContext(ctx)
		current, err := r.cfg.Provider.CurrentRoles(callCtx, member)
		cancel()
		switch o := platform.Classify(err); o {
		case platform.OutcomeOK:
			snapshot = &types.MembershipSnapshot{Member: member, Roles: current}
		case platform.OutcomeMemberNotFound:
			// left between the two calls
			res.decisions = r.dropAll(grants, platform.OutcomeMemberNotFound)
		default:
			logger.Warn().Err(err).Msg("Failed to read current roles, keeping grants")
			res.decisions = retainAll(grants, o)
		}
	case platform.OutcomeMemberNotFound:
		res.decisions = r.dropAll(grants, platform.OutcomeMemberNotFound)
	case platform.OutcomePermissionDenied:
		logger.Error().Err(err).Msg("Permission denied resolving member, keeping grants")
		res.decisions = retainAll(grants, outcome)
	default:
		logger.Warn().Err(err).Msg("Failed to resolve member, keeping grants")
		res.decisions = retainAll(grants, platform.OutcomeTransient)
	}

	if snapshot != nil {
		res.member = snapshot.Member
		res.decisions = r.decideGrants(ctx, logger, roles, snapshot, grants)
	}

	var keys []types.GrantKey
	for _, d := range res.decisions {
		if d.remove {
			keys = append(keys, d.grant.Key())
		}
	}
	if len(keys) == 0 {
		return res
	}

	if err := r.cfg.Store.DeleteGrants(ctx, keys); err != nil {
		logger.Error().Err(err).Int("grants", len(keys)).Msg("Failed to commit grant deletions")
		return res
	}
	res.committed = true
	return res
}

// dropAll deletes every grant without touching the platform
func (r *Reconciler) dropAll(grants []types.Grant, outcome platform.Outcome) []decision {
	out := make([]decision, len(grants))
	for i, g := range grants {
		out[i] = decision{grant: g, outcome: outcome, remove: true}
	}
	return out
}

// decideGrants applies the decision matrix to a resolved member and issues
// a single RemoveRoles call for every role still assigned.
func (r *Reconciler) decideGrants(ctx context.Context, logger zerolog.Logger, roles *roleCache, snapshot *types.MembershipSnapshot, grants []types.Grant) []decision {
	decisions := make([]decision, 0, len(grants))
	var nominal []int

	for _, g := range grants {
		role, err := roles.resolve(ctx, r.cfg.CallTimeout, g.RoleID)
		switch outcome := platform.Classify(err); outcome {
		case platform.OutcomeOK:
			if snapshot.HasRole(g.RoleID) {
				nominal = append(nominal, len(decisions))
				decisions = append(decisions, decision{grant: g, role: role, outcome: platform.OutcomeOK})
			} else {
				decisions = append(decisions, decision{grant: g, role: role, outcome: platform.OutcomeRoleNotAssigned, remove: true})
			}
		case platform.OutcomeRoleNotFound:
			decisions = append(decisions, decision{grant: g, outcome: outcome, remove: true})
		default:
			logger.Warn().Err(err).Str("role_id", g.RoleID).Msg("Failed to resolve role, keeping grant")
			decisions = append(decisions, decision{grant: g, outcome: outcome})
		}
	}

	if len(nominal) == 0 {
		return decisions
	}

	roleIDs := make([]string, len(nominal))
	for i, idx := range nominal {
		roleIDs[i] = decisions[idx].grant.RoleID
	}

	callCtx, cancel := r.callContext(ctx)
	err := r.cfg.Provider.RemoveRoles(callCtx, snapshot.Member, roleIDs, removalReason)
	cancel()

	outcome := platform.Classify(err)
	metrics.RemoveRolesCalls.WithLabelValues(string(outcome)).Inc()
	switch outcome {
	case platform.OutcomeOK:
		for _, idx := range nominal {
			decisions[idx].remove = true
		}
	case platform.OutcomePermissionDenied:
		logger.Error().Err(err).Strs("role_ids", roleIDs).Msg("Permission denied removing expired roles, check the bot's role hierarchy")
		for _, idx := range nominal {
			decisions[idx].outcome = platform.OutcomePermissionDenied
		}
	default:
		// includes a member that left after being resolved; the next run drops the grants
		logger.Warn().Err(err).Strs("role_ids", roleIDs).Msg("Failed to remove expired roles, will retry")
		for _, idx := range nominal {
			decisions[idx].outcome = platform.OutcomeTransient
		}
	}
	return decisions
}

// applySideEffects runs after a member's deletions committed: ledger,
// notification handler, events, then the premium cascade.
func (r *Reconciler) applySideEffects(ctx context.Context, runLog zerolog.Logger, now time.Time, res memberResult) {
	logger := runLog.With().Str("member_id", res.memberID).Logger()
	cascadeDue := false

	for _, d := range res.decisions {
		if !d.remove {
			r.publishDecision(events.EventGrantRetained, d)
			continue
		}
		if d.cascades() {
			cascadeDue = true
		}
		if !d.notifies() {
			r.publishDecision(events.EventGrantDropped, d)
			continue
		}

		tag := d.grant.Class.ExpiredTag()
		if err := r.cfg.Ledger.UpsertNotification(ctx, d.grant.MemberID, tag, now); err != nil {
			logger.Warn().Err(err).Str("tag", tag).Msg("Failed to record notification")
		}
		r.dispatch(ctx, logger, res.member, d)
		r.publishDecision(events.EventGrantExpired, d)
	}

	if cascadeDue && r.cfg.Cascade != nil {
		cctx, cancel := context.WithTimeout(ctx, r.cfg.CascadeTimeout)
		err := r.cfg.Cascade.OnPremiumExpired(cctx, res.memberID)
		cancel()
		if err != nil {
			metrics.CascadeRuns.WithLabelValues("failed").Inc()
			logger.Warn().Err(err).Msg("Premium cascade failed")
		} else {
			metrics.CascadeRuns.WithLabelValues("ok").Inc()
		}
	}
}

func (r *Reconciler) dispatch(ctx context.Context, logger zerolog.Logger, member *types.Member, d decision) {
	if r.cfg.Notify == nil {
		metrics.Notifications.WithLabelValues("skipped").Inc()
		return
	}
	nctx, cancel := r.callContext(ctx)
	defer cancel()

	if err := r.cfg.Notify(nctx, member, d.grant, d.role); err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		logger.Warn().Err(err).Str("role_id", d.grant.RoleID).Msg("Failed to deliver expiry notification")
		return
	}
	metrics.Notifications.WithLabelValues("sent").Inc()
}

func (r *Reconciler) publishRetained(res memberResult) {
	for _, d := range res.decisions {
		r.publishDecision(events.EventGrantRetained, d)
	}
}

func (r *Reconciler) publishDecision(t events.EventType, d decision) {
	r.publish(t, string(d.outcome), map[string]string{
		"member_id": d.grant.MemberID,
		"role_id":   d.grant.RoleID,
		"class":     string(d.grant.Class),
		"outcome":   string(d.outcome),
	})
}

func (r *Reconciler) publish(t events.EventType, msg string, meta map[string]string) {
	if r.cfg.Events == nil {
		return
	}
	r.cfg.Events.Publish(&events.Event{Type: t, Message: msg, Metadata: meta})
}

// roleCache resolves each role at most once per run
type roleCache struct {
	provider platform.MembershipProvider
	mu       sync.Mutex
	entries  map[string]*roleEntry
}

type roleEntry struct {
	once sync.Once
	role *types.Role
	err  error
}

func newRoleCache(p platform.MembershipProvider) *roleCache {
	return &roleCache{provider: p, entries: make(map[string]*roleEntry)}
}

func (c *roleCache) resolve(ctx context.Context, timeout time.Duration, roleID string) (*types.Role, error) {
	c.mu.Lock()
	e, ok := c.entries[roleID]
	if !ok {
		e = &roleEntry{}
		c.entries[roleID] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		e.role, e.err = c.provider.ResolveRole(callCtx, roleID)
	})
	return e.role, e.err
}
