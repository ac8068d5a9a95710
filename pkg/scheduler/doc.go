/*
Package scheduler runs reconciliation passes on cron schedules.

Each schedule names a cron expression (standard five fields or descriptors
such as "@every 5m") and a grant filter. Every run started by the scheduler,
whether from a tick or from RunNow, shares one StatsTracker, and two runs
whose filters could select the same grant never execute at the same time:

	sched := scheduler.NewScheduler(rec, reconciler.NewStatsTracker())
	_ = sched.Add(scheduler.Schedule{
		Name:   "premium",
		Spec:   "@every 5m",
		Filter: types.Filter{Class: types.GrantClassPremium},
	})
	sched.Start()
	defer sched.Stop(ctx)

A tick that finds a conflicting run in flight is skipped rather than queued.
*/
package scheduler
