/*
Package health probes the dependencies rolesweep needs between runs.

A Monitor runs each Checker on an interval and reports the result to the
metrics health registry, so /ready reflects storage and platform reachability
even while no reconciliation is in flight. A component turns unhealthy only
after Config.Retries consecutive failures and recovers on the first success:

	mon := health.NewMonitor(health.DefaultConfig(),
		health.StorageChecker{Store: store},
		health.PlatformChecker{Provider: client},
	)
	mon.Start()
	defer mon.Stop()
*/
package health
