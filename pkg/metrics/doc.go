/*
Package metrics exposes Prometheus metrics and health endpoints for rolesweep.

All collectors are package-level and registered with the default registry in
init. NewServeMux mounts them next to the health endpoints:

	/metrics  Prometheus exposition
	/health   200 while every registered component is healthy, 503 otherwise
	/ready    200 once storage and platform are registered and healthy
	/live     200 while the process runs

# Reconciliation Metrics

  - rolesweep_grants_reconciled_total{class,outcome}: one increment per grant
    per run, outcome is ok, member_not_found, role_not_found,
    role_not_assigned, permission_denied, transient or commit_failed
  - rolesweep_reconciliation_duration_seconds{filter}
  - rolesweep_reconciliation_runs_total{filter,result}
  - rolesweep_remove_roles_calls_total{result}: one per member batch
  - rolesweep_notifications_total{result}
  - rolesweep_cascade_total{result}

# Inventory Metrics

The Collector polls the grant store and publishes rolesweep_grants_total and
rolesweep_grants_expired_pending per class. A steadily growing pending gauge
means a schedule is failing to drain its grants, typically a permission
problem on the platform side.

# Timing

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ReconciliationDuration, filter.Key())
*/
package metrics
