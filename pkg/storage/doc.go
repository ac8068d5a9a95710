/*
Package storage provides BoltDB-backed persistence for grants, the
notification ledger and premium delegations.

# Buckets

	grants         <member>\x00<role>              → Grant (JSON)
	notifications  <member>\x00<tag>               → NotificationRecord (JSON)
	delegations    <owner>\x00<delegate>\x00<role> → Delegation (JSON)

Composite keys make (member, role) unique and let delegations be scanned by
owner with a cursor prefix seek.

# Transactions

Every write method runs in its own bbolt Update transaction. DeleteGrants
takes a batch of keys and deletes them atomically: the reconciler commits
all deletions for one member in a single call, so a commit failure leaves
that member's grants untouched. bbolt serializes writers, so concurrent
reconciliation runs for different filters commit one after another without
further coordination.

The store holds an exclusive file lock while open. A second process opening
the same data directory fails after a short timeout instead of blocking.
*/
package storage
