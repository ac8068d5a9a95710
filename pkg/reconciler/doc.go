/*
Package reconciler removes platform roles whose time-limited grants have
expired and deletes the grant rows once the platform agrees.

A run is split in two phases. The first phase walks every member with
expired grants, decides each grant against the member's live role set,
strips still-assigned roles with one batched RemoveRoles call per member and
commits that member's deletions in a single store transaction. The second
phase only touches members whose commit succeeded: it writes the
"<class>_expired" ledger tag, calls the notification handler, publishes
events and triggers the premium cascade.

	┌──────────────┐   ┌──────────────┐   ┌──────────────┐
	│ ListExpired  │──▶│ per member:  │──▶│ committed?   │
	│ (filtered)   │   │ resolve,     │   │ ledger,      │
	└──────────────┘   │ decide,      │   │ notify,      │
	                   │ RemoveRoles, │   │ events,      │
	                   │ DeleteGrants │   │ cascade      │
	                   └──────────────┘   └──────────────┘

# Decisions

	member gone                     delete, no notify, cascade if premium
	role gone                       delete, no notify
	role not held                   delete, notify, cascade if premium
	removed                         delete, notify, cascade if premium
	permission denied               keep, error log
	transient                       keep, warn log

Grants are never deleted while the platform may still show the role, and
no member is notified for a deletion that did not commit.

# Stats

A StatsTracker remembers the outcome breakdown of the previous run per
filter. Runs whose breakdown did not change log at debug level, so a
persistent permission problem is loud once and then quiet until it moves.
*/
package reconciler
