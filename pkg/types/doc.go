/*
Package types defines the data structures shared by every rolesweep package.

Grants are the persisted side of a time-bounded role: who holds which role,
until when, and of which class. Members, roles and communities are handles
resolved from the external platform and are never persisted. A
MembershipSnapshot is rebuilt on every reconciliation run, once per member,
and reused for all of that member's grants.

# Grant Classes

	premium  paid entitlement; expiry triggers the delegation cascade
	mute     temporary mute
	other    anything else issued with an expiry

The class also drives the notification ledger tag, for example
"premium_expired".

# Filters

A Filter scopes one run to a class and/or an explicit set of role ids. Runs
with different filters touch disjoint grants and may execute concurrently.
Filter.Key is stable regardless of role id order and is used to key run
statistics between runs.
*/
package types
