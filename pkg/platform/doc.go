/*
Package platform adapts the external community platform to rolesweep.

The reconciler only sees MembershipProvider and the sentinel errors declared
here. Everything platform specific, HTTP status codes included, is mapped at
this boundary:

	404 on a member endpoint    ErrMemberNotFound
	role absent from role list  ErrRoleNotFound
	401, 403                    ErrPermissionDenied
	429, 5xx, transport, ctx    ErrTransient

Classify turns any returned error into an Outcome so the reconciler's
decision matrix can switch over a closed set of values. A timeout is never
read as success or failure of a mutation; it is Transient and the grant is
kept for the next run.

# REST Endpoints

	GET  /communities/{c}
	GET  /communities/{c}/members/{m}              member with current roles
	GET  /communities/{c}/roles
	POST /communities/{c}/members/{m}/roles/remove  {"role_ids": [...]}
	POST /users/{m}/messages
	POST /channels/{ch}/messages

Role removal is a single request per member carrying every role id; the
reason is sent in the X-Audit-Log-Reason header. All requests share one
token bucket limiter so a large backlog cannot trip the platform's own rate
limits.
*/
package platform
