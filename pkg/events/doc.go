/*
Package events provides an in-process event feed for reconciliation results.

The reconciler publishes an event for every grant it deletes or retains, and
one event per finished run. Events are only published after the deletion they
describe has been committed, so a subscriber never observes an expiry that
could still be rolled back.

Publish never blocks the reconciler. When the broker's queue or a
subscriber's buffer is full the event is dropped and counted; the feed is
informational and carries no correctness guarantees.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe(events.EventGrantExpired, events.EventGrantDropped)
	for ev := range sub {
		fmt.Println(ev.Type, ev.Metadata["member_id"], ev.Metadata["role_id"])
	}
*/
package events
