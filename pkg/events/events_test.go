package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub Subscriber) *Event {
	t.Helper()
	select {
	case ev := <-sub:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestBrokerDelivers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Publish(&Event{Type: EventGrantExpired, Metadata: map[string]string{"member_id": "m1"}})

	ev := receive(t, sub)
	assert.Equal(t, EventGrantExpired, ev.Type)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Timestamp.IsZero())
	assert.Equal(t, "m1", ev.Metadata["member_id"])
}

func TestBrokerFiltersByType(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	dropped := b.Subscribe(EventGrantDropped)
	all := b.Subscribe()

	b.Publish(&Event{Type: EventGrantExpired})
	b.Publish(&Event{Type: EventGrantDropped})

	assert.Equal(t, EventGrantExpired, receive(t, all).Type)
	assert.Equal(t, EventGrantDropped, receive(t, all).Type)
	assert.Equal(t, EventGrantDropped, receive(t, dropped).Type)

	select {
	case ev := <-dropped:
		t.Fatalf("unexpected event %s", ev.Type)
	default:
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub
	assert.False(t, open)
}

func TestPublishNeverBlocks(t *testing.T) {
	b := NewBroker()
	// not started: the queue fills and further events are dropped

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(b.eventCh)+10; i++ {
			b.Publish(&Event{Type: EventRunCompleted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked")
	}
	assert.Equal(t, uint64(10), b.Dropped())
	b.Stop()
	b.Stop()
}
