package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversToAccountSubscribers(t *testing.T) {
	hub := NewHub()
	alice, cancelAlice := hub.Subscribe("alice")
	defer cancelAlice()
	bob, cancelBob := hub.Subscribe("bob")
	defer cancelBob()

	hub.Notify(Event{AccountID: "alice", SpinID: "s1"})

	select {
	case e := <-alice:
		assert.Equal(t, "s1", e.SpinID)
	default:
		t.Fatal("alice did not receive the event")
	}
	assert.Empty(t, bob)
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("alice")
	defer cancel()

	for i := 0; i < subscriberBuffer+5; i++ {
		hub.Notify(Event{AccountID: "alice"})
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("alice")
	require.Equal(t, 1, hub.Subscribers("alice"))

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers("alice"))

	hub.Notify(Event{AccountID: "alice"})
}
