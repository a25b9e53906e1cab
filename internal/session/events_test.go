package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBroadcaster_DeliversToSubscribers(t *testing.T) {
	b := NewBroadcaster(4)
	a, unsubA := b.Subscribe()
	c, unsubC := b.Subscribe()
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: EventRankingStatus, SessionID: "s1"})

	e := <-a
	assert.Equal(t, EventRankingStatus, e.Type)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, "s1", (<-c).SessionID)
}

func TestBroadcaster_DropsSlowSubscriber(t *testing.T) {
	b := NewBroadcaster(1)
	slow, _ := b.Subscribe()

	b.Publish(Event{Type: EventSymptomsChanged})
	b.Publish(Event{Type: EventSymptomsChanged})

	assert.Equal(t, 0, b.Subscribers())
	_, ok := <-slow
	assert.True(t, ok, "buffered event still readable")
	_, ok = <-slow
	assert.False(t, ok, "channel closed after drop")
}

func TestBroadcaster_UnsubscribeTwice(t *testing.T) {
	b := NewBroadcaster(1)
	_, unsub := b.Subscribe()

	unsub()
	unsub()

	assert.Equal(t, 0, b.Subscribers())
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster(1)
	ch, _ := b.Subscribe()

	b.Close()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := b.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}
