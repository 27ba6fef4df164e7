package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("no value received")
		return 0
	}
}

func TestSubscribe_ReplaysLatestValue(t *testing.T) {
	s := NewStream[int]()
	s.Publish(1)
	s.Publish(2)

	ch, cancel := s.Subscribe()
	defer cancel()
	assert.Equal(t, 2, receive(t, ch))
}

func TestSubscribe_EmptyStreamDeliversNothingUntilPublish(t *testing.T) {
	s := NewStream[int]()
	ch, cancel := s.Subscribe()
	defer cancel()

	select {
	case v := <-ch:
		t.Fatalf("unexpected value %d before first publish", v)
	default:
	}

	s.Publish(7)
	assert.Equal(t, 7, receive(t, ch))
}

func TestPublish_SlowSubscriberGetsLatestNotBacklog(t *testing.T) {
	s := NewStream[int]()
	ch, cancel := s.Subscribe()
	defer cancel()

	// Subscriber never drains between publishes; only the newest value
	// must survive.
	s.Publish(1)
	s.Publish(2)
	s.Publish(3)
	assert.Equal(t, 3, receive(t, ch))
}

func TestCancel_ReleasesSubscription(t *testing.T) {
	s := NewStream[int]()
	_, cancel := s.Subscribe()
	cancel()

	require.NotPanics(t, func() { s.Publish(1) })
}
