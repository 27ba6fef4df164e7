package events

import (
	"sync"
)

// Stream is a single-writer, multi-reader broadcast primitive with
// replay-latest semantics: every new subscriber immediately receives the most
// recently published value, then all subsequent ones. It backs the state
// machine's state stream and the repository's active-playlist stream.
type Stream[T any] struct {
	mu       sync.RWMutex
	latest   T
	hasValue bool
	subs     map[int]chan T
	nextID   int
}

// NewStream creates an empty stream.
func NewStream[T any]() *Stream[T] {
	return &Stream[T]{
		subs: make(map[int]chan T),
	}
}

// Publish broadcasts v to all subscribers and records it as the latest value.
// Slow subscribers are not waited on: if a subscriber's buffer is full, its
// stale pending value is replaced by the new one (latest-wins).
func (s *Stream[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest = v
	s.hasValue = true

	for _, ch := range s.subs {
		select {
		case ch <- v:
		default:
			// Drop the stale value and retry with the fresh one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}

// Subscribe registers a new subscriber. The returned channel carries the
// current latest value (if any) followed by future publishes. The cancel
// function must be called to release the subscription.
func (s *Stream[T]) Subscribe() (<-chan T, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	ch := make(chan T, 1)
	if s.hasValue {
		ch <- s.latest
	}
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Latest returns the most recently published value and whether one exists.
func (s *Stream[T]) Latest() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.hasValue
}
