package fsm

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sobremidia/player/pkg/events"
)

// Next is the pure transition function. It performs no I/O and never blocks,
// which keeps every transition trivially testable.
//
// Known quirks carried over deliberately (see DESIGN.md): REGISTERED falls
// through to SYNCING on any unhandled event, and RegistrationFailed loops
// AUTHENTICATING back onto itself with no attempt counter; backoff for the
// auth retry loop lives with the caller.
func Next(current State, event Event) State {
	switch current.Kind {
	case StateInit:
		switch event.Kind {
		case EventBootCompleted:
			return State{Kind: StateAuthenticating}
		case EventCriticalError:
			return safeMode(event.Error)
		}
		return current

	case StateAuthenticating:
		switch event.Kind {
		case EventRegistrationSuccess:
			return State{Kind: StateRegistered}
		case EventRegistrationFailed:
			return State{Kind: StateAuthenticating}
		case EventCriticalError:
			return safeMode(event.Error)
		}
		return current

	case StateRegistered:
		switch event.Kind {
		case EventSyncCompleted:
			return State{Kind: StateReady}
		case EventPlaylistUpdateFound:
			return State{Kind: StateSyncing}
		}
		// Default to syncing after registration.
		return State{Kind: StateSyncing}

	case StateSyncing:
		switch event.Kind {
		case EventSyncCompleted:
			return State{Kind: StateReady}
		case EventSyncFailed:
			// Graceful degrade, not an error: fall back to cached content.
			return State{Kind: StateOfflinePlaying}
		case EventCriticalError:
			return errorRecovery(1)
		}
		return current

	case StateReady:
		switch event.Kind {
		case EventPlaybackStarted:
			return State{Kind: StatePlaying}
		case EventNetworkLost:
			return State{Kind: StateOfflinePlaying}
		case EventPlaylistUpdateFound:
			return State{Kind: StateSyncing}
		}
		return current

	case StatePlaying:
		switch event.Kind {
		case EventNetworkLost:
			return State{Kind: StateOfflinePlaying}
		case EventMediaError:
			return degraded("media failure: " + event.MediaID)
		case EventCriticalError:
			return errorRecovery(1)
		case EventUpdateReceived:
			return State{Kind: StateUpdating}
		}
		return current

	case StateOfflinePlaying:
		switch event.Kind {
		case EventNetworkAvailable:
			return State{Kind: StatePlaying}
		case EventCriticalError:
			// Remote unreachable and local playback dying: restart the device.
			return State{Kind: StateRebooting}
		}
		return current

	case StateDegradedMode:
		switch event.Kind {
		case EventPlaybackStarted:
			return State{Kind: StatePlaying}
		case EventCriticalError:
			return errorRecovery(1)
		}
		return current

	case StateErrorRecovery:
		switch event.Kind {
		case EventSyncCompleted:
			return State{Kind: StateReady}
		case EventCriticalError:
			return safeMode(event.Error)
		}
		return current

	case StateSafeMode:
		// Terminal: requires external intervention.
		return current

	case StateUpdating:
		return current

	case StateRebooting:
		return current
	}

	return current
}

// Transition is one published state change.
type Transition struct {
	From  State
	To    State
	Event Event
}

// Machine owns the current lifecycle state. Every other component emits
// events into it and reads (or subscribes to) its state to gate behavior.
type Machine struct {
	mu      sync.Mutex
	current State
	stream  *events.Stream[Transition]
	logger  *zap.Logger
}

// NewMachine creates a machine in the INIT state.
func NewMachine(logger *zap.Logger) *Machine {
	return &Machine{
		current: Initial(),
		stream:  events.NewStream[Transition](),
		logger:  logger.Named("fsm"),
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Dispatch applies event to the current state. A transition is only published
// and logged when the computed state differs from the current one; idempotent
// no-ops are silent.
func (m *Machine) Dispatch(event Event) State {
	m.mu.Lock()
	old := m.current
	next := Next(old, event)
	if next == old {
		m.mu.Unlock()
		return old
	}
	m.current = next
	m.mu.Unlock()

	m.logger.Info("state transition",
		zap.String("from", old.String()),
		zap.String("to", next.String()),
		zap.String("event", event.String()),
	)
	m.stream.Publish(Transition{From: old, To: next, Event: event})
	return next
}

// Subscribe returns a replay-latest stream of transitions.
func (m *Machine) Subscribe() (<-chan Transition, func()) {
	return m.stream.Subscribe()
}
