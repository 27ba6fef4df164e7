package fsm

import "fmt"

// EventKind enumerates the events that drive lifecycle transitions.
type EventKind string

const (
	// System events
	EventBootCompleted    EventKind = "BootCompleted"
	EventNetworkAvailable EventKind = "NetworkAvailable"
	EventNetworkLost      EventKind = "NetworkLost"

	// Auth events
	EventRegistrationSuccess EventKind = "RegistrationSuccess"
	EventRegistrationFailed  EventKind = "RegistrationFailed"

	// Sync events
	EventPlaylistUpdateFound EventKind = "PlaylistUpdateFound"
	EventSyncCompleted       EventKind = "SyncCompleted"
	EventSyncFailed          EventKind = "SyncFailed"

	// Playback events
	EventPlaybackStarted EventKind = "PlaybackStarted"
	EventMediaError      EventKind = "MediaError"

	// Critical events
	EventCriticalError   EventKind = "CriticalError"
	EventWatchdogTimeout EventKind = "WatchdogTimeout"
	EventUpdateReceived  EventKind = "UpdateReceived"
)

// Event is an event plus its variant payload.
type Event struct {
	Kind EventKind

	// MediaID is set for MediaError.
	MediaID string
	// Error is set for MediaError and CriticalError.
	Error string
}

func (e Event) String() string {
	switch e.Kind {
	case EventMediaError:
		return fmt.Sprintf("%s(media=%s)", e.Kind, e.MediaID)
	case EventCriticalError:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Error)
	default:
		return string(e.Kind)
	}
}

// Simple constructors for the payload-free events.

func BootCompleted() Event       { return Event{Kind: EventBootCompleted} }
func NetworkAvailable() Event    { return Event{Kind: EventNetworkAvailable} }
func NetworkLost() Event         { return Event{Kind: EventNetworkLost} }
func RegistrationSuccess() Event { return Event{Kind: EventRegistrationSuccess} }
func RegistrationFailed() Event  { return Event{Kind: EventRegistrationFailed} }
func PlaylistUpdateFound() Event { return Event{Kind: EventPlaylistUpdateFound} }
func SyncCompleted() Event       { return Event{Kind: EventSyncCompleted} }
func SyncFailed() Event          { return Event{Kind: EventSyncFailed} }
func PlaybackStarted() Event     { return Event{Kind: EventPlaybackStarted} }
func WatchdogTimeout() Event     { return Event{Kind: EventWatchdogTimeout} }
func UpdateReceived() Event      { return Event{Kind: EventUpdateReceived} }

// MediaError reports a decode or render failure of a specific item.
func MediaError(mediaID string, err error) Event {
	e := Event{Kind: EventMediaError, MediaID: mediaID}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// CriticalError reports an unexpected fault.
func CriticalError(err error) Event {
	e := Event{Kind: EventCriticalError}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}
