package fsm

import "fmt"

// StateKind enumerates the device lifecycle states.
type StateKind string

const (
	StateInit           StateKind = "INIT"
	StateAuthenticating StateKind = "AUTHENTICATING"
	StateRegistered     StateKind = "REGISTERED"
	StateSyncing        StateKind = "SYNCING"
	StateReady          StateKind = "READY"
	StatePlaying        StateKind = "PLAYING"
	StateOfflinePlaying StateKind = "OFFLINE_PLAYING"
	StateDegradedMode   StateKind = "DEGRADED_MODE"
	StateErrorRecovery  StateKind = "ERROR_RECOVERY"
	StateSafeMode       StateKind = "SAFE_MODE"
	StateUpdating       StateKind = "UPDATING"
	StateRebooting      StateKind = "REBOOTING"
)

// State is a lifecycle state plus its variant payload. Only the fields
// belonging to the Kind are set, so values stay comparable and transitions
// can be detected with plain equality.
type State struct {
	Kind StateKind

	// Reason is set for DEGRADED_MODE.
	Reason string
	// Attempt is set for ERROR_RECOVERY.
	Attempt int
	// Error is set for SAFE_MODE.
	Error string
}

func (s State) String() string {
	switch s.Kind {
	case StateDegradedMode:
		return fmt.Sprintf("%s(%s)", s.Kind, s.Reason)
	case StateErrorRecovery:
		return fmt.Sprintf("%s(attempt=%d)", s.Kind, s.Attempt)
	case StateSafeMode:
		return fmt.Sprintf("%s(%s)", s.Kind, s.Error)
	default:
		return string(s.Kind)
	}
}

// Initial is the state every machine starts in.
func Initial() State {
	return State{Kind: StateInit}
}

func degraded(reason string) State {
	return State{Kind: StateDegradedMode, Reason: reason}
}

func errorRecovery(attempt int) State {
	return State{Kind: StateErrorRecovery, Attempt: attempt}
}

func safeMode(err string) State {
	return State{Kind: StateSafeMode, Error: err}
}
