// Package playback provides the playback state machine that owns the session's
// playback status and drives a pluggable audio backend.
package playback

// State represents the playback state.
type State int

const (
	StateNone         State = iota // Nothing loaded yet
	StateBuffering                 // Backend is preparing a track
	StatePlaying                   // Track is playing
	StatePaused                    // Track is paused
	StateStopped                   // Playback stopped, queue kept
	StateSkippingNext              // Moving to the next queue item
	StateSkippingPrev              // Moving to the previous queue item
	StateError                     // Playback failed, see Status.Error
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateSkippingNext:
		return "skipping_next"
	case StateSkippingPrev:
		return "skipping_prev"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// IsActive reports whether the state counts as ongoing playback for the
// notification trigger.
func (s State) IsActive() bool {
	switch s {
	case StateBuffering, StatePlaying, StatePaused, StateSkippingNext, StateSkippingPrev:
		return true
	default:
		return false
	}
}

// ParseState returns the state named by s.
func ParseState(s string) (State, bool) {
	for st := StateNone; st <= StateError; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return StateNone, false
}
