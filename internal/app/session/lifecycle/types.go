// Package lifecycle tracks whether the service may be torn down.
package lifecycle

// TimerState represents the delayed-stop timer state.
type TimerState int

const (
	TimerIdle  TimerState = iota // No stop pending
	TimerArmed                   // Stop will fire unless re-armed or cancelled
	TimerFired                   // The last arm period elapsed
)

// String returns the string representation of the timer state.
func (t TimerState) String() string {
	switch t {
	case TimerIdle:
		return "idle"
	case TimerArmed:
		return "armed"
	case TimerFired:
		return "fired"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time copy of the counter.
type Snapshot struct {
	Started         bool
	Attached        int
	Timer           TimerState
	Generation      uint64
	PendingTeardown bool
}
