package lifecycle

import (
	"sync"
)

// Counter holds the process-wide lifecycle state with thread-safe access.
// The generation number identifies the current arm period: arming or
// cancelling starts a new one, so a fire from an older period is rejected.
type Counter struct {
	mu sync.RWMutex

	started         bool
	attached        int
	timer           TimerState
	generation      uint64
	pendingTeardown bool
}

// New creates a new counter with no clients and no timer armed.
func New() *Counter {
	return &Counter{
		timer: TimerIdle,
	}
}

// MarkStarted sets the sticky started flag.
func (c *Counter) MarkStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
}

// ClearStarted clears the started flag.
func (c *Counter) ClearStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
}

// IsStarted returns true if the service was explicitly started.
func (c *Counter) IsStarted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.started
}

// Attach records a client attachment and returns the new count.
func (c *Counter) Attach() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached++
	return c.attached
}

// Detach records a client detachment and returns the new count.
func (c *Counter) Detach() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attached > 0 {
		c.attached--
	}
	return c.attached
}

// Attached returns the number of attached clients.
func (c *Counter) Attached() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attached
}

// Arm starts a new arm period and returns its generation.
func (c *Counter) Arm() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.timer = TimerArmed
	return c.generation
}

// Cancel invalidates the current arm period.
func (c *Counter) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.timer = TimerIdle
}

// Fire consumes the arm period identified by generation. It returns false if
// the period was re-armed, cancelled or already fired.
func (c *Counter) Fire(generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != TimerArmed || generation != c.generation {
		return false
	}
	c.timer = TimerFired
	return true
}

// IsArmed returns true while a stop is pending.
func (c *Counter) IsArmed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timer == TimerArmed
}

// SetPendingTeardown records a teardown deferred until playback leaves PLAYING.
func (c *Counter) SetPendingTeardown(pending bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingTeardown = pending
}

// PendingTeardown returns true if a teardown is deferred.
func (c *Counter) PendingTeardown() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pendingTeardown
}

// Snapshot returns a copy of the counter state.
func (c *Counter) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Started:         c.started,
		Attached:        c.attached,
		Timer:           c.timer,
		Generation:      c.generation,
		PendingTeardown: c.pendingTeardown,
	}
}
