package playback

import (
	"time"

	"github.com/osa030/mediad/internal/domain/track"
)

// Direction is the direction of a skip request.
type Direction int

const (
	DirectionNext     Direction = 1
	DirectionPrevious Direction = -1
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	switch d {
	case DirectionNext:
		return "next"
	case DirectionPrevious:
		return "previous"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the playback status.
type Status struct {
	State         State
	Position      time.Duration // Offset into the active track
	Sequence      uint64        // Incremented on every committed transition
	ActiveTrackID string
	Error         string // Non-empty iff State is StateError
	UpdatedAt     time.Time
}

// Callback receives state machine notifications on the owner goroutine.
type Callback interface {
	OnPlaybackStateUpdated(status Status)
	OnPlaybackStart()
	OnPlaybackStop()
}

// Queue is the play queue as seen by the state machine.
type Queue interface {
	Current() (track.Track, bool)
	// Skip moves the cursor and reports whether the index changed.
	Skip(delta int) bool
}
