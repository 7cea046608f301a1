// Package playlist provides the Playlist domain entity, a titled snapshot of
// the play queue handed to clients.
package playlist

import (
	"time"

	"github.com/osa030/mediad/internal/domain/track"
)

// Playlist represents the play queue as seen by clients.
type Playlist struct {
	Title  string        // Human-readable queue title
	Tracks []track.Track // Queue items in play order
}

// TrackIDs returns all track IDs in the playlist.
func (p *Playlist) TrackIDs() []string {
	ids := make([]string, len(p.Tracks))
	for i, t := range p.Tracks {
		ids[i] = t.ID
	}
	return ids
}

// TotalDuration returns the total duration of all tracks.
func (p *Playlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, t := range p.Tracks {
		total += t.Duration
	}
	return total
}

// Len returns the number of items.
func (p *Playlist) Len() int {
	return len(p.Tracks)
}
