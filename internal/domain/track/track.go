// Package track provides the Track domain entity and the media id scheme of
// the browse hierarchy.
package track

import (
	"strings"
	"time"
)

// Track represents one node of the browse hierarchy.
// Browsable nodes group other tracks; playable nodes carry a source locator.
// Tracks are created when the catalog is loaded and are never mutated afterwards.
type Track struct {
	ID        string        // Media ID
	Title     string        // Display title
	Artist    string        // Artist name
	Album     string        // Album name
	Genre     string        // Genre used for grouping
	Duration  time.Duration // Track duration (zero if unknown)
	Source    string        // Source locator (file path, URI)
	ArtURL    string        // Album art URL
	ParentID  string        // Media ID of the grouping node
	Browsable bool          // Has children
	Playable  bool          // Can be handed to a playback backend
}

// Matches reports whether the query matches title, artist, album or genre
// case-insensitively. An empty query matches nothing.
func (t *Track) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return false
	}
	for _, field := range []string{t.Title, t.Artist, t.Album, t.Genre} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// DisplayArtist returns the artist or a placeholder.
func (t *Track) DisplayArtist() string {
	if t.Artist == "" {
		return "Unknown Artist"
	}
	return t.Artist
}
