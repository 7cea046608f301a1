// Package desktop provides the now-playing desktop notification.
package desktop

import (
	"fmt"
	"strings"
	"time"

	"github.com/osa030/mediad/internal/domain/track"
)

// Config holds notification configuration.
type Config struct {
	AppName string
	Timeout time.Duration // Zero keeps the notification until it is hidden
}

// Notifier shows and hides the now-playing notification.
type Notifier interface {
	Show(nowPlaying track.Track)
	Hide()
	Close() error
}

// Noop discards notifications.
type Noop struct{}

func (Noop) Show(track.Track) {}
func (Noop) Hide()            {}
func (Noop) Close() error     { return nil }

// describe returns the summary and body of the notification for t.
func describe(t track.Track) (string, string) {
	summary := t.Title
	if summary == "" {
		summary = "Now playing"
	}

	parts := []string{t.DisplayArtist()}
	if t.Album != "" {
		parts = append(parts, t.Album)
	}
	body := strings.Join(parts, " / ")
	if t.Duration > 0 {
		body += fmt.Sprintf(" (%d:%02d)", int(t.Duration.Minutes()), int(t.Duration.Seconds())%60)
	}
	return summary, body
}
