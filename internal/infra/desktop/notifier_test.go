package desktop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/mediad/internal/domain/track"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name        string
		track       track.Track
		wantSummary string
		wantBody    string
	}{
		{
			name:        "full metadata",
			track:       track.Track{Title: "Song", Artist: "Band", Album: "Record", Duration: 3*time.Minute + 7*time.Second},
			wantSummary: "Song",
			wantBody:    "Band / Record (3:07)",
		},
		{
			name:        "no artist or album",
			track:       track.Track{Title: "Song"},
			wantSummary: "Song",
			wantBody:    "Unknown Artist",
		},
		{
			name:        "no title",
			track:       track.Track{Artist: "Band"},
			wantSummary: "Now playing",
			wantBody:    "Band",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, body := describe(tt.track)
			assert.Equal(t, tt.wantSummary, summary)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestNoop(t *testing.T) {
	var n Notifier = Noop{}
	n.Show(track.Track{ID: "a"})
	n.Hide()
	assert.NoError(t, n.Close())
}
