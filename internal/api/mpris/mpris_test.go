//go:build linux

package mpris

import (
	"context"
	"testing"
	"time"

	"github.com/quarckster/go-mpris-server/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/mediad/internal/app/playback"
	"github.com/osa030/mediad/internal/app/session"
	"github.com/osa030/mediad/internal/domain/track"
)

type fakeController struct {
	snapshot session.Snapshot
	calls    []string
	seekTo   time.Duration
}

func (f *fakeController) Play() error         { f.calls = append(f.calls, "play"); return nil }
func (f *fakeController) Pause() error        { f.calls = append(f.calls, "pause"); return nil }
func (f *fakeController) Stop() error         { f.calls = append(f.calls, "stop"); return nil }
func (f *fakeController) SkipNext() error     { f.calls = append(f.calls, "next"); return nil }
func (f *fakeController) SkipPrevious() error { f.calls = append(f.calls, "previous"); return nil }
func (f *fakeController) Seek(position time.Duration) error {
	f.calls = append(f.calls, "seek")
	f.seekTo = position
	return nil
}
func (f *fakeController) Status(context.Context) (session.Snapshot, error) {
	return f.snapshot, nil
}

func TestPlayerAdapter_PlayPause(t *testing.T) {
	tests := []struct {
		state playback.State
		want  string
	}{
		{playback.StatePlaying, "pause"},
		{playback.StatePaused, "play"},
		{playback.StateStopped, "play"},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			c := &fakeController{snapshot: session.Snapshot{Playback: playback.Status{State: tt.state}}}
			p := &playerAdapter{controller: c}
			require.NoError(t, p.PlayPause())
			assert.Equal(t, []string{tt.want}, c.calls)
		})
	}
}

func TestPlayerAdapter_SeekIsRelative(t *testing.T) {
	c := &fakeController{snapshot: session.Snapshot{Playback: playback.Status{State: playback.StatePlaying, Position: 10 * time.Second}}}
	p := &playerAdapter{controller: c}

	require.NoError(t, p.Seek(types.Microseconds(5_000_000)))
	assert.Equal(t, 15*time.Second, c.seekTo)

	require.NoError(t, p.SetPosition("", types.Microseconds(2_000_000)))
	assert.Equal(t, 2*time.Second, c.seekTo)
}

func TestPlayerAdapter_Metadata(t *testing.T) {
	np := track.Track{ID: "a", Title: "Song", Artist: "Band", Album: "Record", Duration: time.Minute}
	c := &fakeController{snapshot: session.Snapshot{
		NowPlaying: &np,
		Queue:      []track.Track{np, {ID: "b"}},
		QueueIndex: 0,
	}}
	p := &playerAdapter{controller: c}

	meta, err := p.Metadata()
	require.NoError(t, err)
	assert.Equal(t, "Song", meta.Title)
	assert.Equal(t, []string{"Band"}, meta.Artist)
	assert.Equal(t, types.Microseconds(60_000_000), meta.Length)

	next, err := p.CanGoNext()
	require.NoError(t, err)
	assert.True(t, next)
	prev, err := p.CanGoPrevious()
	require.NoError(t, err)
	assert.False(t, prev)
}

func TestPlaybackStatus(t *testing.T) {
	assert.Equal(t, types.PlaybackStatusPlaying, playbackStatus(playback.StateBuffering))
	assert.Equal(t, types.PlaybackStatusPaused, playbackStatus(playback.StatePaused))
	assert.Equal(t, types.PlaybackStatusStopped, playbackStatus(playback.StateError))
}
