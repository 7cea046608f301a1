//go:build linux

// Package mpris exposes the media session on the D-Bus MPRIS interface.
package mpris

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/server"
	"github.com/quarckster/go-mpris-server/pkg/types"

	"github.com/osa030/mediad/internal/app/playback"
	"github.com/osa030/mediad/internal/app/session"
)

const statusTimeout = time.Second

// Controller is the part of the session coordinator driven over MPRIS.
type Controller interface {
	Play() error
	Pause() error
	Stop() error
	SkipNext() error
	SkipPrevious() error
	Seek(position time.Duration) error
	Status(ctx context.Context) (session.Snapshot, error)
}

// Adapter connects a session to MPRIS over D-Bus.
type Adapter struct {
	server *server.Server
}

// New creates and starts a new MPRIS adapter.
func New(identity string, controller Controller) (*Adapter, error) {
	a := &Adapter{
		server: server.NewServer(identity, &rootAdapter{identity: identity}, &playerAdapter{controller: controller}),
	}

	go func() {
		_ = a.server.Listen()
	}()

	return a, nil
}

// Close stops the adapter and releases D-Bus resources.
func (a *Adapter) Close() error {
	return a.server.Stop()
}

// rootAdapter implements OrgMprisMediaPlayer2Adapter.
type rootAdapter struct {
	identity string
}

func (r *rootAdapter) Raise() error                { return nil }
func (r *rootAdapter) Quit() error                 { return nil }
func (r *rootAdapter) CanQuit() (bool, error)      { return false, nil }
func (r *rootAdapter) CanRaise() (bool, error)     { return false, nil }
func (r *rootAdapter) HasTrackList() (bool, error) { return false, nil }
func (r *rootAdapter) Identity() (string, error)   { return r.identity, nil }

//nolint:revive // Method name required by interface.
func (r *rootAdapter) SupportedUriSchemes() ([]string, error) {
	return []string{"file"}, nil
}

func (r *rootAdapter) SupportedMimeTypes() ([]string, error) {
	return []string{"audio/mpeg", "audio/flac", "audio/wav"}, nil
}

// playerAdapter implements OrgMprisMediaPlayer2PlayerAdapter.
type playerAdapter struct {
	controller Controller
}

func (p *playerAdapter) snapshot() (session.Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()
	return p.controller.Status(ctx)
}

func (p *playerAdapter) Next() error     { return p.controller.SkipNext() }
func (p *playerAdapter) Previous() error { return p.controller.SkipPrevious() }
func (p *playerAdapter) Pause() error    { return p.controller.Pause() }
func (p *playerAdapter) Stop() error     { return p.controller.Stop() }
func (p *playerAdapter) Play() error     { return p.controller.Play() }

func (p *playerAdapter) PlayPause() error {
	s, err := p.snapshot()
	if err != nil {
		return err
	}
	if s.Playback.State == playback.StatePlaying {
		return p.controller.Pause()
	}
	return p.controller.Play()
}

func (p *playerAdapter) Seek(offset types.Microseconds) error {
	s, err := p.snapshot()
	if err != nil {
		return err
	}
	return p.controller.Seek(s.Playback.Position + time.Duration(offset)*time.Microsecond)
}

func (p *playerAdapter) SetPosition(_ string, position types.Microseconds) error {
	return p.controller.Seek(time.Duration(position) * time.Microsecond)
}

//nolint:revive // Method name required by interface.
func (p *playerAdapter) OpenUri(_ string) error {
	return nil
}

func (p *playerAdapter) PlaybackStatus() (types.PlaybackStatus, error) {
	s, err := p.snapshot()
	if err != nil {
		return types.PlaybackStatusStopped, err
	}
	return playbackStatus(s.Playback.State), nil
}

func (p *playerAdapter) Rate() (float64, error)  { return 1.0, nil }
func (p *playerAdapter) SetRate(_ float64) error { return nil }

func (p *playerAdapter) Metadata() (types.Metadata, error) {
	s, err := p.snapshot()
	if err != nil || s.NowPlaying == nil {
		return types.Metadata{}, err
	}
	t := s.NowPlaying

	meta := types.Metadata{
		TrackId: dbus.ObjectPath(formatTrackID(t.ID)),
		Length:  types.Microseconds(t.Duration.Microseconds()),
		Title:   t.Title,
		Album:   t.Album,
		ArtUrl:  t.ArtURL,
	}
	if t.Artist != "" {
		meta.Artist = []string{t.Artist}
	}
	return meta, nil
}

func (p *playerAdapter) Volume() (float64, error)  { return 1.0, nil }
func (p *playerAdapter) SetVolume(_ float64) error { return nil }

func (p *playerAdapter) Position() (int64, error) {
	s, err := p.snapshot()
	if err != nil {
		return 0, err
	}
	return s.Playback.Position.Microseconds(), nil
}

func (p *playerAdapter) MinimumRate() (float64, error) { return 1.0, nil }
func (p *playerAdapter) MaximumRate() (float64, error) { return 1.0, nil }

func (p *playerAdapter) CanGoNext() (bool, error) {
	s, err := p.snapshot()
	if err != nil {
		return false, err
	}
	return s.QueueIndex >= 0 && s.QueueIndex < len(s.Queue)-1, nil
}

func (p *playerAdapter) CanGoPrevious() (bool, error) {
	s, err := p.snapshot()
	if err != nil {
		return false, err
	}
	return s.QueueIndex > 0, nil
}

func (p *playerAdapter) CanPlay() (bool, error) {
	s, err := p.snapshot()
	if err != nil {
		return false, err
	}
	return len(s.Queue) > 0, nil
}

func (p *playerAdapter) CanPause() (bool, error)   { return true, nil }
func (p *playerAdapter) CanSeek() (bool, error)    { return true, nil }
func (p *playerAdapter) CanControl() (bool, error) { return true, nil }

func playbackStatus(state playback.State) types.PlaybackStatus {
	switch state {
	case playback.StatePlaying, playback.StateBuffering, playback.StateSkippingNext, playback.StateSkippingPrev:
		return types.PlaybackStatusPlaying
	case playback.StatePaused:
		return types.PlaybackStatusPaused
	default:
		return types.PlaybackStatusStopped
	}
}

func formatTrackID(id string) string {
	h := fnv.New64a()
	h.Write([]byte(id))
	return fmt.Sprintf("/org/mpris/MediaPlayer2/Track/%x", h.Sum64())
}
