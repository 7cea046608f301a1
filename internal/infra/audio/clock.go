// Package audio provides playback backends: a simulated wall-clock backend
// and a speaker backend that decodes local files.
package audio

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mediad/internal/app/playback"
	"github.com/osa030/mediad/internal/domain/track"
)

var (
	ErrNotPlayable = errors.New("track is not playable")
	ErrNoSource    = errors.New("track has no source")
	ErrSuperseded  = errors.New("command superseded")
)

// ClockConfig holds clock backend configuration.
type ClockConfig struct {
	BufferDelay  time.Duration // Simulated time to start rendering
	DefaultTrack time.Duration // Length used for tracks without a duration
	Tick         time.Duration // Wall clock polling interval
}

// Clock is a backend that renders no audio. It tracks the position of the
// loaded track against the wall clock and reports completion when the track
// length has elapsed.
type Clock struct {
	mu       sync.Mutex
	config   ClockConfig
	listener playback.BackendListener

	current   track.Track
	loaded    bool
	playing   bool
	startTime time.Time     // Wall time at which base was rendering
	base      time.Duration // Offset at startTime, or the paused offset

	gen          uint64
	bufferCancel func()
	endCancel    func()
}

// NewClock creates a clock backend.
func NewClock(config ClockConfig) *Clock {
	if config.DefaultTrack <= 0 {
		config.DefaultTrack = 3 * time.Minute
	}
	if config.Tick <= 0 {
		config.Tick = 100 * time.Millisecond
	}
	return &Clock{config: config}
}

// SetListener implements playback.Backend.
func (c *Clock) SetListener(l playback.BackendListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = l
}

// Play loads t at position and starts rendering after the buffer delay.
func (c *Clock) Play(t track.Track, position time.Duration, done func(error)) {
	if err := checkPlayable(t); err != nil {
		done(err)
		return
	}

	c.mu.Lock()
	c.cancelTimersLocked()
	c.gen++
	gen := c.gen
	c.current = t
	c.loaded = true
	c.playing = false
	c.base = min(max(position, 0), c.lengthLocked())

	zlog.Debug().Msgf("clock: buffering: id=%s position=%s", t.ID, c.base)
	c.bufferCancel = c.startWallClockTimer(c.config.BufferDelay, func() {
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			done(ErrSuperseded)
			return
		}
		c.bufferCancel = nil
		c.playing = true
		c.startTime = toWallTime(time.Now())
		c.scheduleEndLocked()
		c.mu.Unlock()
		done(nil)
	})
	c.mu.Unlock()
}

// Pause freezes the position.
func (c *Clock) Pause(done func(error)) {
	c.mu.Lock()
	if c.playing {
		c.base = c.positionLocked()
		c.playing = false
	}
	c.cancelTimersLocked()
	c.gen++
	c.mu.Unlock()
	done(nil)
}

// Stop unloads the track.
func (c *Clock) Stop(done func(error)) {
	c.mu.Lock()
	c.cancelTimersLocked()
	c.gen++
	c.current = track.Track{}
	c.loaded = false
	c.playing = false
	c.base = 0
	c.mu.Unlock()
	done(nil)
}

// Seek moves the position of the loaded track.
func (c *Clock) Seek(position time.Duration, done func(error)) {
	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		done(errors.New("no track loaded"))
		return
	}
	c.base = min(max(position, 0), c.lengthLocked())
	if c.playing {
		c.startTime = toWallTime(time.Now())
		c.scheduleEndLocked()
	}
	c.mu.Unlock()
	done(nil)
}

// IsPlaying implements playback.Backend.
func (c *Clock) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Position implements playback.Backend.
func (c *Clock) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked()
}

func (c *Clock) positionLocked() time.Duration {
	if !c.playing {
		return c.base
	}
	elapsed := toWallTime(time.Now()).Sub(c.startTime)
	return min(c.base+elapsed, c.lengthLocked())
}

func (c *Clock) lengthLocked() time.Duration {
	if c.current.Duration > 0 {
		return c.current.Duration
	}
	return c.config.DefaultTrack
}

func (c *Clock) scheduleEndLocked() {
	if c.endCancel != nil {
		c.endCancel()
	}
	gen := c.gen
	remaining := c.lengthLocked() - c.base
	c.endCancel = c.startWallClockTimer(remaining, func() { c.onTrackEnd(gen) })
}

func (c *Clock) onTrackEnd(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.playing {
		c.mu.Unlock()
		return
	}
	c.endCancel = nil
	c.playing = false
	c.base = c.lengthLocked()
	ended := c.current
	listener := c.listener
	c.mu.Unlock()

	zlog.Debug().Msgf("clock: track ended: id=%s", ended.ID)
	if listener != nil {
		listener.OnCompletion(ended)
	}
}

func (c *Clock) cancelTimersLocked() {
	if c.bufferCancel != nil {
		c.bufferCancel()
		c.bufferCancel = nil
	}
	if c.endCancel != nil {
		c.endCancel()
		c.endCancel = nil
	}
}

// startWallClockTimer calls callback once duration has elapsed on the wall
// clock. Returns a cancel function.
func (c *Clock) startWallClockTimer(duration time.Duration, callback func()) func() {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		endTime := toWallTime(time.Now()).Add(duration)
		ticker := time.NewTicker(c.config.Tick)
		defer ticker.Stop()

		for {
			if !toWallTime(time.Now()).Before(endTime) {
				callback()
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return cancel
}

// toWallTime strips the monotonic clock reading so elapsed time follows the
// wall clock across suspend.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}

func checkPlayable(t track.Track) error {
	if !t.Playable {
		return errors.Wrapf(ErrNotPlayable, "track %s", t.ID)
	}
	if t.Source == "" {
		return errors.Wrapf(ErrNoSource, "track %s", t.ID)
	}
	return nil
}
