package playback

import (
	"time"

	"github.com/osa030/mediad/internal/domain/track"
)

// Backend performs the actual audio I/O. Every command completes
// asynchronously through done, which may be called from any goroutine.
type Backend interface {
	Play(t track.Track, position time.Duration, done func(error))
	Pause(done func(error))
	Stop(done func(error))
	Seek(position time.Duration, done func(error))

	// IsPlaying reports whether audio is currently rendering.
	IsPlaying() bool
	// Position returns the current offset into the loaded track.
	Position() time.Duration

	SetListener(l BackendListener)
}

// BackendListener receives unsolicited backend events.
type BackendListener interface {
	// OnCompletion is called when t played to its end.
	OnCompletion(t track.Track)
	// OnError is called when rendering fails outside of a command.
	OnError(err error)
}
