//go:build !linux

package mpris

import (
	"context"
	"time"

	"github.com/osa030/mediad/internal/app/session"
)

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

// Adapter is a no-op on non-Linux platforms.
type Adapter struct{}

// New returns a no-op adapter on non-Linux platforms.
func New(_ string, _ Controller) (*Adapter, error) {
	return &Adapter{}, nil
}

// Close is a no-op on non-Linux platforms.
func (a *Adapter) Close() error {
	return nil
}
