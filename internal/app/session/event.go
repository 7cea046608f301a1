package session

import (
	"context"
	"sync"

	"github.com/osa030/mediad/internal/domain/track"
)

// LifecycleEvent is an abstract host lifecycle signal.
type LifecycleEvent int

const (
	ClientAttach  LifecycleEvent = iota // A client bound to the session
	ClientDetach                        // A client went away
	ExplicitStart                       // The service was explicitly started
	ExplicitStop                        // The service was explicitly asked to stop
)

// String returns the string representation of the event.
func (e LifecycleEvent) String() string {
	switch e {
	case ClientAttach:
		return "client_attach"
	case ClientDetach:
		return "client_detach"
	case ExplicitStart:
		return "explicit_start"
	case ExplicitStop:
		return "explicit_stop"
	default:
		return "unknown"
	}
}

// ChildrenResult is a one-shot answer to a children request. It is fulfilled
// exactly once, possibly after the catalog finishes loading.
type ChildrenResult struct {
	once  sync.Once
	done  chan struct{}
	items []track.Track
}

func newChildrenResult() *ChildrenResult {
	return &ChildrenResult{done: make(chan struct{})}
}

// resolve fulfils the result. Later calls are ignored and return false.
func (r *ChildrenResult) resolve(items []track.Track) bool {
	resolved := false
	r.once.Do(func() {
		r.items = items
		resolved = true
		close(r.done)
	})
	return resolved
}

// Done is closed when the result is available.
func (r *ChildrenResult) Done() <-chan struct{} {
	return r.done
}

// Resolved reports whether the result is available.
func (r *ChildrenResult) Resolved() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the result is available or ctx is done.
func (r *ChildrenResult) Wait(ctx context.Context) ([]track.Track, error) {
	select {
	case <-r.done:
		return r.items, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
