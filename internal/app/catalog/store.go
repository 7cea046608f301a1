// Package catalog holds the media catalog used to answer browse and queue
// queries.
package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mediad/internal/domain/track"
)

var (
	// ErrNotInitialized is returned when the catalog is queried before it is loaded.
	ErrNotInitialized = errors.New("catalog not initialized")
	// ErrLoadFailed is reported when the backend fails to load the catalog.
	ErrLoadFailed = errors.New("catalog load failed")
)

// Backend loads and indexes catalog data.
type Backend interface {
	Load(ctx context.Context) error
	TracksUnder(parentID string) []track.Track
	TrackByID(id string) (track.Track, bool)
	Search(query string) []track.Track
}

// Dispatcher runs fn on the owner execution context.
type Dispatcher func(fn func())

type loadState int

const (
	stateNotLoaded loadState = iota
	stateLoading
	stateLoaded
)

// Store guards a Backend with a one-shot load and coalesced ready callbacks.
// Completion callbacks always run through the dispatcher, never on the loader
// goroutine.
type Store struct {
	backend  Backend
	dispatch Dispatcher
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   loadState
	waiters []func(ok bool)
	loads   int
}

// NewStore creates a new catalog store.
func NewStore(backend Backend, dispatch Dispatcher, timeout time.Duration) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		backend:  backend,
		dispatch: dispatch,
		timeout:  timeout,
		ctx:      ctx,
		cancel:   cancel,
		state:    stateNotLoaded,
	}
}

// IsInitialized reports whether the catalog has been loaded.
func (s *Store) IsInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateLoaded
}

// Loads returns how many backend loads were started.
func (s *Store) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

// RetrieveAsync registers onReady and starts a load unless one is in flight.
// onReady may be nil. Each registered callback runs exactly once.
func (s *Store) RetrieveAsync(onReady func(ok bool)) {
	s.mu.Lock()
	if s.state == stateLoaded {
		s.mu.Unlock()
		if onReady != nil {
			s.dispatch(func() { onReady(true) })
		}
		return
	}

	if onReady != nil {
		s.waiters = append(s.waiters, onReady)
	}
	if s.state == stateLoading {
		s.mu.Unlock()
		zlog.Debug().Msg("catalog load already in flight, callback coalesced")
		return
	}
	s.state = stateLoading
	s.loads++
	s.mu.Unlock()

	go s.load()
}

func (s *Store) load() {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.backend.Load(ctx)
	if err != nil {
		zlog.Error().Msgf("catalog load failed: elapsed=%s error=%v", time.Since(start), errors.Mark(err, ErrLoadFailed))
	} else {
		zlog.Info().Msgf("catalog loaded: elapsed=%s", time.Since(start))
	}

	ok := err == nil
	s.dispatch(func() { s.complete(ok) })
}

// complete commits the load result and fans it out. Runs on the owner context.
func (s *Store) complete(ok bool) {
	s.mu.Lock()
	if ok {
		s.state = stateLoaded
	} else {
		s.state = stateNotLoaded
	}
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, cb := range waiters {
		cb(ok)
	}
}

// Children returns the children of parentID.
func (s *Store) Children(parentID string) []track.Track {
	if !s.IsInitialized() {
		zlog.Warn().Msgf("catalog children requested before load: parent_id=%s", parentID)
		return nil
	}
	return s.backend.TracksUnder(parentID)
}

// Lookup returns the track with the given id.
func (s *Store) Lookup(id string) (track.Track, bool) {
	if !s.IsInitialized() {
		return track.Track{}, false
	}
	return s.backend.TrackByID(id)
}

// Search returns playable tracks matching the query.
func (s *Store) Search(query string) []track.Track {
	if !s.IsInitialized() {
		return nil
	}
	return s.backend.Search(query)
}

// Close cancels an in-flight load.
func (s *Store) Close() {
	s.cancel()
}
