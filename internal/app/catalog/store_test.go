package catalog

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/mediad/internal/domain/track"
)

type blockingBackend struct {
	calls   atomic.Int32
	release chan error
	tracks  map[string][]track.Track
}

func newBlockingBackend() *blockingBackend {
	return &blockingBackend{
		release: make(chan error, 1),
		tracks: map[string][]track.Track{
			"p": {{ID: "a", ParentID: "p", Playable: true}},
		},
	}
}

func (b *blockingBackend) Load(ctx context.Context) error {
	b.calls.Add(1)
	select {
	case err := <-b.release:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *blockingBackend) TracksUnder(parentID string) []track.Track {
	return b.tracks[parentID]
}

func (b *blockingBackend) TrackByID(id string) (track.Track, bool) {
	for _, ts := range b.tracks {
		for _, t := range ts {
			if t.ID == id {
				return t, true
			}
		}
	}
	return track.Track{}, false
}

func (b *blockingBackend) Search(_ string) []track.Track {
	return nil
}

// ownerQueue collects dispatched functions so the test goroutine acts as the owner.
type ownerQueue chan func()

func (q ownerQueue) dispatch(fn func()) {
	q <- fn
}

func (q ownerQueue) runNext(t *testing.T) {
	t.Helper()
	select {
	case fn := <-q:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched callback")
	}
}

func TestStore_RetrieveAsync_CoalescesConcurrentCallers(t *testing.T) {
	backend := newBlockingBackend()
	owner := make(ownerQueue, 8)
	s := NewStore(backend, owner.dispatch, 0)
	defer s.Close()

	var results []bool
	s.RetrieveAsync(func(ok bool) { results = append(results, ok) })
	s.RetrieveAsync(func(ok bool) { results = append(results, ok) })
	s.RetrieveAsync(nil)

	assert.False(t, s.IsInitialized())
	assert.Equal(t, 1, s.Loads())

	backend.release <- nil
	owner.runNext(t)

	assert.True(t, s.IsInitialized())
	assert.Equal(t, []bool{true, true}, results)
	assert.Equal(t, int32(1), backend.calls.Load())

	// Already loaded: callback still goes through the owner.
	var late []bool
	s.RetrieveAsync(func(ok bool) { late = append(late, ok) })
	assert.Empty(t, late)
	owner.runNext(t)
	assert.Equal(t, []bool{true}, late)
	assert.Equal(t, 1, s.Loads())
}

func TestStore_RetrieveAsync_FailureAllowsRetry(t *testing.T) {
	backend := newBlockingBackend()
	owner := make(ownerQueue, 8)
	s := NewStore(backend, owner.dispatch, 0)
	defer s.Close()

	var results []bool
	s.RetrieveAsync(func(ok bool) { results = append(results, ok) })
	backend.release <- errors.New("disk on fire")
	owner.runNext(t)

	assert.Equal(t, []bool{false}, results)
	assert.False(t, s.IsInitialized())

	s.RetrieveAsync(func(ok bool) { results = append(results, ok) })
	backend.release <- nil
	owner.runNext(t)

	assert.Equal(t, []bool{false, true}, results)
	assert.True(t, s.IsInitialized())
	assert.Equal(t, 2, s.Loads())
}

func TestStore_Timeout(t *testing.T) {
	backend := newBlockingBackend()
	owner := make(ownerQueue, 8)
	s := NewStore(backend, owner.dispatch, 10*time.Millisecond)
	defer s.Close()

	var got *bool
	s.RetrieveAsync(func(ok bool) { got = &ok })
	owner.runNext(t)

	require.NotNil(t, got)
	assert.False(t, *got)
	assert.False(t, s.IsInitialized())
}

func TestStore_QueriesBeforeLoad(t *testing.T) {
	backend := newBlockingBackend()
	owner := make(ownerQueue, 8)
	s := NewStore(backend, owner.dispatch, 0)
	defer s.Close()

	assert.Nil(t, s.Children("p"))
	_, ok := s.Lookup("a")
	assert.False(t, ok)
	assert.Nil(t, s.Search("a"))

	s.RetrieveAsync(nil)
	backend.release <- nil
	owner.runNext(t)

	assert.Len(t, s.Children("p"), 1)
	got, ok := s.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)
}
