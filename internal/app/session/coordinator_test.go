package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/mediad/internal/app/catalog"
	"github.com/osa030/mediad/internal/app/notification"
	"github.com/osa030/mediad/internal/app/playback"
	"github.com/osa030/mediad/internal/app/session/lifecycle"
	"github.com/osa030/mediad/internal/domain/client"
	"github.com/osa030/mediad/internal/domain/track"
)

type gatedFetcher struct {
	release chan struct{}
	fail    bool
}

func (f *gatedFetcher) Fetch(ctx context.Context) ([]track.Track, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail {
		return nil, errors.New("catalog offline")
	}
	return []track.Track{
		{ID: "A", Title: "Song A", Genre: "Rock", Duration: time.Minute},
		{ID: "B", Title: "Song B", Genre: "Rock", Duration: time.Minute},
		{ID: "C", Title: "Song C", Genre: "Rock", Duration: time.Minute},
	}, nil
}

// instantBackend completes every command immediately.
type instantBackend struct {
	mu       sync.Mutex
	listener playback.BackendListener
	playing  bool
	failPlay bool
}

func (b *instantBackend) Play(_ track.Track, _ time.Duration, done func(error)) {
	b.mu.Lock()
	fail := b.failPlay
	b.playing = !fail
	b.mu.Unlock()
	if fail {
		done(errors.New("no audio device"))
		return
	}
	done(nil)
}

func (b *instantBackend) Pause(done func(error)) { b.setPlaying(false); done(nil) }
func (b *instantBackend) Stop(done func(error))  { b.setPlaying(false); done(nil) }
func (b *instantBackend) Seek(_ time.Duration, done func(error)) {
	done(nil)
}
func (b *instantBackend) IsPlaying() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.playing
}
func (b *instantBackend) Position() time.Duration                { return 0 }
func (b *instantBackend) SetListener(l playback.BackendListener) { b.listener = l }
func (b *instantBackend) setPlaying(v bool) {
	b.mu.Lock()
	b.playing = v
	b.mu.Unlock()
}

type staticGatekeeper struct {
	denied  map[string]bool
	refused map[string]bool
}

func (g *staticGatekeeper) IsAllowed(_ context.Context, identity client.Identity) (bool, error) {
	if g.refused[identity.Package] {
		return false, errors.New("identity rejected")
	}
	return !g.denied[identity.Package], nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	shows []string
	hides int
}

func (n *recordingNotifier) Show(t track.Track) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shows = append(n.shows, t.ID)
}

func (n *recordingNotifier) Hide() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hides++
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.shows), n.hides
}

type collectingStream struct {
	mu     sync.Mutex
	events []notification.Event
}

func (s *collectingStream) Send(ev notification.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *collectingStream) types() []notification.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notification.EventType
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

type harness struct {
	c        *Coordinator
	fetcher  *gatedFetcher
	backend  *instantBackend
	notifier *recordingNotifier
}

func newHarness(t *testing.T, fetcher *gatedFetcher, stopDelay time.Duration) *harness {
	t.Helper()
	h := &harness{
		fetcher:  fetcher,
		backend:  &instantBackend{},
		notifier: &recordingNotifier{},
	}
	gk := &staticGatekeeper{
		denied:  map[string]bool{"org.example.untrusted": true},
		refused: map[string]bool{"org.example.evil": true},
	}
	h.c = NewCoordinator(catalog.NewLibrary(fetcher, "Genres"), h.backend, gk, h.notifier, Options{
		StopDelay:        stopDelay,
		LoadTimeout:      5 * time.Second,
		SubscriberBuffer: 32,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.c.Shutdown(ctx, "test cleanup")
	})
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.c.Start(context.Background()))
}

func (h *harness) status(t *testing.T) Snapshot {
	t.Helper()
	s, err := h.c.Status(context.Background())
	require.NoError(t, err)
	return s
}

func (h *harness) waitState(t *testing.T, want playback.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.status(t).Playback.State == want
	}, 2*time.Second, 5*time.Millisecond, "waiting for %s", want)
}

func (h *harness) waitCatalog(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.status(t).CatalogReady
	}, 2*time.Second, 5*time.Millisecond)
}

// onLoop runs fn on the owner loop and waits for it.
func (h *harness) onLoop(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, h.c.call(context.Background(), fn))
}

func isDone(c *Coordinator) bool {
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}

func TestCoordinator_EmptyRootResolvesSynchronously(t *testing.T) {
	h := newHarness(t, &gatedFetcher{release: make(chan struct{})}, time.Minute)

	// Not started: nothing runs on the loop.
	result := h.c.LoadChildren(nil, track.EmptyRootID)
	assert.True(t, result.Resolved())
	items, err := result.Wait(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)

	denied := &client.Connection{ID: "x", Allowed: false, RootID: track.EmptyRootID}
	assert.True(t, h.c.LoadChildren(denied, track.RootID).Resolved())
}

func TestCoordinator_DeferredChildrenResolveExactlyOnce(t *testing.T) {
	fetcher := &gatedFetcher{release: make(chan struct{})}
	h := newHarness(t, fetcher, time.Minute)
	h.start(t)

	conn, err := h.c.Attach(context.Background(), client.Identity{Package: "org.example.car", UID: 1000}, "test")
	require.NoError(t, err)
	assert.Equal(t, track.RootID, conn.RootID)

	first := h.c.LoadChildren(conn, track.RootID)
	second := h.c.LoadChildren(conn, track.GenreID("Rock"))
	h.onLoop(t, func() {})
	assert.False(t, first.Resolved(), "deferred while the catalog loads")
	assert.False(t, second.Resolved())

	close(fetcher.release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rootItems, err := first.Wait(ctx)
	require.NoError(t, err)
	require.Len(t, rootItems, 1)
	assert.Equal(t, track.GenresID, rootItems[0].ID)

	genreItems, err := second.Wait(ctx)
	require.NoError(t, err)
	assert.Len(t, genreItems, 3)

	assert.False(t, first.resolve(nil), "a result is fulfilled only once")
	assert.Equal(t, 1, h.c.catalog.Loads(), "concurrent requests share one load")

	again := h.c.LoadChildren(conn, track.RootID)
	_, err = again.Wait(ctx)
	require.NoError(t, err)
}

func TestCoordinator_DeferredChildrenFailure(t *testing.T) {
	fetcher := &gatedFetcher{release: make(chan struct{}), fail: true}
	h := newHarness(t, fetcher, time.Minute)
	h.start(t)

	result := h.c.LoadChildren(nil, track.RootID)
	close(fetcher.release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	items, err := result.Wait(ctx)
	require.NoError(t, err)
	assert.Empty(t, items, "failed load resolves empty")
}

func TestCoordinator_PendingChildrenResolvedOnTeardown(t *testing.T) {
	h := newHarness(t, &gatedFetcher{release: make(chan struct{})}, time.Minute)
	h.start(t)

	result := h.c.LoadChildren(nil, track.RootID)
	require.NoError(t, h.c.Shutdown(context.Background(), "test"))

	assert.True(t, result.Resolved())
}

func TestCoordinator_Attach(t *testing.T) {
	h := newHarness(t, &gatedFetcher{}, time.Minute)
	h.start(t)
	ctx := context.Background()

	allowed, err := h.c.Attach(ctx, client.Identity{Package: "org.example.car", UID: 1}, "test")
	require.NoError(t, err)
	assert.True(t, allowed.Allowed)
	assert.Equal(t, track.RootID, allowed.RootID)

	denied, err := h.c.Attach(ctx, client.Identity{Package: "org.example.untrusted", UID: 2}, "test")
	require.NoError(t, err, "denied clients still connect")
	assert.False(t, denied.Allowed)
	assert.Equal(t, track.EmptyRootID, denied.RootID)

	_, err = h.c.Attach(ctx, client.Identity{Package: "org.example.evil", UID: 3}, "test")
	assert.True(t, errors.Is(err, ErrConnectionRefused))

	assert.Equal(t, 2, h.status(t).Lifecycle.Attached)
	require.NoError(t, h.c.Detach(denied.ID))
	assert.Equal(t, 1, h.status(t).Lifecycle.Attached)
	assert.Len(t, h.c.Connections(), 1)

	assert.Error(t, h.c.Detach(denied.ID))
}

func TestCoordinator_PlayFromID(t *testing.T) {
	h := newHarness(t, &gatedFetcher{}, time.Minute)
	h.start(t)
	h.waitCatalog(t)

	require.NoError(t, h.c.PlayFromID("B"))
	h.waitState(t, playback.StatePlaying)

	s := h.status(t)
	assert.Equal(t, 1, s.QueueIndex)
	assert.Equal(t, "Rock", s.QueueTitle)
	require.NotNil(t, s.NowPlaying)
	assert.Equal(t, "B", s.NowPlaying.ID)
	assert.True(t, s.Lifecycle.Started)
	assert.NotEqual(t, lifecycle.TimerArmed, s.Lifecycle.Timer, "playback start cancels the stop timer")

	require.NoError(t, h.c.SkipNext())
	require.Eventually(t, func() bool {
		st := h.status(t)
		return st.Playback.State == playback.StatePlaying && st.Playback.ActiveTrackID == "C"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCoordinator_MetadataErrorStopsWithMessage(t *testing.T) {
	h := newHarness(t, &gatedFetcher{}, time.Minute)
	h.start(t)
	h.waitCatalog(t)

	require.NoError(t, h.c.PlayFromID("missing"))
	h.waitState(t, playback.StateError)
	assert.Equal(t, MetadataErrorMessage, h.status(t).Playback.Error)
}

func TestCoordinator_BackendFailure(t *testing.T) {
	h := newHarness(t, &gatedFetcher{}, time.Minute)
	h.backend.failPlay = true
	h.start(t)
	h.waitCatalog(t)

	require.NoError(t, h.c.PlayFromID("A"))
	h.waitState(t, playback.StateError)
	assert.NotEmpty(t, h.status(t).Playback.Error)
	assert.False(t, isDone(h.c), "a backend failure does not end the session")
}

func TestCoordinator_TimerNeverTearsDownWhilePlaying(t *testing.T) {
	h := newHarness(t, &gatedFetcher{}, time.Minute)
	h.start(t)
	h.waitCatalog(t)
	require.NoError(t, h.c.PlayFromID("A"))
	h.waitState(t, playback.StatePlaying)

	h.onLoop(t, func() {
		h.c.armStopTimer("test")
		gen := h.c.counter.Snapshot().Generation
		h.c.onStopTimer(gen)
	})

	assert.False(t, isDone(h.c))
	assert.Equal(t, playback.StatePlaying, h.status(t).Playback.State)
}

func TestCoordinator_RearmInvalidatesPendingFire(t *testing.T) {
	h := newHarness(t, &gatedFetcher{}, time.Minute)
	h.start(t)

	var stale, current uint64
	h.onLoop(t, func() {
		h.c.armStopTimer("first")
		stale = h.c.counter.Snapshot().Generation
		h.c.armStopTimer("second")
		current = h.c.counter.Snapshot().Generation
		h.c.onStopTimer(stale)
	})
	assert.False(t, isDone(h.c), "stale fire ignored")

	h.onLoop(t, func() { h.c.onStopTimer(current) })
	require.Eventually(t, func() bool { return isDone(h.c) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "idle", h.c.TeardownReason())
}

func TestCoordinator_IdleTimeout(t *testing.T) {
	h := newHarness(t, &gatedFetcher{}, 30*time.Millisecond)
	h.start(t)

	select {
	case <-h.c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("idle session was not torn down")
	}
	assert.Equal(t, "idle", h.c.TeardownReason())
	assert.ErrorIs(t, h.c.Play(), ErrSessionEnded)
}

func TestCoordinator_ExplicitStop(t *testing.T) {
	h := newHarness(t, &gatedFetcher{}, time.Minute)
	h.start(t)

	require.NoError(t, h.c.HandleLifecycle(ExplicitStart))
	require.NoError(t, h.c.HandleLifecycle(ExplicitStop))

	select {
	case <-h.c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("explicit stop did not tear down")
	}
	assert.Equal(t, "explicit stop", h.c.TeardownReason())
}

func TestCoordinator_ExplicitStopDeferredWhilePlaying(t *testing.T) {
	h := newHarness(t, &gatedFetcher{}, time.Minute)
	h.start(t)
	h.waitCatalog(t)
	require.NoError(t, h.c.PlayFromID("A"))
	h.waitState(t, playback.StatePlaying)

	require.NoError(t, h.c.HandleLifecycle(ExplicitStop))
	s := h.status(t)
	assert.True(t, s.Lifecycle.PendingTeardown)
	assert.False(t, isDone(h.c), "teardown is never executed while playing")

	require.NoError(t, h.c.Pause())
	select {
	case <-h.c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("deferred teardown never ran")
	}
}

func TestCoordinator_ExplicitStartCancelsDeferredStop(t *testing.T) {
	h := newHarness(t, &gatedFetcher{}, time.Minute)
	h.start(t)
	h.waitCatalog(t)
	require.NoError(t, h.c.PlayFromID("A"))
	h.waitState(t, playback.StatePlaying)

	require.NoError(t, h.c.HandleLifecycle(ExplicitStop))
	require.NoError(t, h.c.HandleLifecycle(ExplicitStart))
	s := h.status(t)
	assert.False(t, s.Lifecycle.PendingTeardown)
	assert.True(t, s.Lifecycle.Started)

	require.NoError(t, h.c.Pause())
	h.waitState(t, playback.StatePaused)

	// Flush anything the pause dispatched.
	h.onLoop(t, func() {})
	assert.False(t, isDone(h.c), "the latest lifecycle command started the session")
	assert.Empty(t, h.c.TeardownReason())
}

func TestCoordinator_BackendActivityKeepsSession(t *testing.T) {
	tests := []struct {
		name           string
		backendPlaying bool
		wantDone       bool
	}{
		{"backend idle", false, true},
		{"backend still rendering", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, &gatedFetcher{}, time.Minute)
			h.start(t)
			h.backend.setPlaying(tt.backendPlaying)

			h.onLoop(t, func() {
				h.c.armStopTimer("test")
				h.c.onStopTimer(h.c.counter.Snapshot().Generation)
			})

			if tt.wantDone {
				require.Eventually(t, func() bool { return isDone(h.c) }, time.Second, 5*time.Millisecond)
				return
			}
			assert.False(t, isDone(h.c))
			assert.Equal(t, playback.StateNone, h.status(t).Playback.State)
		})
	}
}

func TestCoordinator_SubscribeAndNotifications(t *testing.T) {
	h := newHarness(t, &gatedFetcher{}, time.Minute)
	h.start(t)
	h.waitCatalog(t)

	stream := &collectingStream{}
	sub, err := h.c.Subscribe(context.Background(), stream)
	require.NoError(t, err)

	require.NoError(t, h.c.PlayFromID("A"))
	h.waitState(t, playback.StatePlaying)
	shows, hides := h.notifier.counts()
	assert.Equal(t, 1, shows)
	assert.Equal(t, 0, hides)

	require.NoError(t, h.c.Stop())
	h.waitState(t, playback.StateStopped)
	_, hides = h.notifier.counts()
	assert.Equal(t, 1, hides)

	require.NoError(t, h.c.Shutdown(context.Background(), "test"))
	select {
	case <-sub.Done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed on teardown")
	}

	types := stream.types()
	require.NotEmpty(t, types)
	assert.Equal(t, notification.EventQueueChanged, types[0], "initial snapshot first")
	assert.Contains(t, types, notification.EventMetadataChanged)
	assert.Contains(t, types, notification.EventPlaybackStateChanged)
	assert.Equal(t, notification.EventSessionEnded, types[len(types)-1])
}

func TestLifecycleEvent_String(t *testing.T) {
	assert.Equal(t, "client_attach", ClientAttach.String())
	assert.Equal(t, "explicit_stop", ExplicitStop.String())
	assert.Equal(t, "unknown", LifecycleEvent(42).String())
}

func TestLoop_RecoversFromPanic(t *testing.T) {
	l := newLoop()
	go l.run()

	ran := make(chan struct{})
	l.post(func() { panic("boom") })
	l.post(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("loop died after a panic")
	}
	l.close()
	<-l.stopped
	assert.False(t, l.post(func() {}))
}
