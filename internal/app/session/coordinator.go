// Package session provides the session coordinator: the owner of the media
// session's event loop, lifecycle timer and client fan-out.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mediad/internal/app/catalog"
	"github.com/osa030/mediad/internal/app/notification"
	"github.com/osa030/mediad/internal/app/playback"
	"github.com/osa030/mediad/internal/app/queue"
	"github.com/osa030/mediad/internal/app/session/lifecycle"
	"github.com/osa030/mediad/internal/app/session/registry"
	"github.com/osa030/mediad/internal/domain/client"
	"github.com/osa030/mediad/internal/domain/track"
)

var (
	ErrSessionEnded      = errors.New("session has ended")
	ErrConnectionRefused = errors.New("connection refused")
	ErrAlreadyStarted    = errors.New("session already started")
)

// MetadataErrorMessage is the playback error shown when queue metadata cannot be resolved.
const MetadataErrorMessage = "Unable to retrieve metadata."

// DefaultStopDelay is the delayed-stop timeout used when none is configured.
const DefaultStopDelay = 30 * time.Second

// Gatekeeper decides whether a client may browse the real hierarchy.
// An error means no verdict and refuses the connection.
type Gatekeeper interface {
	IsAllowed(ctx context.Context, identity client.Identity) (bool, error)
}

// Notifier is the now-playing notification collaborator.
type Notifier interface {
	Show(nowPlaying track.Track)
	Hide()
}

// Options configures a Coordinator.
type Options struct {
	StopDelay        time.Duration
	LoadTimeout      time.Duration
	SubscriberBuffer int
}

// Snapshot is a consistent view of the session taken on the owner loop.
type Snapshot struct {
	Playback     playback.Status
	NowPlaying   *track.Track
	QueueTitle   string
	Queue        []track.Track
	QueueIndex   int
	Lifecycle    lifecycle.Snapshot
	Connections  int
	Subscribers  int
	CatalogReady bool
}

// Coordinator owns the session. Exported methods are safe for concurrent use;
// everything they touch is executed on the owner loop.
type Coordinator struct {
	loop          *loop
	catalog       *catalog.Store
	queue         *queue.Manager
	machine       *playback.Machine
	backend       playback.Backend
	gatekeeper    Gatekeeper
	notifier      Notifier
	notifications *notification.Manager
	connections   *registry.ConnectionRegistry
	counter       *lifecycle.Counter
	stopDelay     time.Duration
	running       atomic.Bool

	teardownReasonMu sync.Mutex
	teardownReason   string

	// Owned by the loop.
	timer           *time.Timer
	nowPlaying      track.Track
	notificationOn  bool
	pendingChildren map[*ChildrenResult]struct{}
	tornDown        bool
}

// NewCoordinator wires the catalog, queue, state machine and fan-out together.
func NewCoordinator(catalogBackend catalog.Backend, backend playback.Backend, gatekeeper Gatekeeper, notifier Notifier, opts Options) *Coordinator {
	if opts.StopDelay <= 0 {
		opts.StopDelay = DefaultStopDelay
	}

	c := &Coordinator{
		loop:            newLoop(),
		backend:         backend,
		gatekeeper:      gatekeeper,
		notifier:        notifier,
		notifications:   notification.NewManager(opts.SubscriberBuffer),
		connections:     registry.NewConnectionRegistry(),
		counter:         lifecycle.New(),
		stopDelay:       opts.StopDelay,
		pendingChildren: make(map[*ChildrenResult]struct{}),
	}

	c.catalog = catalog.NewStore(catalogBackend, c.dispatch, opts.LoadTimeout)
	c.queue = queue.NewManager(c.catalog)
	c.queue.AddListener(&queueEvents{c: c})
	c.machine = playback.NewMachine(backend, c.queue, &playbackEvents{c: c}, c.dispatch)

	return c
}

// Start runs the owner loop, arms the delayed-stop timer and warms up the
// catalog. Cancelling ctx tears the session down.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	go c.loop.run()

	c.loop.post(func() {
		zlog.Info().Msgf("session started: stop_delay=%s", c.stopDelay)
		c.armStopTimer("start")
		c.catalog.RetrieveAsync(nil)
	})

	go func() {
		select {
		case <-ctx.Done():
			c.loop.post(func() { c.teardown("shutdown") })
		case <-c.loop.stopped:
		}
	}()
	return nil
}

// Done is closed after the session has been torn down.
func (c *Coordinator) Done() <-chan struct{} {
	return c.loop.stopped
}

// TeardownReason returns why the session ended, or "" while it is running.
func (c *Coordinator) TeardownReason() string {
	c.teardownReasonMu.Lock()
	defer c.teardownReasonMu.Unlock()
	return c.teardownReason
}

// Shutdown tears the session down and waits for the loop to exit.
func (c *Coordinator) Shutdown(ctx context.Context, reason string) error {
	if c.running.CompareAndSwap(false, true) {
		go c.loop.run()
	}
	c.loop.post(func() { c.teardown(reason) })

	select {
	case <-c.loop.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attach resolves the browse root for identity and records the connection.
// Denied clients get the empty root; a gatekeeper error refuses the connection.
func (c *Coordinator) Attach(ctx context.Context, identity client.Identity, transport string) (*client.Connection, error) {
	allowed, err := c.gatekeeper.IsAllowed(ctx, identity)
	if err != nil {
		zlog.Warn().Msgf("connection refused: identity=%s transport=%s error=%v", identity, transport, err)
		return nil, errors.Mark(errors.Wrapf(err, "identity %s", identity), ErrConnectionRefused)
	}

	rootID := track.EmptyRootID
	if allowed {
		rootID = track.RootID
	}

	var conn *client.Connection
	err = c.call(ctx, func() {
		conn = c.connections.Add(identity, transport, allowed, rootID)
		c.onLifecycle(ClientAttach)
		zlog.Info().Msgf("client attached: id=%s identity=%s transport=%s root=%s", conn.ID, identity, transport, rootID)
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Detach destroys the connection record.
func (c *Coordinator) Detach(connectionID string) error {
	var err error
	callErr := c.call(context.Background(), func() {
		var conn *client.Connection
		conn, err = c.connections.Remove(connectionID)
		if err != nil {
			return
		}
		c.onLifecycle(ClientDetach)
		zlog.Info().Msgf("client detached: id=%s identity=%s", conn.ID, conn.Identity)
	})
	if callErr != nil {
		return callErr
	}
	return err
}

// Connection returns an attached connection.
func (c *Coordinator) Connection(connectionID string) (*client.Connection, error) {
	return c.connections.Get(connectionID)
}

// Connections returns all attached connections.
func (c *Coordinator) Connections() []*client.Connection {
	return c.connections.All()
}

// HandleLifecycle applies an abstract lifecycle event.
func (c *Coordinator) HandleLifecycle(ev LifecycleEvent) error {
	if !c.loop.post(func() { c.onLifecycle(ev) }) {
		return ErrSessionEnded
	}
	return nil
}

// LoadChildren returns the children of parentID for conn. The empty root, and
// any request from a denied connection, resolves synchronously to nothing.
// Otherwise the result is resolved on the loop, after the catalog has loaded
// if necessary.
func (c *Coordinator) LoadChildren(conn *client.Connection, parentID string) *ChildrenResult {
	result := newChildrenResult()

	if parentID == track.EmptyRootID || (conn != nil && !conn.Allowed) {
		result.resolve(nil)
		return result
	}

	if !c.loop.post(func() { c.loadChildren(result, parentID) }) {
		result.resolve(nil)
	}
	return result
}

func (c *Coordinator) loadChildren(result *ChildrenResult, parentID string) {
	if c.catalog.IsInitialized() {
		result.resolve(c.catalog.Children(parentID))
		return
	}

	zlog.Debug().Msgf("catalog not ready, deferring children: parent_id=%s", parentID)
	c.pendingChildren[result] = struct{}{}
	c.catalog.RetrieveAsync(func(ok bool) {
		delete(c.pendingChildren, result)
		if !ok {
			result.resolve(nil)
			return
		}
		result.resolve(c.catalog.Children(parentID))
	})
}

// Play starts or resumes playback.
func (c *Coordinator) Play() error {
	return c.transport("play", func() { c.machine.HandlePlayRequest() })
}

// Pause pauses playback.
func (c *Coordinator) Pause() error {
	return c.transport("pause", func() { c.machine.HandlePauseRequest() })
}

// Stop stops playback. The session itself keeps running.
func (c *Coordinator) Stop() error {
	return c.transport("stop", func() { c.machine.HandleStopRequest("") })
}

// SkipNext skips to the next queue item.
func (c *Coordinator) SkipNext() error {
	return c.transport("skip_next", func() { c.machine.HandleSkipRequest(playback.DirectionNext) })
}

// SkipPrevious skips to the previous queue item.
func (c *Coordinator) SkipPrevious() error {
	return c.transport("skip_prev", func() { c.machine.HandleSkipRequest(playback.DirectionPrevious) })
}

// Seek moves the playback position.
func (c *Coordinator) Seek(position time.Duration) error {
	return c.transport("seek", func() { c.machine.HandleSeekRequest(position) })
}

// PlayFromID queues the tracks around id and plays id.
func (c *Coordinator) PlayFromID(id string) error {
	return c.transport("play_from_id", func() {
		if c.queue.SetQueueFromMusicID(id) {
			c.machine.HandlePlayRequest()
		}
	})
}

// PlayFromSearch queues the tracks matching query and plays the first one.
func (c *Coordinator) PlayFromSearch(query string) error {
	return c.transport("play_from_search", func() {
		if c.queue.SetQueueFromSearch(query) {
			c.machine.HandlePlayRequest()
		}
	})
}

// Subscribe registers stream for session events. The stream first receives
// the current queue, metadata and playback status.
func (c *Coordinator) Subscribe(ctx context.Context, stream notification.Stream) (notification.Subscription, error) {
	var sub notification.Subscription
	err := c.call(ctx, func() {
		sub = c.notifications.Subscribe(stream, c.initialEvents()...)
	})
	return sub, err
}

// Unsubscribe removes a subscription.
func (c *Coordinator) Unsubscribe(subscriptionID string) {
	c.notifications.Unsubscribe(subscriptionID)
}

// Status returns a snapshot of the session.
func (c *Coordinator) Status(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := c.call(ctx, func() {
		s = Snapshot{
			Playback:     c.machine.Status(),
			QueueTitle:   c.queue.Title(),
			Queue:        c.queue.Items(),
			QueueIndex:   c.queue.Index(),
			Lifecycle:    c.counter.Snapshot(),
			Connections:  c.connections.Count(),
			Subscribers:  c.notifications.SubscriberCount(),
			CatalogReady: c.catalog.IsInitialized(),
		}
		if c.nowPlaying.ID != "" {
			np := c.nowPlaying
			s.NowPlaying = &np
		}
	})
	return s, err
}

// transport runs a transport command on the loop and re-arms the stop timer.
func (c *Coordinator) transport(name string, fn func()) error {
	ok := c.loop.post(func() {
		zlog.Debug().Msgf("transport command: %s", name)
		c.armStopTimer(name)
		fn()
	})
	if !ok {
		return ErrSessionEnded
	}
	return nil
}

// call runs fn on the loop and waits for it.
func (c *Coordinator) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !c.loop.post(func() {
		defer close(done)
		fn()
	}) {
		return ErrSessionEnded
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.loop.stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrSessionEnded
		}
	}
}

// dispatch hands fn to the loop. Work posted after teardown is dropped.
func (c *Coordinator) dispatch(fn func()) {
	if !c.loop.post(fn) {
		zlog.Debug().Msg("session ended, dropping dispatched work")
	}
}

func (c *Coordinator) onLifecycle(ev LifecycleEvent) {
	zlog.Debug().Msgf("lifecycle event: %s", ev)

	switch ev {
	case ClientAttach:
		c.counter.Attach()
		c.armStopTimer(ev.String())
	case ClientDetach:
		c.counter.Detach()
		c.armStopTimer(ev.String())
	case ExplicitStart:
		c.counter.MarkStarted()
		if c.counter.PendingTeardown() {
			zlog.Info().Msg("explicit start cancels deferred teardown")
			c.counter.SetPendingTeardown(false)
		}
		c.armStopTimer(ev.String())
	case ExplicitStop:
		c.cancelStopTimer()
		if c.isPlaying() {
			zlog.Info().Msg("explicit stop while playing, teardown deferred")
			c.counter.SetPendingTeardown(true)
			return
		}
		c.teardown("explicit stop")
	}
}

// armStopTimer starts a new arm period. A fire from an earlier period is
// rejected by the counter's generation check on the loop.
func (c *Coordinator) armStopTimer(cause string) {
	if c.tornDown {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}

	gen := c.counter.Arm()
	c.timer = time.AfterFunc(c.stopDelay, func() {
		c.loop.post(func() { c.onStopTimer(gen) })
	})
	zlog.Debug().Msgf("stop timer armed: cause=%s generation=%d delay=%s", cause, gen, c.stopDelay)
}

func (c *Coordinator) cancelStopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.counter.Cancel()
}

func (c *Coordinator) onStopTimer(gen uint64) {
	if !c.counter.Fire(gen) {
		zlog.Debug().Msgf("stale stop timer ignored: generation=%d", gen)
		return
	}
	if c.isPlaying() {
		zlog.Debug().Msg("stop timer fired while playing, keeping session")
		return
	}
	c.teardown("idle")
}

// isPlaying reports whether the machine is PLAYING or the backend is still
// rendering audio.
func (c *Coordinator) isPlaying() bool {
	return c.machine.State() == playback.StatePlaying || c.backend.IsPlaying()
}

func (c *Coordinator) teardown(reason string) {
	if c.tornDown {
		return
	}
	c.tornDown = true
	zlog.Info().Msgf("session teardown: reason=%s", reason)

	c.teardownReasonMu.Lock()
	c.teardownReason = reason
	c.teardownReasonMu.Unlock()

	c.cancelStopTimer()
	c.machine.HandleStopRequest("")
	if c.notificationOn {
		c.notifier.Hide()
		c.notificationOn = false
	}

	for result := range c.pendingChildren {
		result.resolve(nil)
		delete(c.pendingChildren, result)
	}

	c.notifications.Close(notification.Event{
		Type:   notification.EventSessionEnded,
		At:     time.Now(),
		Reason: reason,
	})
	c.catalog.Close()
	c.counter.ClearStarted()
	c.counter.SetPendingTeardown(false)
	c.loop.close()
}

func (c *Coordinator) initialEvents() []notification.Event {
	now := time.Now()
	status := c.machine.Status()
	events := []notification.Event{
		{Type: notification.EventQueueChanged, At: now, QueueTitle: c.queue.Title(), Queue: c.queue.Items()},
		{Type: notification.EventQueueIndexChanged, At: now, QueueIndex: c.queue.Index()},
	}
	if c.nowPlaying.ID != "" {
		np := c.nowPlaying
		events = append(events, notification.Event{Type: notification.EventMetadataChanged, At: now, Track: &np})
	}
	return append(events, notification.Event{Type: notification.EventPlaybackStateChanged, At: now, Playback: &status})
}

// updateNotification shows or hides the now-playing notification when the
// state enters or leaves an active state.
func (c *Coordinator) updateNotification(state playback.State) {
	switch {
	case state.IsActive() && !c.notificationOn:
		c.notificationOn = true
		c.notifier.Show(c.nowPlaying)
	case !state.IsActive() && c.notificationOn:
		c.notificationOn = false
		c.notifier.Hide()
	}
}

// queueEvents receives queue manager callbacks on the loop.
type queueEvents struct {
	c *Coordinator
}

func (q *queueEvents) OnMetadataChanged(t track.Track) {
	c := q.c
	c.nowPlaying = t
	c.notifications.Broadcast(notification.Event{Type: notification.EventMetadataChanged, At: time.Now(), Track: &t})
	if c.notificationOn {
		c.notifier.Show(t)
	}
}

func (q *queueEvents) OnMetadataRetrieveError(err error) {
	c := q.c
	zlog.Warn().Msgf("queue metadata unavailable: %v", err)
	// Posted so the state machine is never re-entered from its own queue call.
	c.dispatch(func() { c.machine.HandleStopRequest(MetadataErrorMessage) })
}

func (q *queueEvents) OnCurrentQueueIndexUpdated(index int) {
	q.c.notifications.Broadcast(notification.Event{Type: notification.EventQueueIndexChanged, At: time.Now(), QueueIndex: index})
}

func (q *queueEvents) OnQueueUpdated(title string, items []track.Track) {
	q.c.notifications.Broadcast(notification.Event{Type: notification.EventQueueChanged, At: time.Now(), QueueTitle: title, Queue: items})
}

// playbackEvents receives state machine callbacks on the loop.
type playbackEvents struct {
	c *Coordinator
}

func (p *playbackEvents) OnPlaybackStateUpdated(status playback.Status) {
	c := p.c
	c.notifications.Broadcast(notification.Event{Type: notification.EventPlaybackStateChanged, At: time.Now(), Playback: &status})
	if c.tornDown {
		return
	}
	c.updateNotification(status.State)

	if c.counter.PendingTeardown() && status.State != playback.StatePlaying {
		c.dispatch(func() {
			// An ExplicitStart may have been applied in between.
			if c.counter.PendingTeardown() {
				c.teardown("explicit stop")
			}
		})
	}
}

func (p *playbackEvents) OnPlaybackStart() {
	c := p.c
	c.counter.MarkStarted()
	c.cancelStopTimer()
}

func (p *playbackEvents) OnPlaybackStop() {
	p.c.armStopTimer("playback_stop")
}
