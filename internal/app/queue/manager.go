// Package queue owns the play queue and its current-item cursor.
package queue

import (
	"fmt"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mediad/internal/domain/playlist"
	"github.com/osa030/mediad/internal/domain/track"
)

var (
	// ErrCatalogUnavailable is reported when the catalog is not loaded or a lookup fails.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	// ErrNoMatch is reported when a request resolves to no playable track.
	ErrNoMatch = errors.New("no playable track matches the request")
)

// Catalog is the read side of the catalog store.
type Catalog interface {
	IsInitialized() bool
	Lookup(id string) (track.Track, bool)
	Children(parentID string) []track.Track
	Search(query string) []track.Track
}

// Listener receives queue events. Callbacks run on the goroutine that mutated the queue.
type Listener interface {
	OnMetadataChanged(t track.Track)
	OnMetadataRetrieveError(err error)
	OnCurrentQueueIndexUpdated(index int)
	OnQueueUpdated(title string, items []track.Track)
}

// Manager holds the queue. It is not safe for concurrent use; the session
// loop is its only caller.
type Manager struct {
	catalog   Catalog
	listeners []Listener

	queue playlist.Playlist
	index int
}

// NewManager creates a new queue manager with an empty queue.
func NewManager(catalog Catalog) *Manager {
	return &Manager{
		catalog: catalog,
		index:   -1,
	}
}

// AddListener registers a listener.
func (m *Manager) AddListener(l Listener) {
	m.listeners = append(m.listeners, l)
}

// Index returns the current index, or -1 when the queue is empty.
func (m *Manager) Index() int {
	return m.index
}

// Title returns the queue title.
func (m *Manager) Title() string {
	return m.queue.Title
}

// Items returns a copy of the queued tracks.
func (m *Manager) Items() []track.Track {
	return append([]track.Track(nil), m.queue.Tracks...)
}

// Len returns the queue length.
func (m *Manager) Len() int {
	return m.queue.Len()
}

// Current returns the track at the current index.
func (m *Manager) Current() (track.Track, bool) {
	if m.index < 0 || m.index >= m.queue.Len() {
		return track.Track{}, false
	}
	return m.queue.Tracks[m.index], true
}

// SetQueueFromMusicID replaces the queue with the playable tracks around id.
// A browsable id queues its playable children from the start; a leaf id queues
// its siblings with the cursor on id. Failures go to OnMetadataRetrieveError.
func (m *Manager) SetQueueFromMusicID(id string) bool {
	if !m.catalog.IsInitialized() {
		m.retrieveError(errors.Wrapf(ErrCatalogUnavailable, "set queue from %s", id))
		return false
	}

	t, ok := m.catalog.Lookup(id)
	if !ok {
		m.retrieveError(errors.Wrapf(ErrCatalogUnavailable, "media id %s not found", id))
		return false
	}

	parentID := t.ParentID
	if t.Browsable {
		parentID = t.ID
	}

	items := playableOnly(m.catalog.Children(parentID))
	start := 0
	if !t.Browsable {
		start = indexOf(items, t.ID)
	}
	if len(items) == 0 || start < 0 {
		m.retrieveError(errors.Wrapf(ErrNoMatch, "media id %s", id))
		return false
	}

	title := t.Title
	if !t.Browsable {
		title = ""
		if parent, ok := m.catalog.Lookup(parentID); ok {
			title = parent.Title
		}
	}

	m.replace(title, items, start)
	return true
}

// SetQueueFromSearch replaces the queue with the tracks matching query.
// An empty result leaves the queue untouched.
func (m *Manager) SetQueueFromSearch(query string) bool {
	if !m.catalog.IsInitialized() {
		m.retrieveError(errors.Wrapf(ErrCatalogUnavailable, "search %q", query))
		return false
	}

	items := playableOnly(m.catalog.Search(query))
	if len(items) == 0 {
		m.retrieveError(errors.Wrapf(ErrNoMatch, "search %q", query))
		return false
	}

	m.replace(fmt.Sprintf("Search results for %q", query), items, 0)
	return true
}

// Skip moves the cursor by delta, clamped to the queue bounds. It reports
// whether the index changed. On a non-empty queue the index event is emitted
// even when clamping leaves it in place.
func (m *Manager) Skip(delta int) bool {
	n := m.queue.Len()
	if n == 0 {
		zlog.Debug().Msgf("skip on empty queue ignored: delta=%d", delta)
		return false
	}

	prev := m.index
	next := prev + delta
	if prev < 0 {
		next = delta
	}
	if next < 0 {
		next = 0
	}
	if next > n-1 {
		next = n - 1
	}

	m.index = next
	for _, l := range m.listeners {
		l.OnCurrentQueueIndexUpdated(next)
	}
	m.UpdateMetadata()
	return next != prev
}

// UpdateMetadata re-resolves the current track from the catalog and emits
// OnMetadataChanged. A track that no longer resolves is reported through
// OnMetadataRetrieveError; the queue itself is kept.
func (m *Manager) UpdateMetadata() {
	current, ok := m.Current()
	if !ok {
		m.retrieveError(errors.Wrap(ErrNoMatch, "queue has no current track"))
		return
	}

	if !m.catalog.IsInitialized() {
		m.retrieveError(errors.Wrapf(ErrCatalogUnavailable, "refresh %s", current.ID))
		return
	}

	fresh, ok := m.catalog.Lookup(current.ID)
	if !ok {
		m.retrieveError(errors.Wrapf(ErrCatalogUnavailable, "track %s no longer in catalog", current.ID))
		return
	}

	m.queue.Tracks[m.index] = fresh
	for _, l := range m.listeners {
		l.OnMetadataChanged(fresh)
	}
}

func (m *Manager) replace(title string, items []track.Track, index int) {
	m.queue = playlist.Playlist{Title: title, Tracks: items}
	m.index = index

	zlog.Info().Msgf("queue replaced: title=%q tracks=%d index=%d", title, len(items), index)

	snapshot := m.Items()
	for _, l := range m.listeners {
		l.OnQueueUpdated(title, snapshot)
	}
	for _, l := range m.listeners {
		l.OnCurrentQueueIndexUpdated(index)
	}
	for _, l := range m.listeners {
		l.OnMetadataChanged(items[index])
	}
}

func (m *Manager) retrieveError(err error) {
	zlog.Warn().Msgf("metadata retrieve failed: %v", err)
	for _, l := range m.listeners {
		l.OnMetadataRetrieveError(err)
	}
}

func playableOnly(tracks []track.Track) []track.Track {
	out := make([]track.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.Playable {
			out = append(out, t)
		}
	}
	return out
}

func indexOf(tracks []track.Track, id string) int {
	for i, t := range tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}
