package queue

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/mediad/internal/domain/track"
)

type fakeCatalog struct {
	initialized bool
	byID        map[string]track.Track
	children    map[string][]string
}

func newFakeCatalog() *fakeCatalog {
	c := &fakeCatalog{
		initialized: true,
		byID:        map[string]track.Track{},
		children:    map[string][]string{},
	}
	c.add(track.Track{ID: "root", Title: "Favourites", Browsable: true})
	for _, id := range []string{"A", "B", "C"} {
		c.add(track.Track{ID: id, Title: "Song " + id, Artist: "Band", ParentID: "root", Playable: true})
	}
	return c
}

func (c *fakeCatalog) add(t track.Track) {
	c.byID[t.ID] = t
	if t.ParentID != "" {
		c.children[t.ParentID] = append(c.children[t.ParentID], t.ID)
	}
}

func (c *fakeCatalog) IsInitialized() bool { return c.initialized }

func (c *fakeCatalog) Lookup(id string) (track.Track, bool) {
	t, ok := c.byID[id]
	return t, ok
}

func (c *fakeCatalog) Children(parentID string) []track.Track {
	var out []track.Track
	for _, id := range c.children[parentID] {
		out = append(out, c.byID[id])
	}
	return out
}

func (c *fakeCatalog) Search(query string) []track.Track {
	var out []track.Track
	for _, id := range c.children["root"] {
		if t := c.byID[id]; strings.Contains(strings.ToLower(t.Title), strings.ToLower(query)) {
			out = append(out, t)
		}
	}
	return out
}

type event struct {
	kind  string
	index int
	id    string
	title string
	err   error
}

type recorder struct {
	events []event
}

func (r *recorder) OnMetadataChanged(t track.Track) {
	r.events = append(r.events, event{kind: "metadata", id: t.ID})
}

func (r *recorder) OnMetadataRetrieveError(err error) {
	r.events = append(r.events, event{kind: "error", err: err})
}

func (r *recorder) OnCurrentQueueIndexUpdated(index int) {
	r.events = append(r.events, event{kind: "index", index: index})
}

func (r *recorder) OnQueueUpdated(title string, items []track.Track) {
	r.events = append(r.events, event{kind: "queue", title: title, index: len(items)})
}

func (r *recorder) count(kind string) int {
	n := 0
	for _, e := range r.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) reset() {
	r.events = nil
}

func newManager(t *testing.T, c *fakeCatalog) (*Manager, *recorder) {
	t.Helper()
	m := NewManager(c)
	rec := &recorder{}
	m.AddListener(rec)
	return m, rec
}

func currentID(t *testing.T, m *Manager) string {
	t.Helper()
	cur, ok := m.Current()
	require.True(t, ok)
	return cur.ID
}

func TestManager_Empty(t *testing.T) {
	m, rec := newManager(t, newFakeCatalog())

	assert.Equal(t, -1, m.Index())
	assert.Equal(t, 0, m.Len())
	_, ok := m.Current()
	assert.False(t, ok)

	assert.False(t, m.Skip(1))
	assert.Empty(t, rec.events)
	assert.Equal(t, -1, m.Index())
}

func TestManager_SkipScenario(t *testing.T) {
	m, rec := newManager(t, newFakeCatalog())

	require.True(t, m.SetQueueFromMusicID("B"))
	assert.Equal(t, []event{
		{kind: "queue", title: "Favourites", index: 3},
		{kind: "index", index: 1},
		{kind: "metadata", id: "B"},
	}, rec.events)
	assert.Equal(t, 1, m.Index())
	assert.Equal(t, "B", currentID(t, m))

	rec.reset()
	assert.True(t, m.Skip(1))
	assert.Equal(t, 2, m.Index())
	assert.Equal(t, "C", currentID(t, m))
	assert.Equal(t, 1, rec.count("index"))
	assert.Equal(t, []event{{kind: "index", index: 2}, {kind: "metadata", id: "C"}}, rec.events)

	rec.reset()
	assert.False(t, m.Skip(1))
	assert.Equal(t, 2, m.Index(), "clamped at the end")
	assert.Equal(t, 1, rec.count("index"), "event still emitted at the boundary")
	assert.Equal(t, 2, rec.events[0].index)
}

func TestManager_SkipClamp(t *testing.T) {
	tests := []struct {
		name      string
		start     string
		delta     int
		wantIndex int
		wantMoved bool
	}{
		{name: "back past the start", start: "A", delta: -1, wantIndex: 0, wantMoved: false},
		{name: "far back", start: "C", delta: -10, wantIndex: 0, wantMoved: true},
		{name: "far forward", start: "A", delta: 10, wantIndex: 2, wantMoved: true},
		{name: "zero", start: "B", delta: 0, wantIndex: 1, wantMoved: false},
		{name: "one back", start: "B", delta: -1, wantIndex: 0, wantMoved: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, rec := newManager(t, newFakeCatalog())
			require.True(t, m.SetQueueFromMusicID(tt.start))
			rec.reset()

			assert.Equal(t, tt.wantMoved, m.Skip(tt.delta))
			assert.Equal(t, tt.wantIndex, m.Index())
			assert.Equal(t, 1, rec.count("index"))
			assert.Equal(t, 1, rec.count("metadata"))
		})
	}
}

func TestManager_RoundTrip(t *testing.T) {
	for _, id := range []string{"A", "B", "C"} {
		t.Run(id, func(t *testing.T) {
			m, _ := newManager(t, newFakeCatalog())
			require.True(t, m.SetQueueFromMusicID(id))
			m.Skip(0)
			assert.Equal(t, id, currentID(t, m))
		})
	}
}

func TestManager_BrowsableID(t *testing.T) {
	m, rec := newManager(t, newFakeCatalog())

	require.True(t, m.SetQueueFromMusicID("root"))
	assert.Equal(t, 0, m.Index())
	assert.Equal(t, "A", currentID(t, m))
	assert.Equal(t, "Favourites", m.Title())
	assert.Equal(t, 1, rec.count("queue"))
}

func TestManager_CatalogUnavailable(t *testing.T) {
	c := newFakeCatalog()
	c.initialized = false
	m, rec := newManager(t, c)

	assert.False(t, m.SetQueueFromMusicID("A"))
	assert.False(t, m.SetQueueFromSearch("song"))

	require.Len(t, rec.events, 2)
	for _, e := range rec.events {
		assert.Equal(t, "error", e.kind)
		assert.True(t, errors.Is(e.err, ErrCatalogUnavailable))
	}
	assert.Equal(t, -1, m.Index())
}

func TestManager_UnknownID(t *testing.T) {
	m, rec := newManager(t, newFakeCatalog())

	assert.False(t, m.SetQueueFromMusicID("missing"))
	require.Len(t, rec.events, 1)
	assert.True(t, errors.Is(rec.events[0].err, ErrCatalogUnavailable))
}

func TestManager_UpdateMetadata(t *testing.T) {
	c := newFakeCatalog()
	m, rec := newManager(t, c)
	require.True(t, m.SetQueueFromMusicID("B"))
	rec.reset()

	updated := c.byID["B"]
	updated.Title = "Song B (Remastered)"
	c.byID["B"] = updated

	m.UpdateMetadata()
	require.Len(t, rec.events, 1)
	assert.Equal(t, "metadata", rec.events[0].kind)
	cur, _ := m.Current()
	assert.Equal(t, "Song B (Remastered)", cur.Title)

	rec.reset()
	delete(c.byID, "B")
	m.UpdateMetadata()
	require.Len(t, rec.events, 1)
	assert.Equal(t, "error", rec.events[0].kind)
	assert.True(t, errors.Is(rec.events[0].err, ErrCatalogUnavailable))
	assert.Equal(t, 3, m.Len(), "queue survives a vanished track")
	assert.Equal(t, 1, m.Index())
}

func TestManager_SetQueueFromSearch(t *testing.T) {
	m, rec := newManager(t, newFakeCatalog())

	require.True(t, m.SetQueueFromSearch("song c"))
	assert.Equal(t, `Search results for "song c"`, m.Title())
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, "C", currentID(t, m))
	assert.Equal(t, []string{"queue", "index", "metadata"}, []string{rec.events[0].kind, rec.events[1].kind, rec.events[2].kind})

	rec.reset()
	assert.False(t, m.SetQueueFromSearch("nothing like this"))
	require.Len(t, rec.events, 1)
	assert.True(t, errors.Is(rec.events[0].err, ErrNoMatch))
	assert.Equal(t, "C", currentID(t, m), "queue unchanged on no match")
}
