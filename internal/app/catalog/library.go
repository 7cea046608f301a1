package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mediad/internal/domain/track"
)

// Fetcher returns the playable tracks of the catalog.
type Fetcher interface {
	Fetch(ctx context.Context) ([]track.Track, error)
}

// Library is a Backend that indexes fetched tracks into the browse hierarchy:
// root, genres category, one node per genre, leaf tracks.
type Library struct {
	fetcher     Fetcher
	genresTitle string

	mu       sync.RWMutex
	byID     map[string]track.Track
	children map[string][]string
}

// NewLibrary creates a new library.
func NewLibrary(fetcher Fetcher, genresTitle string) *Library {
	if genresTitle == "" {
		genresTitle = "Genres"
	}
	return &Library{
		fetcher:     fetcher,
		genresTitle: genresTitle,
		byID:        make(map[string]track.Track),
		children:    make(map[string][]string),
	}
}

// Load fetches all tracks and rebuilds the index.
func (l *Library) Load(ctx context.Context) error {
	tracks, err := l.fetcher.Fetch(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to fetch tracks")
	}

	byID := make(map[string]track.Track, len(tracks)+8)
	children := make(map[string][]string)

	byID[track.GenresID] = track.Track{
		ID:        track.GenresID,
		Title:     l.genresTitle,
		ParentID:  track.RootID,
		Browsable: true,
	}
	children[track.RootID] = []string{track.GenresID}

	var genres []string
	for _, t := range tracks {
		if t.ID == "" {
			continue
		}
		if _, exists := byID[t.ID]; exists {
			zlog.Debug().Msgf("duplicate track skipped: id=%s title=%s", t.ID, t.Title)
			continue
		}

		genre := track.NormalizeGenre(t.Genre)
		genreID := track.GenreID(genre)
		if _, ok := byID[genreID]; !ok {
			byID[genreID] = track.Track{
				ID:        genreID,
				Title:     genre,
				Genre:     genre,
				ParentID:  track.GenresID,
				Browsable: true,
			}
			genres = append(genres, genreID)
		}

		t.ParentID = genreID
		t.Playable = true
		t.Browsable = false
		byID[t.ID] = t
		children[genreID] = append(children[genreID], t.ID)
	}

	sort.Strings(genres)
	children[track.GenresID] = genres

	l.mu.Lock()
	l.byID = byID
	l.children = children
	l.mu.Unlock()

	zlog.Info().Msgf("library indexed: tracks=%s genres=%d", humanize.Comma(int64(len(byID)-len(genres)-1)), len(genres))
	return nil
}

// TracksUnder returns the children of parentID in browse order.
func (l *Library) TracksUnder(parentID string) []track.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := l.children[parentID]
	result := make([]track.Track, 0, len(ids))
	for _, id := range ids {
		result = append(result, l.byID[id])
	}
	return result
}

// TrackByID returns the node with the given id.
func (l *Library) TrackByID(id string) (track.Track, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	t, ok := l.byID[id]
	return t, ok
}

// Search returns playable tracks matching the query in browse order.
func (l *Library) Search(query string) []track.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []track.Track
	for _, genreID := range l.children[track.GenresID] {
		for _, id := range l.children[genreID] {
			t := l.byID[id]
			if t.Playable && t.Matches(query) {
				result = append(result, t)
			}
		}
	}
	return result
}
