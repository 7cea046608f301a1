package provider

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mediad/internal/domain/track"
	"github.com/osa030/mediad/internal/infra/lastfm"
)

// ProviderWithMetadata wraps a provider with its metadata.
type ProviderWithMetadata struct {
	Provider    Provider
	DisplayName string
}

// Chain fetches tracks from every provider and merges them in order.
// A failing provider is skipped; the chain fails only if all providers fail.
type Chain struct {
	providers []ProviderWithMetadata
	tagger    GenreTagger
}

// GenreTagger looks up the most popular tags of a track.
type GenreTagger interface {
	GetTopTags(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.Tag, error)
}

// NewChain creates a new provider chain.
func NewChain(providers []ProviderWithMetadata) *Chain {
	return &Chain{
		providers: providers,
	}
}

// WithGenreTagger fills in missing genres from the tagger's top tag.
func (c *Chain) WithGenreTagger(tagger GenreTagger) *Chain {
	c.tagger = tagger
	return c
}

// Fetch retrieves tracks from all providers. Later duplicates of an id are dropped.
func (c *Chain) Fetch(ctx context.Context) ([]track.Track, error) {
	var all []track.Track
	seen := make(map[string]bool)
	failures := 0

	for i, pm := range c.providers {
		zlog.Debug().Msgf("fetching from provider: index=%d total=%d name=%s provider_type=%s",
			i+1, len(c.providers), pm.DisplayName, pm.Provider.Name())

		tracks, err := pm.Provider.Fetch(ctx)
		if err != nil {
			failures++
			zlog.Warn().Msgf("provider failed, skipping: provider=%s error=%v", pm.DisplayName, err)
			continue
		}

		added := 0
		for _, t := range tracks {
			if t.ID == "" || seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			all = append(all, t)
			added++
		}

		zlog.Info().Msgf("provider returned tracks: provider=%s count=%d total_so_far=%d",
			pm.DisplayName, added, len(all))
	}

	if len(c.providers) > 0 && failures == len(c.providers) {
		return nil, errors.New("all providers failed to return tracks")
	}

	if c.tagger != nil {
		c.tagGenres(ctx, all)
	}

	return all, nil
}

// Name returns the chain name.
func (c *Chain) Name() string {
	return "provider_chain"
}

func (c *Chain) tagGenres(ctx context.Context, tracks []track.Track) {
	tagged := 0
	for i := range tracks {
		t := &tracks[i]
		if t.Genre != "" || t.Artist == "" {
			continue
		}
		tags, err := c.tagger.GetTopTags(ctx, t.Title, t.Artist, 1)
		if err != nil {
			zlog.Debug().Msgf("genre lookup failed: track=%s error=%v", t.ID, err)
			continue
		}
		if len(tags) > 0 {
			t.Genre = tags[0].Name
			tagged++
		}
	}
	zlog.Debug().Msgf("genres tagged from last.fm: count=%d", tagged)
}
