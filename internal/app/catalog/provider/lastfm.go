package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mediad/internal/domain/track"
	"github.com/osa030/mediad/internal/infra/lastfm"
)

// ChartGenre is the genre assigned to tracks taken from the global chart.
const ChartGenre = "Top Charts"

// LastFmProviderConfig represents the configuration for LastFmProvider.
type LastFmProviderConfig struct {
	Tags         []string `mapstructure:"tags"`
	TracksPerTag int      `mapstructure:"tracks_per_tag" default:"10" validate:"gte=1,lte=50"`
	Chart        bool     `mapstructure:"chart"`
}

// LastFmProvider builds genres from Last.fm tag charts and resolves each
// entry to a playable Spotify track.
type LastFmProvider struct {
	lastfm  LastFmClient
	spotify SpotifyClient

	// Cache for Spotify search results
	searchCache map[string]*track.Track
	cacheMutex  sync.RWMutex

	config *LastFmProviderConfig
}

// NewLastFmProvider creates a new LastFmProvider.
func NewLastFmProvider(lastfmClient LastFmClient, spotify SpotifyClient, settings map[string]any) (*LastFmProvider, error) {
	if lastfmClient == nil {
		return nil, errors.New("last.fm client is required")
	}
	if spotify == nil {
		return nil, errors.New("spotify client is required")
	}

	var config LastFmProviderConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	if len(config.Tags) == 0 && !config.Chart {
		return nil, errors.New("at least one tag or chart must be configured")
	}

	return &LastFmProvider{
		lastfm:      lastfmClient,
		spotify:     spotify,
		searchCache: make(map[string]*track.Track),
		config:      &config,
	}, nil
}

// Fetch resolves the top tracks of every tag, in tag order.
func (p *LastFmProvider) Fetch(ctx context.Context) ([]track.Track, error) {
	type group struct {
		genre  string
		tracks []track.Track
		err    error
	}

	type lookup struct {
		genre string
		fetch func() ([]lastfm.TopTrack, error)
	}

	var lookups []lookup
	for _, tag := range p.config.Tags {
		lookups = append(lookups, lookup{genre: tag, fetch: func() ([]lastfm.TopTrack, error) {
			return p.lastfm.GetTopTracks(ctx, tag, p.config.TracksPerTag)
		}})
	}
	if p.config.Chart {
		lookups = append(lookups, lookup{genre: ChartGenre, fetch: func() ([]lastfm.TopTrack, error) {
			return p.lastfm.GetChartTopTracks(ctx, p.config.TracksPerTag)
		}})
	}

	groups := make([]group, len(lookups))
	var wg sync.WaitGroup
	for i, l := range lookups {
		wg.Add(1)
		go func() {
			defer wg.Done()
			top, err := l.fetch()
			groups[i] = group{genre: l.genre, tracks: p.resolve(ctx, l.genre, top), err: err}
		}()
	}
	wg.Wait()

	var tracks []track.Track
	failed := 0
	for _, g := range groups {
		if g.err != nil {
			failed++
			zlog.Warn().Msgf("failed to get top tracks: tag=%s error=%v", g.genre, g.err)
			continue
		}
		tracks = append(tracks, g.tracks...)
	}

	if failed == len(groups) {
		return nil, errors.New("all last.fm lookups failed")
	}
	return tracks, nil
}

// Name returns the provider name.
func (p *LastFmProvider) Name() string {
	return "lastfm"
}

func (p *LastFmProvider) resolve(ctx context.Context, genre string, top []lastfm.TopTrack) []track.Track {
	result := make([]track.Track, 0, len(top))
	for _, lt := range top {
		t := p.searchOnSpotify(ctx, lt.Name, lt.Artist)
		if t == nil {
			continue
		}
		resolved := *t
		resolved.Genre = genre
		if resolved.Duration == 0 {
			resolved.Duration = lt.Duration
		}
		result = append(result, resolved)
	}
	return result
}

// searchOnSpotify searches for a track on Spotify with caching.
func (p *LastFmProvider) searchOnSpotify(ctx context.Context, trackName, artistName string) *track.Track {
	key := fmt.Sprintf("%s:%s", trackName, artistName)

	p.cacheMutex.RLock()
	if cached, ok := p.searchCache[key]; ok {
		p.cacheMutex.RUnlock()
		return cached
	}
	p.cacheMutex.RUnlock()

	var found *track.Track
	query := fmt.Sprintf("track:%s artist:%s", trackName, artistName)
	results, err := p.spotify.Search(ctx, query, 1)
	if err == nil && len(results) > 0 {
		found = &results[0]
	}

	// Cache misses too, to avoid repeated failed searches
	p.cacheMutex.Lock()
	p.searchCache[key] = found
	p.cacheMutex.Unlock()

	return found
}
