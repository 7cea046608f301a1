package provider

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mediad/internal/domain/track"
)

// SpotifyProviderConfig represents the configuration for SpotifyProvider.
type SpotifyProviderConfig struct {
	Playlists []string `mapstructure:"playlists" validate:"required,min=1"`
}

// SpotifyProvider exposes Spotify playlists as catalog genres.
// Each track's genre is the name of the playlist it came from.
type SpotifyProvider struct {
	spotify SpotifyClient
	config  *SpotifyProviderConfig
}

// NewSpotifyProvider creates a new SpotifyProvider.
func NewSpotifyProvider(spotify SpotifyClient, settings map[string]any) (*SpotifyProvider, error) {
	if spotify == nil {
		return nil, errors.New("spotify client is required")
	}

	var config SpotifyProviderConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	zlog.Debug().Msgf("spotify provider config: %+v", config)
	return &SpotifyProvider{spotify: spotify, config: &config}, nil
}

// Fetch loads every configured playlist. A playlist that fails is skipped.
func (p *SpotifyProvider) Fetch(ctx context.Context) ([]track.Track, error) {
	var tracks []track.Track
	var lastErr error

	for _, url := range p.config.Playlists {
		pl, err := p.spotify.GetPlaylist(ctx, url)
		if err != nil {
			lastErr = err
			zlog.Warn().Msgf("failed to load playlist: url=%s error=%v", url, err)
			continue
		}
		for _, t := range pl.Tracks {
			t.Genre = pl.Name
			tracks = append(tracks, t)
		}
	}

	if len(tracks) == 0 && lastErr != nil {
		return nil, errors.Wrap(lastErr, "failed to load any playlist")
	}
	return tracks, nil
}

// Name returns the provider name.
func (p *SpotifyProvider) Name() string {
	return "spotify"
}
