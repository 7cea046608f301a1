// Package provider supplies catalog tracks from local and remote sources.
package provider

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/mediad/internal/domain/track"
	"github.com/osa030/mediad/internal/infra/lastfm"
	"github.com/osa030/mediad/internal/infra/spotify"
)

// Provider is the interface for catalog track providers.
type Provider interface {
	// Fetch returns the playable tracks of the source.
	Fetch(ctx context.Context) ([]track.Track, error)

	// Name returns the provider name (used in config).
	Name() string
}

// SpotifyClient defines the Spotify operations needed by providers.
type SpotifyClient interface {
	GetPlaylist(ctx context.Context, playlistURL string) (*spotify.Playlist, error)
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
}

// LastFmClient defines the Last.fm operations needed by providers.
type LastFmClient interface {
	GetTopTracks(ctx context.Context, tagName string, limit int) ([]lastfm.TopTrack, error)
	GetChartTopTracks(ctx context.Context, limit int) ([]lastfm.TopTrack, error)
}

// decodeSettings decodes provider settings into out, applies defaults and validates.
func decodeSettings(settings map[string]any, out any) error {
	if err := mapstructure.Decode(settings, out); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
