package provider

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mediad/internal/infra/config"
)

// Deps carries the API clients providers may need. Nil clients are allowed
// as long as no configured source requires them.
type Deps struct {
	Spotify SpotifyClient
	LastFm  LastFmClient
	Tagger  GenreTagger
}

// NewChainFromConfig creates a provider chain from configuration.
func NewChainFromConfig(cfg *config.Config, deps Deps) (*Chain, error) {
	if len(cfg.Catalog.Sources) == 0 {
		return nil, errors.New("no catalog sources configured")
	}

	var providers []ProviderWithMetadata

	for i, scfg := range cfg.Catalog.Sources {
		var p Provider
		var err error
		zlog.Debug().Msgf("creating catalog provider: index=%d type=%s settings=%+v", i+1, scfg.Type, scfg.Settings)
		switch scfg.Type {
		case config.SourceFile:
			p, err = NewFileProvider(scfg.Settings)

		case config.SourceDirectory:
			p, err = NewDirectoryProvider(scfg.Settings)

		case config.SourceSQLite:
			p, err = NewSQLiteProvider(scfg.Settings)

		case config.SourceSpotify:
			p, err = NewSpotifyProvider(deps.Spotify, scfg.Settings)

		case config.SourceLastFm:
			p, err = NewLastFmProvider(deps.LastFm, deps.Spotify, scfg.Settings)

		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", scfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, scfg.Type)
		}

		providers = append(providers, ProviderWithMetadata{
			Provider:    p,
			DisplayName: scfg.DisplayName,
		})

		zlog.Info().Msgf("registered catalog provider: index=%d type=%s display_name=%s", i+1, scfg.Type, scfg.DisplayName)
	}

	chain := NewChain(providers)
	if cfg.Catalog.TagGenres {
		if deps.Tagger == nil {
			return nil, errors.New("catalog.tag_genres requires a last.fm client")
		}
		chain.WithGenreTagger(deps.Tagger)
	}
	return chain, nil
}
