package provider

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/mediad/internal/domain/track"
	"github.com/osa030/mediad/internal/infra/librarydb"
)

// SQLiteProviderConfig represents the configuration for SQLiteProvider.
// An empty path selects the default library database.
type SQLiteProviderConfig struct {
	Path string `mapstructure:"path"`
}

// SQLiteProvider serves the tracks stored by a previous library scan.
type SQLiteProvider struct {
	config *SQLiteProviderConfig
}

// NewSQLiteProvider creates a new SQLiteProvider.
func NewSQLiteProvider(settings map[string]any) (*SQLiteProvider, error) {
	var config SQLiteProviderConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	if config.Path == "" {
		path, err := librarydb.DefaultPath()
		if err != nil {
			return nil, err
		}
		config.Path = path
	}
	return &SQLiteProvider{config: &config}, nil
}

// Fetch reads all tracks from the library database.
func (p *SQLiteProvider) Fetch(ctx context.Context) ([]track.Track, error) {
	db, err := librarydb.Open(p.config.Path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	tracks, err := db.Tracks(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read library database")
	}
	return tracks, nil
}

// Name returns the provider name.
func (p *SQLiteProvider) Name() string {
	return "sqlite"
}
