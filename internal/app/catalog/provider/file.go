package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/osa030/mediad/internal/domain/track"
)

// FileProviderConfig represents the configuration for FileProvider.
type FileProviderConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// catalogFile is the on-disk catalog document. JSON documents parse as well.
type catalogFile struct {
	Music []catalogEntry `yaml:"music"`
}

type catalogEntry struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Album    string `yaml:"album"`
	Artist   string `yaml:"artist"`
	Genre    string `yaml:"genre"`
	Source   string `yaml:"source"`
	Image    string `yaml:"image"`
	Duration int    `yaml:"duration"` // seconds
}

// FileProvider reads a catalog document from disk.
type FileProvider struct {
	config *FileProviderConfig
}

// NewFileProvider creates a new FileProvider.
func NewFileProvider(settings map[string]any) (*FileProvider, error) {
	var config FileProviderConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	zlog.Debug().Msgf("file provider config: %+v", config)
	return &FileProvider{config: &config}, nil
}

// Fetch parses the catalog document.
func (p *FileProvider) Fetch(_ context.Context) ([]track.Track, error) {
	data, err := os.ReadFile(p.config.Path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read catalog file")
	}
	return parseCatalog(data, filepath.Dir(p.config.Path))
}

// Name returns the provider name.
func (p *FileProvider) Name() string {
	return "file"
}

func parseCatalog(data []byte, baseDir string) ([]track.Track, error) {
	var doc catalogFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse catalog file")
	}

	tracks := make([]track.Track, 0, len(doc.Music))
	for i, e := range doc.Music {
		if e.Title == "" || e.Source == "" {
			zlog.Warn().Msgf("catalog entry skipped: index=%d title=%q source=%q", i, e.Title, e.Source)
			continue
		}

		source := e.Source
		if !strings.Contains(source, "://") && !filepath.IsAbs(source) {
			source = filepath.Join(baseDir, source)
		}

		id := e.ID
		if id == "" {
			id = entryID(e.Source)
		}

		tracks = append(tracks, track.Track{
			ID:       id,
			Title:    e.Title,
			Artist:   e.Artist,
			Album:    e.Album,
			Genre:    e.Genre,
			Duration: time.Duration(e.Duration) * time.Second,
			Source:   source,
			ArtURL:   e.Image,
			Playable: true,
		})
	}
	return tracks, nil
}

// entryID derives a stable media id from the source locator.
func entryID(source string) string {
	h := fnv.New64a()
	h.Write([]byte(source))
	return fmt.Sprintf("music-%016x", h.Sum64())
}
