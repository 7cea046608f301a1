package provider

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dhowden/tag"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mediad/internal/domain/track"
)

// DefaultExtensions lists the audio file extensions picked up by a directory scan.
var DefaultExtensions = []string{".mp3", ".flac", ".m4a", ".ogg", ".wav"}

// DirectoryProviderConfig represents the configuration for DirectoryProvider.
type DirectoryProviderConfig struct {
	Path       string   `mapstructure:"path" validate:"required"`
	Extensions []string `mapstructure:"extensions"`
}

// DirectoryProvider builds the catalog by scanning a music directory.
type DirectoryProvider struct {
	config *DirectoryProviderConfig
}

// NewDirectoryProvider creates a new DirectoryProvider.
func NewDirectoryProvider(settings map[string]any) (*DirectoryProvider, error) {
	var config DirectoryProviderConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	if len(config.Extensions) == 0 {
		config.Extensions = DefaultExtensions
	}
	return &DirectoryProvider{config: &config}, nil
}

// Fetch walks the directory and reads tags from every audio file.
func (p *DirectoryProvider) Fetch(ctx context.Context) ([]track.Track, error) {
	return ScanDirectory(ctx, p.config.Path, p.config.Extensions)
}

// Name returns the provider name.
func (p *DirectoryProvider) Name() string {
	return "directory"
}

// ScanDirectory walks root and returns a track per readable audio file.
// Files without tags fall back to their file name as title.
func ScanDirectory(ctx context.Context, root string, extensions []string) ([]track.Track, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat music directory")
	}
	if !info.IsDir() {
		return nil, errors.Newf("not a directory: %s", root)
	}

	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = true
	}

	var tracks []track.Track
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			zlog.Warn().Msgf("skipping unreadable path: path=%s error=%v", path, err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !allowed[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		tracks = append(tracks, readTrack(path, filepath.ToSlash(rel)))
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan music directory")
	}

	zlog.Debug().Msgf("directory scanned: root=%s tracks=%d", root, len(tracks))
	return tracks, nil
}

func readTrack(path, rel string) track.Track {
	t := track.Track{
		ID:       "file:" + rel,
		Title:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Source:   path,
		Playable: true,
	}

	f, err := os.Open(path)
	if err != nil {
		zlog.Warn().Msgf("failed to open audio file: path=%s error=%v", path, err)
		return t
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		if !errors.Is(err, tag.ErrNoTagsFound) {
			zlog.Debug().Msgf("failed to read tags: path=%s error=%v", path, err)
		}
		return t
	}

	if title := strings.TrimSpace(m.Title()); title != "" {
		t.Title = title
	}
	t.Artist = strings.TrimSpace(m.Artist())
	if t.Artist == "" {
		t.Artist = strings.TrimSpace(m.AlbumArtist())
	}
	t.Album = strings.TrimSpace(m.Album())
	t.Genre = strings.TrimSpace(m.Genre())
	return t
}
