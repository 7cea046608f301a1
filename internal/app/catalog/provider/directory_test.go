package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "album"), 0o755))
	for _, name := range []string{"album/one.mp3", "album/two.FLAC", "notes.txt", "cover.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("not really audio"), 0o644))
	}

	tracks, err := ScanDirectory(context.Background(), root, DefaultExtensions)
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	byID := map[string]string{}
	for _, tr := range tracks {
		byID[tr.ID] = tr.Title
		assert.True(t, tr.Playable)
		assert.FileExists(t, tr.Source)
	}
	assert.Equal(t, "one", byID["file:album/one.mp3"])
	assert.Equal(t, "two", byID["file:album/two.FLAC"])
}

func TestScanDirectory_Errors(t *testing.T) {
	_, err := ScanDirectory(context.Background(), filepath.Join(t.TempDir(), "missing"), DefaultExtensions)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.mp3")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = ScanDirectory(context.Background(), file, DefaultExtensions)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.mp3"), nil, 0o644))
	_, err = ScanDirectory(ctx, root, DefaultExtensions)
	assert.Error(t, err)
}

func TestDirectoryProvider_CustomExtensions(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.mp3"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.opus"), nil, 0o644))

	p, err := NewDirectoryProvider(map[string]any{"path": root, "extensions": []string{".opus"}})
	require.NoError(t, err)

	tracks, err := p.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "file:b.opus", tracks[0].ID)
}
