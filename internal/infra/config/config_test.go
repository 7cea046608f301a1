package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
catalog:
  sources:
    - type: file
      display_name: Local
      settings:
        path: catalog.yaml
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30000, cfg.Session.StopDelayMs)
	assert.Equal(t, 30*time.Second, cfg.StopDelay())
	assert.Equal(t, 64, cfg.Session.SubscriberBuffer)
	assert.Equal(t, "Genres", cfg.Session.GenresTitle)
	assert.Equal(t, 30*time.Second, cfg.LoadTimeout())
	assert.Equal(t, BackendClock, cfg.Playback.Backend)
	assert.Equal(t, 200, cfg.Playback.BufferDelayMs)
	assert.Equal(t, "JP", cfg.Spotify.Market)
	assert.Equal(t, "mediad", cfg.Desktop.Identity)
	assert.False(t, cfg.Gatekeeper.DenyByDefault)
	assert.True(t, cfg.UsesSource(SourceFile))
	assert.False(t, cfg.UsesSource(SourceSpotify))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid minimal config",
			yaml:    minimalYAML,
			wantErr: false,
		},
		{
			name:    "no sources",
			yaml:    "server:\n  addr: \":9000\"\n",
			wantErr: true,
		},
		{
			name: "unknown source type",
			yaml: `
catalog:
  sources:
    - type: ftp
      display_name: Nope
`,
			wantErr: true,
		},
		{
			name: "source without display name",
			yaml: `
catalog:
  sources:
    - type: file
`,
			wantErr: true,
		},
		{
			name: "spotify source without credentials",
			yaml: `
catalog:
  sources:
    - type: spotify
      display_name: Playlists
`,
			wantErr: true,
			errMsg:  "requires spotify credentials",
		},
		{
			name: "spotify source with credentials",
			yaml: `
spotify:
  client_id: id
  client_secret: secret
  refresh_token: token
catalog:
  sources:
    - type: spotify
      display_name: Playlists
`,
			wantErr: false,
		},
		{
			name: "lastfm source without api key",
			yaml: `
spotify:
  client_id: id
  client_secret: secret
  refresh_token: token
catalog:
  sources:
    - type: lastfm
      display_name: Charts
`,
			wantErr: true,
			errMsg:  "requires lastfm.api_key",
		},
		{
			name: "invalid backend",
			yaml: minimalYAML + `
playback:
  backend: vinyl
`,
			wantErr: true,
		},
		{
			name: "invalid market",
			yaml: minimalYAML + `
spotify:
  market: JPN
`,
			wantErr: true,
		},
		{
			name: "gatekeeper rule without type",
			yaml: minimalYAML + `
gatekeeper:
  rules:
    - settings:
        packages: [mediactl]
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if tt.wantErr {
				require.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML+`
server:
  admin_token: from-file
`), 0o644))

	t.Setenv("MEDIAD_ADMIN_TOKEN", "from-env")
	t.Setenv("LASTFM_API_KEY", "lastfm-key")
	t.Setenv("MEDIAD_ADDR", "127.0.0.1:9999")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Server.AdminToken)
	assert.Equal(t, "lastfm-key", cfg.LastFm.APIKey)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "config", "mediad.example.yaml"))
	require.NoError(t, err)

	assert.Equal(t, BackendSpeaker, cfg.Playback.Backend)
	assert.True(t, cfg.UsesSource(SourceSQLite))
	assert.True(t, cfg.UsesSource(SourceDirectory))
	assert.False(t, cfg.UsesSource(SourceSpotify))
	require.Len(t, cfg.Gatekeeper.Rules, 2)
	assert.Equal(t, "require_identity", cfg.Gatekeeper.Rules[0].Type)
	assert.True(t, cfg.Desktop.MPRIS)
}
