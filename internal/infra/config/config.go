// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Catalog source types.
const (
	SourceFile      = "file"
	SourceDirectory = "directory"
	SourceSQLite    = "sqlite"
	SourceSpotify   = "spotify"
	SourceLastFm    = "lastfm"
)

// Playback backends.
const (
	BackendClock   = "clock"
	BackendSpeaker = "speaker"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Session    SessionConfig    `yaml:"session"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Playback   PlaybackConfig   `yaml:"playback"`
	Gatekeeper GatekeeperConfig `yaml:"gatekeeper"`
	Desktop    DesktopConfig    `yaml:"desktop"`
	Spotify    SpotifyConfig    `yaml:"spotify"`
	LastFm     LastFmConfig     `yaml:"lastfm"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr       string      `yaml:"addr" default:":8080"`
	AdminToken string      `yaml:"admin_token"`
	Hooks      HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// SessionConfig represents media session configuration.
type SessionConfig struct {
	StopDelayMs      int    `yaml:"stop_delay_ms" default:"30000" validate:"gte=0,lte=86400000"`
	SubscriberBuffer int    `yaml:"subscriber_buffer" default:"64" validate:"gte=1,lte=4096"`
	GenresTitle      string `yaml:"genres_title" default:"Genres"`
}

// CatalogConfig represents catalog configuration.
type CatalogConfig struct {
	LoadTimeoutMs int            `yaml:"load_timeout_ms" default:"30000" validate:"gte=0"`
	TagGenres     bool           `yaml:"tag_genres"`
	Sources       []SourceConfig `yaml:"sources" validate:"required,min=1,dive"`
}

// SourceConfig represents a single catalog source.
type SourceConfig struct {
	Type        string         `yaml:"type" validate:"required,oneof=file directory sqlite spotify lastfm"`
	DisplayName string         `yaml:"display_name" validate:"required"`
	Settings    map[string]any `yaml:"settings"`
}

// PlaybackConfig represents playback backend configuration.
type PlaybackConfig struct {
	Backend        string `yaml:"backend" default:"clock" validate:"oneof=clock speaker"`
	BufferDelayMs  int    `yaml:"buffer_delay_ms" default:"200" validate:"gte=0,lte=10000"`
	DefaultTrackMs int    `yaml:"default_track_ms" default:"180000" validate:"gte=1000"`
}

// GatekeeperConfig represents client identity policy.
type GatekeeperConfig struct {
	DenyByDefault bool         `yaml:"deny_by_default"`
	Rules         []RuleConfig `yaml:"rules" validate:"dive"`
}

// RuleConfig represents a single gatekeeper rule.
type RuleConfig struct {
	Type     string         `yaml:"type" validate:"required"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// DesktopConfig represents desktop integration configuration.
type DesktopConfig struct {
	Notifications         bool   `yaml:"notifications"`
	NotificationTimeoutMs int    `yaml:"notification_timeout_ms" default:"5000" validate:"gte=0"`
	MPRIS                 bool   `yaml:"mpris"`
	Identity              string `yaml:"identity" default:"mediad"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID          string  `yaml:"client_id"`
	ClientSecret      string  `yaml:"client_secret"`
	RefreshToken      string  `yaml:"refresh_token"`
	Market            string  `yaml:"market" validate:"omitempty,len=2" default:"JP"`
	RequestsPerSecond float64 `yaml:"requests_per_second" default:"5" validate:"gt=0"`
}

// LastFmConfig represents Last.fm API configuration.
type LastFmConfig struct {
	APIKey string `yaml:"api_key"`
}

// DefaultPath returns the config file in the XDG config directories, or
// "config.yaml" when none exists.
func DefaultPath() string {
	if path, err := xdg.SearchConfigFile(filepath.Join("mediad", "config.yaml")); err == nil {
		return path
	}
	return "config.yaml"
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		c.LastFm.APIKey = v
	}
	if v := os.Getenv("MEDIAD_ADMIN_TOKEN"); v != "" {
		c.Server.AdminToken = v
	}
	if v := os.Getenv("MEDIAD_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if err := c.validateCredentials(); err != nil {
		return err
	}

	return nil
}

// validateCredentials checks that sources requiring API access have credentials.
func (c *Config) validateCredentials() error {
	for i, src := range c.Catalog.Sources {
		switch src.Type {
		case SourceSpotify:
			if !c.HasSpotifyCredentials() {
				return errors.Newf("catalog source %d (%s) requires spotify credentials", i, src.DisplayName)
			}
		case SourceLastFm:
			if c.LastFm.APIKey == "" {
				return errors.Newf("catalog source %d (%s) requires lastfm.api_key", i, src.DisplayName)
			}
			if !c.HasSpotifyCredentials() {
				return errors.Newf("catalog source %d (%s) resolves tracks through spotify and requires spotify credentials", i, src.DisplayName)
			}
		}
	}
	if c.Catalog.TagGenres && c.LastFm.APIKey == "" {
		return errors.New("catalog.tag_genres requires lastfm.api_key")
	}
	return nil
}

// HasSpotifyCredentials reports whether all Spotify credentials are set.
func (c *Config) HasSpotifyCredentials() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != "" && c.Spotify.RefreshToken != ""
}

// UsesSource reports whether a catalog source of the given type is configured.
func (c *Config) UsesSource(sourceType string) bool {
	for _, src := range c.Catalog.Sources {
		if src.Type == sourceType {
			return true
		}
	}
	return false
}

// StopDelay returns the delayed-stop timeout.
func (c *Config) StopDelay() time.Duration {
	return time.Duration(c.Session.StopDelayMs) * time.Millisecond
}

// LoadTimeout returns the catalog load timeout.
func (c *Config) LoadTimeout() time.Duration {
	return time.Duration(c.Catalog.LoadTimeoutMs) * time.Millisecond
}
