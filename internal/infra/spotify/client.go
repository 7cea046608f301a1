// Package spotify provides a read-only client for the Spotify API used as a
// catalog source.
package spotify

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/osa030/mediad/internal/domain/track"
)

// MediaIDPrefix prefixes media ids of tracks that come from Spotify.
const MediaIDPrefix = "spotify:"

const (
	pageSize       = 100
	maxSearchLimit = 50
)

// Client is a Spotify API client.
type Client struct {
	api      *spotify.Client
	market   string
	attempts int
	backoff  time.Duration
	limiter  *rate.Limiter
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID          string
	ClientSecret      string
	RefreshToken      string
	Market            string
	RequestsPerSecond float64
}

// Playlist is a playlist with its tracks.
type Playlist struct {
	ID     string
	Name   string
	Tracks []track.Track
}

// New creates a client that refreshes its access token from cfg.RefreshToken.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopePlaylistReadCollaborative,
		),
	)
	httpClient := auth.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	return newClient(spotify.New(httpClient), cfg.Market, cfg.RequestsPerSecond), nil
}

func newClient(api *spotify.Client, market string, rps float64) *Client {
	if market == "" {
		market = "JP"
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		api:      api,
		market:   market,
		attempts: 3,
		backoff:  time.Second,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Search returns up to limit tracks matching query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if query == "" {
		return nil, errors.New("search query is required")
	}
	limit = min(max(limit, 1), maxSearchLimit)

	var result *spotify.SearchResult
	err := c.do(ctx, "search", func() (err error) {
		result, err = c.api.Search(ctx, query, spotify.SearchTypeTrack,
			spotify.Limit(limit), spotify.Market(c.market))
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.Tracks == nil {
		return []track.Track{}, nil
	}

	tracks := make([]track.Track, 0, len(result.Tracks.Tracks))
	for i := range result.Tracks.Tracks {
		tracks = append(tracks, convertTrack(&result.Tracks.Tracks[i]))
	}
	return tracks, nil
}

// GetPlaylist loads a playlist by URL, URI or plain id, following every page
// of its items. Episodes and local files are skipped.
func (c *Client) GetPlaylist(ctx context.Context, ref string) (*Playlist, error) {
	id := extractPlaylistID(ref)
	if id == "" {
		return nil, errors.Newf("invalid playlist reference: %q", ref)
	}

	var full *spotify.FullPlaylist
	err := c.do(ctx, "get playlist", func() (err error) {
		full, err = c.api.GetPlaylist(ctx, spotify.ID(id), spotify.Market(c.market))
		return err
	})
	if err != nil {
		return nil, err
	}

	tracks, err := c.playlistItems(ctx, spotify.ID(id))
	if err != nil {
		return nil, err
	}
	zlog.Debug().Msgf("spotify: playlist loaded: id=%s name=%s tracks=%d", id, full.Name, len(tracks))

	return &Playlist{ID: id, Name: full.Name, Tracks: tracks}, nil
}

func (c *Client) playlistItems(ctx context.Context, id spotify.ID) ([]track.Track, error) {
	var tracks []track.Track
	for offset := 0; ; offset += pageSize {
		var page *spotify.PlaylistItemPage
		err := c.do(ctx, "get playlist items", func() (err error) {
			page, err = c.api.GetPlaylistItems(ctx, id,
				spotify.Limit(pageSize), spotify.Offset(offset), spotify.Market(c.market))
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if t := item.Track.Track; t != nil && t.ID != "" {
				tracks = append(tracks, convertTrack(t))
			}
		}
		if len(page.Items) < pageSize {
			return tracks, nil
		}
	}
}

func convertTrack(t *spotify.FullTrack) track.Track {
	names := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		names[i] = a.Name
	}

	tr := track.Track{
		ID:       MediaIDPrefix + string(t.ID),
		Title:    t.Name,
		Artist:   strings.Join(names, ", "),
		Album:    t.Album.Name,
		Duration: time.Duration(t.Duration) * time.Millisecond,
		Source:   string(t.URI),
		Playable: true,
	}
	if tr.Source == "" {
		tr.Source = "spotify:track:" + string(t.ID)
	}
	if len(t.Album.Images) > 0 {
		tr.ArtURL = t.Album.Images[0].URL
	}
	return tr
}

// do runs fn, waiting on the rate limiter before every attempt. Throttled
// and server-side failures are retried with a growing delay.
func (c *Client) do(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if werr := c.limiter.Wait(ctx); werr != nil {
			return errors.Wrapf(werr, "spotify %s", op)
		}

		if err = fn(); err == nil || !isRetryable(err) {
			break
		}
		if attempt < c.attempts {
			zlog.Debug().Msgf("spotify: %s failed, retrying: attempt=%d error=%v", op, attempt, err)
			select {
			case <-ctx.Done():
				return errors.Wrapf(ctx.Err(), "spotify %s", op)
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}
	}
	if err != nil {
		return errors.Wrapf(err, "spotify %s", op)
	}
	return nil
}

// isRetryable reports whether err is a throttling or server error.
func isRetryable(err error) bool {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= http.StatusInternalServerError
	}
	return false
}

// extractPlaylistID accepts a playlist URI, an open.spotify.com link (with or
// without a locale segment) or a bare id.
func extractPlaylistID(ref string) string {
	ref = strings.TrimSpace(ref)
	if id, ok := strings.CutPrefix(ref, "spotify:playlist:"); ok {
		return id
	}

	u, err := url.Parse(ref)
	if err != nil || u.Host != "open.spotify.com" {
		return ref
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] == "playlist" {
			return segments[i+1]
		}
	}
	return ""
}
