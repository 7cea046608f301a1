// Package lastfm provides a client for the Last.fm API.
package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const maxResponseBytes = 4 << 20

// Client is a Last.fm API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	cacheMu        sync.RWMutex
	trackTagCache  map[string][]Tag
	tagTracksCache map[string][]TopTrack
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey string
}

// Tag represents a Last.fm tag.
type Tag struct {
	Name  string
	Count int // Tag count/frequency
}

// TopTrack represents a chart or tag top track.
type TopTrack struct {
	Name     string
	Artist   string
	Duration time.Duration // Zero when Last.fm does not know it
}

type topTagsResponse struct {
	TopTags struct {
		Tag []struct {
			Name  string `json:"name"`
			Count int    `json:"count"`
		} `json:"tag"`
	} `json:"toptags"`
}

type topTracksResponse struct {
	Tracks struct {
		Track []struct {
			Name     string          `json:"name"`
			Duration json.RawMessage `json:"duration"`
			Artist   struct {
				Name string `json:"name"`
			} `json:"artist"`
		} `json:"track"`
	} `json:"tracks"`
}

type apiError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}

	return &Client{
		apiKey:         cfg.APIKey,
		baseURL:        "https://ws.audioscrobbler.com/2.0/",
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		trackTagCache:  make(map[string][]Tag),
		tagTracksCache: make(map[string][]TopTrack),
	}, nil
}

// GetTopTags retrieves the top tags of a track.
// Reference: https://www.last.fm/api/show/track.getTopTags
func (c *Client) GetTopTags(ctx context.Context, trackName, artistName string, limit int) ([]Tag, error) {
	if trackName == "" || artistName == "" {
		return nil, errors.New("track name and artist name are required")
	}
	limit = clampLimit(limit)

	cacheKey := fmt.Sprintf("%s\x00%s", artistName, trackName)
	c.cacheMu.RLock()
	if tags, ok := c.trackTagCache[cacheKey]; ok {
		c.cacheMu.RUnlock()
		return truncate(tags, limit), nil
	}
	c.cacheMu.RUnlock()

	var response topTagsResponse
	err := c.get(ctx, "track.getTopTags", url.Values{
		"track":       {trackName},
		"artist":      {artistName},
		"autocorrect": {"1"},
	}, &response)
	if err != nil {
		return nil, err
	}

	tags := make([]Tag, 0, len(response.TopTags.Tag))
	for _, t := range response.TopTags.Tag {
		tags = append(tags, Tag{Name: t.Name, Count: t.Count})
	}

	c.cacheMu.Lock()
	c.trackTagCache[cacheKey] = tags
	c.cacheMu.Unlock()

	return truncate(tags, limit), nil
}

// GetTopTracks retrieves top tracks for a tag.
// Reference: https://www.last.fm/api/show/tag.getTopTracks
func (c *Client) GetTopTracks(ctx context.Context, tagName string, limit int) ([]TopTrack, error) {
	if tagName == "" {
		return nil, errors.New("tag name is required")
	}
	limit = clampLimit(limit)

	cacheKey := fmt.Sprintf("%s\x00%d", tagName, limit)
	c.cacheMu.RLock()
	if tracks, ok := c.tagTracksCache[cacheKey]; ok {
		c.cacheMu.RUnlock()
		zlog.Debug().Msgf("using cached top tracks for tag: %s", tagName)
		return tracks, nil
	}
	c.cacheMu.RUnlock()

	tracks, err := c.getTopTracks(ctx, "tag.getTopTracks", url.Values{
		"tag":   {tagName},
		"limit": {strconv.Itoa(limit)},
	})
	if err != nil {
		return nil, err
	}

	c.cacheMu.Lock()
	c.tagTracksCache[cacheKey] = tracks
	c.cacheMu.Unlock()
	zlog.Debug().Msgf("cached top tracks for tag: %s (count: %d)", tagName, len(tracks))

	return tracks, nil
}

// GetChartTopTracks retrieves global top tracks from the Last.fm charts.
// Reference: https://www.last.fm/api/show/chart.getTopTracks
func (c *Client) GetChartTopTracks(ctx context.Context, limit int) ([]TopTrack, error) {
	return c.getTopTracks(ctx, "chart.getTopTracks", url.Values{
		"limit": {strconv.Itoa(clampLimit(limit))},
	})
}

func (c *Client) getTopTracks(ctx context.Context, method string, params url.Values) ([]TopTrack, error) {
	var response topTracksResponse
	if err := c.get(ctx, method, params, &response); err != nil {
		return nil, err
	}

	tracks := make([]TopTrack, 0, len(response.Tracks.Track))
	for _, t := range response.Tracks.Track {
		tracks = append(tracks, TopTrack{
			Name:     t.Name,
			Artist:   t.Artist.Name,
			Duration: parseSeconds(t.Duration),
		})
	}
	return tracks, nil
}

// get calls an API method and decodes its JSON body into out. Last.fm
// reports most failures in the body, sometimes with a 200 status.
func (c *Client) get(ctx context.Context, method string, params url.Values, out any) error {
	params.Set("method", method)
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return errors.Wrapf(err, "last.fm %s", method)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "last.fm %s", method)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return errors.Wrapf(err, "last.fm %s: read body", method)
	}

	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != 0 {
		return errors.Newf("last.fm %s: error %d: %s", method, apiErr.Error, apiErr.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("last.fm %s: HTTP %d", method, resp.StatusCode)
	}
	return errors.Wrapf(json.Unmarshal(body, out), "last.fm %s: decode", method)
}

// parseSeconds accepts "215" or 215.
func parseSeconds(raw json.RawMessage) time.Duration {
	if len(raw) == 0 {
		return 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

func truncate(tags []Tag, limit int) []Tag {
	if len(tags) > limit {
		return tags[:limit]
	}
	return tags
}
