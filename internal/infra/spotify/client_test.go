package spotify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zmb3/spotify/v2"
)

func TestExtractPlaylistID(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		want string
	}{
		{name: "uri", ref: "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M", want: "37i9dQZF1DXcBWIGoYBM5M"},
		{name: "link", ref: "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M", want: "37i9dQZF1DXcBWIGoYBM5M"},
		{name: "link with share params", ref: "https://open.spotify.com/playlist/abc123?si=xyz&utm_source=copy", want: "abc123"},
		{name: "localized link", ref: "https://open.spotify.com/intl-ja/playlist/abc123/", want: "abc123"},
		{name: "plain http link", ref: "http://open.spotify.com/playlist/testID", want: "testID"},
		{name: "bare id", ref: "  37i9dQZF1DXcBWIGoYBM5M ", want: "37i9dQZF1DXcBWIGoYBM5M"},
		{name: "album link", ref: "https://open.spotify.com/album/abc123", want: ""},
		{name: "empty", ref: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractPlaylistID(tt.ref))
		})
	}
}

func TestConvertTrack(t *testing.T) {
	full := &spotify.FullTrack{
		SimpleTrack: spotify.SimpleTrack{
			ID:       "abc",
			Name:     "Aruarian Dance",
			Artists:  []spotify.SimpleArtist{{Name: "Nujabes"}, {Name: "Fat Jon"}},
			Duration: 213000,
		},
		Album: spotify.SimpleAlbum{
			Name:   "Samurai Champloo",
			Images: []spotify.Image{{URL: "https://i.scdn.co/image/1"}},
		},
	}

	got := convertTrack(full)
	assert.Equal(t, "spotify:abc", got.ID)
	assert.Equal(t, "Aruarian Dance", got.Title)
	assert.Equal(t, "Nujabes, Fat Jon", got.Artist)
	assert.Equal(t, "Samurai Champloo", got.Album)
	assert.Equal(t, "https://i.scdn.co/image/1", got.ArtURL)
	assert.Equal(t, 213*time.Second, got.Duration)
	assert.Equal(t, "spotify:track:abc", got.Source)
	assert.True(t, got.Playable)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "throttled", err: spotify.Error{Status: http.StatusTooManyRequests}, want: true},
		{name: "server error", err: spotify.Error{Status: http.StatusBadGateway}, want: true},
		{name: "wrapped server error", err: errors.Wrap(spotify.Error{Status: http.StatusServiceUnavailable}, "get"), want: true},
		{name: "not found", err: spotify.Error{Status: http.StatusNotFound}, want: false},
		{name: "unauthorized", err: spotify.Error{Status: http.StatusUnauthorized}, want: false},
		{name: "transport", err: errors.New("connection reset by peer"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

const playlistItemsJSON = `{
  "items": [
    {"track": {"type": "track", "id": "t1", "name": "One", "uri": "spotify:track:t1", "duration_ms": 61000,
      "artists": [{"name": "A"}], "album": {"name": "First"}}},
    {"track": {"type": "episode", "id": "e1", "name": "Talk"}}
  ],
  "total": 2
}`

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c := newClient(spotify.New(srv.Client(), spotify.WithBaseURL(srv.URL+"/")), "", 1000)
	c.backoff = time.Millisecond
	return c
}

func TestClient_GetPlaylist(t *testing.T) {
	tests := []struct {
		name       string
		failures   int32
		failStatus int
		wantErr    bool
		wantCalls  int32
	}{
		{name: "first try", wantCalls: 1},
		{name: "retries server errors", failures: 2, failStatus: http.StatusServiceUnavailable, wantCalls: 3},
		{name: "gives up after three attempts", failures: 3, failStatus: http.StatusServiceUnavailable, wantErr: true, wantCalls: 3},
		{name: "does not retry not found", failures: 1, failStatus: http.StatusNotFound, wantErr: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var playlistCalls atomic.Int32
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				if strings.HasSuffix(r.URL.Path, "/tracks") || strings.HasSuffix(r.URL.Path, "/items") {
					_, _ = w.Write([]byte(playlistItemsJSON))
					return
				}
				if playlistCalls.Add(1) <= tt.failures {
					w.WriteHeader(tt.failStatus)
					_, _ = fmt.Fprintf(w, `{"error": {"status": %d, "message": "unavailable"}}`, tt.failStatus)
					return
				}
				_, _ = w.Write([]byte(`{"id": "pl1", "name": "Chill"}`))
			}))

			pl, err := c.GetPlaylist(context.Background(), "https://open.spotify.com/playlist/pl1?si=x")
			assert.Equal(t, tt.wantCalls, playlistCalls.Load())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, "pl1", pl.ID)
			assert.Equal(t, "Chill", pl.Name)
			require.Len(t, pl.Tracks, 1)
			assert.Equal(t, "spotify:t1", pl.Tracks[0].ID)
			assert.Equal(t, "spotify:track:t1", pl.Tracks[0].Source)
			assert.Equal(t, 61*time.Second, pl.Tracks[0].Duration)
		})
	}
}

func TestClient_GetPlaylistRejectsForeignLink(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected")
	}))

	_, err := c.GetPlaylist(context.Background(), "https://open.spotify.com/album/abc")
	require.Error(t, err)
}
