package connect

import (
	"time"

	"github.com/osa030/mediad/internal/app/notification"
	"github.com/osa030/mediad/internal/app/playback"
	"github.com/osa030/mediad/internal/app/session"
	"github.com/osa030/mediad/internal/domain/client"
	"github.com/osa030/mediad/internal/domain/track"
)

// EventConnected is the first event of every subscription stream.
const EventConnected = "connected"

// Empty is the request or response of calls without payload.
type Empty struct{}

// CommandResponse reports the outcome of a command.
type CommandResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Track is the wire form of track.Track.
type Track struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist,omitempty"`
	Album      string `json:"album,omitempty"`
	Genre      string `json:"genre,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Source     string `json:"source,omitempty"`
	ArtURL     string `json:"art_url,omitempty"`
	ParentID   string `json:"parent_id,omitempty"`
	Browsable  bool   `json:"browsable"`
	Playable   bool   `json:"playable"`
}

// PlaybackStatus is the wire form of playback.Status.
type PlaybackStatus struct {
	State         string    `json:"state"`
	PositionMs    int64     `json:"position_ms"`
	Sequence      uint64    `json:"sequence"`
	ActiveTrackID string    `json:"active_track_id,omitempty"`
	Error         string    `json:"error,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Event is a session event delivered on a subscription stream.
type Event struct {
	SequenceNo   uint64          `json:"sequence_no"`
	Type         string          `json:"type"`
	At           time.Time       `json:"at"`
	Track        *Track          `json:"track,omitempty"`
	QueueTitle   string          `json:"queue_title,omitempty"`
	Queue        []Track         `json:"queue,omitempty"`
	QueueIndex   int             `json:"queue_index"`
	Playback     *PlaybackStatus `json:"playback,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	ConnectionID string          `json:"connection_id,omitempty"`
	RootID       string          `json:"root_id,omitempty"`
	Allowed      bool            `json:"allowed,omitempty"`
}

// AttachResponse describes a new connection.
type AttachResponse struct {
	ConnectionID string `json:"connection_id"`
	RootID       string `json:"root_id"`
	Allowed      bool   `json:"allowed"`
}

// DetachRequest ends a connection.
type DetachRequest struct {
	ConnectionID string `json:"connection_id"`
}

// GetChildrenRequest lists the children of a browse node.
type GetChildrenRequest struct {
	ConnectionID string `json:"connection_id"`
	ParentID     string `json:"parent_id"`
}

// GetChildrenResponse carries the children of a browse node.
type GetChildrenResponse struct {
	Items []Track `json:"items"`
}

// SeekRequest moves the playback position.
type SeekRequest struct {
	PositionMs int64 `json:"position_ms"`
}

// PlayFromIDRequest plays a media id.
type PlayFromIDRequest struct {
	MediaID string `json:"media_id"`
}

// PlayFromSearchRequest plays the results of a search.
type PlayFromSearchRequest struct {
	Query string `json:"query"`
}

// StatusResponse is the wire form of session.Snapshot.
type StatusResponse struct {
	Playback        PlaybackStatus `json:"playback"`
	NowPlaying      *Track         `json:"now_playing,omitempty"`
	QueueTitle      string         `json:"queue_title,omitempty"`
	Queue           []Track        `json:"queue,omitempty"`
	QueueIndex      int            `json:"queue_index"`
	Started         bool           `json:"started"`
	Attached        int            `json:"attached"`
	Timer           string         `json:"timer"`
	PendingTeardown bool           `json:"pending_teardown"`
	Connections     int            `json:"connections"`
	Subscribers     int            `json:"subscribers"`
	CatalogReady    bool           `json:"catalog_ready"`
}

// ClientInfo is the wire form of client.Connection.
type ClientInfo struct {
	ConnectionID string    `json:"connection_id"`
	Package      string    `json:"package"`
	UID          int       `json:"uid"`
	Transport    string    `json:"transport"`
	Allowed      bool      `json:"allowed"`
	RootID       string    `json:"root_id"`
	AttachedAt   time.Time `json:"attached_at"`
}

// ListClientsResponse lists attached clients.
type ListClientsResponse struct {
	Clients []ClientInfo `json:"clients"`
}

// ShutdownRequest tears the session down.
type ShutdownRequest struct {
	Reason string `json:"reason"`
}

func toTrack(t track.Track) Track {
	return Track{
		ID:         t.ID,
		Title:      t.Title,
		Artist:     t.Artist,
		Album:      t.Album,
		Genre:      t.Genre,
		DurationMs: t.Duration.Milliseconds(),
		Source:     t.Source,
		ArtURL:     t.ArtURL,
		ParentID:   t.ParentID,
		Browsable:  t.Browsable,
		Playable:   t.Playable,
	}
}

func toTracks(items []track.Track) []Track {
	out := make([]Track, len(items))
	for i, t := range items {
		out[i] = toTrack(t)
	}
	return out
}

// ToDomain converts the wire track back to track.Track.
func (t Track) ToDomain() track.Track {
	return track.Track{
		ID:        t.ID,
		Title:     t.Title,
		Artist:    t.Artist,
		Album:     t.Album,
		Genre:     t.Genre,
		Duration:  time.Duration(t.DurationMs) * time.Millisecond,
		Source:    t.Source,
		ArtURL:    t.ArtURL,
		ParentID:  t.ParentID,
		Browsable: t.Browsable,
		Playable:  t.Playable,
	}
}

func toPlaybackStatus(s playback.Status) PlaybackStatus {
	return PlaybackStatus{
		State:         s.State.String(),
		PositionMs:    s.Position.Milliseconds(),
		Sequence:      s.Sequence,
		ActiveTrackID: s.ActiveTrackID,
		Error:         s.Error,
		UpdatedAt:     s.UpdatedAt,
	}
}

func toEvent(ev notification.Event) *Event {
	out := &Event{
		SequenceNo: ev.SequenceNo,
		Type:       string(ev.Type),
		At:         ev.At,
		QueueTitle: ev.QueueTitle,
		QueueIndex: ev.QueueIndex,
		Reason:     ev.Reason,
	}
	if ev.Track != nil {
		t := toTrack(*ev.Track)
		out.Track = &t
	}
	if ev.Queue != nil {
		out.Queue = toTracks(ev.Queue)
	}
	if ev.Playback != nil {
		s := toPlaybackStatus(*ev.Playback)
		out.Playback = &s
	}
	return out
}

func toStatus(s session.Snapshot) *StatusResponse {
	out := &StatusResponse{
		Playback:        toPlaybackStatus(s.Playback),
		QueueTitle:      s.QueueTitle,
		Queue:           toTracks(s.Queue),
		QueueIndex:      s.QueueIndex,
		Started:         s.Lifecycle.Started,
		Attached:        s.Lifecycle.Attached,
		Timer:           s.Lifecycle.Timer.String(),
		PendingTeardown: s.Lifecycle.PendingTeardown,
		Connections:     s.Connections,
		Subscribers:     s.Subscribers,
		CatalogReady:    s.CatalogReady,
	}
	if s.NowPlaying != nil {
		t := toTrack(*s.NowPlaying)
		out.NowPlaying = &t
	}
	return out
}

func toClientInfo(c *client.Connection) ClientInfo {
	return ClientInfo{
		ConnectionID: c.ID,
		Package:      c.Identity.Package,
		UID:          c.Identity.UID,
		Transport:    c.Transport,
		Allowed:      c.Allowed,
		RootID:       c.RootID,
		AttachedAt:   c.AttachedAt,
	}
}
