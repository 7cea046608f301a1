package notification

import (
	"time"

	"github.com/osa030/mediad/internal/app/playback"
	"github.com/osa030/mediad/internal/domain/track"
)

// EventType identifies the kind of session event.
type EventType string

const (
	EventMetadataChanged      EventType = "metadata_changed"
	EventQueueChanged         EventType = "queue_changed"
	EventQueueIndexChanged    EventType = "queue_index_changed"
	EventPlaybackStateChanged EventType = "playback_state_changed"
	EventSessionEnded         EventType = "session_ended"
)

// Event is a session event delivered to subscribers. Only the fields that
// belong to Type are set.
type Event struct {
	SequenceNo uint64
	Type       EventType
	At         time.Time

	Track      *track.Track     // metadata_changed
	QueueTitle string           // queue_changed
	Queue      []track.Track    // queue_changed
	QueueIndex int              // queue_index_changed
	Playback   *playback.Status // playback_state_changed
	Reason     string           // session_ended
}
