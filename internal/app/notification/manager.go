// Package notification fans session events out to subscribers.
package notification

import (
	"sync"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// DefaultBuffer is the per-subscriber queue length used when none is given.
const DefaultBuffer = 64

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(Event) error
}

// subscription represents a subscriber's subscription. Events are queued on ch
// and written to the stream by a dedicated pump goroutine.
type subscription struct {
	id     string
	stream Stream
	ch     chan Event
	done   chan struct{}
}

// Subscription is the caller's handle on a subscription.
type Subscription struct {
	ID string
	// Done is closed once the subscription has ended and its last event was sent.
	Done <-chan struct{}
}

// Manager manages notification subscriptions and broadcasting. Broadcasting
// never blocks: a subscriber whose queue is full is evicted.
type Manager struct {
	mu            sync.Mutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	buffer        int
	closed        bool
}

// NewManager creates a new notification manager.
func NewManager(buffer int) *Manager {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Manager{
		subscriptions: make(map[string]*subscription),
		buffer:        buffer,
	}
}

// Subscribe adds a new subscription. Initial events are queued ahead of any
// broadcast.
func (m *Manager) Subscribe(stream Stream, initial ...Event) Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub := &subscription{
		id:     uuid.New().String(),
		stream: stream,
		ch:     make(chan Event, m.buffer+len(initial)),
		done:   make(chan struct{}),
	}
	go m.pump(sub)

	if m.closed {
		close(sub.ch)
		return Subscription{ID: sub.id, Done: sub.done}
	}

	for _, ev := range initial {
		m.sequenceNo++
		ev.SequenceNo = m.sequenceNo
		sub.ch <- ev
	}
	m.subscriptions[sub.id] = sub

	zlog.Debug().Msgf("subscriber added: id=%s total=%d", sub.id, len(m.subscriptions))
	return Subscription{ID: sub.id, Done: sub.done}
}

// Unsubscribe removes a subscription. Already queued events are still sent.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(subscriptionID)
}

// Broadcast sends a notification to all subscribers.
func (m *Manager) Broadcast(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.sequenceNo++
	ev.SequenceNo = m.sequenceNo

	for id, sub := range m.subscriptions {
		select {
		case sub.ch <- ev:
		default:
			zlog.Warn().Msgf("subscriber too slow, evicting: id=%s event=%s", id, ev.Type)
			m.removeLocked(id)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscriptions)
}

// Close delivers final to every subscriber where it fits, then ends all
// subscriptions. Later subscriptions end immediately.
func (m *Manager) Close(final Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true

	m.sequenceNo++
	final.SequenceNo = m.sequenceNo
	for id, sub := range m.subscriptions {
		select {
		case sub.ch <- final:
		default:
		}
		m.removeLocked(id)
	}
}

func (m *Manager) removeLocked(id string) {
	sub, ok := m.subscriptions[id]
	if !ok {
		return
	}
	delete(m.subscriptions, id)
	close(sub.ch)
}

// pump writes queued events to the stream until the queue is closed or the
// stream fails.
func (m *Manager) pump(sub *subscription) {
	defer close(sub.done)

	for ev := range sub.ch {
		if err := sub.stream.Send(ev); err != nil {
			zlog.Debug().Msgf("subscriber stream failed: id=%s error=%v", sub.id, err)
			m.Unsubscribe(sub.id)
			for range sub.ch {
			}
			return
		}
	}
}
