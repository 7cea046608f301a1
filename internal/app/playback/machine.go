package playback

import (
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mediad/internal/domain/track"
)

// ErrBackendTransport marks failures reported by the backend.
var ErrBackendTransport = errors.New("backend transport error")

// DefaultErrorMessage is used when an error carries no message.
const DefaultErrorMessage = "Playback failed."

// Dispatcher runs fn on the owner goroutine.
type Dispatcher func(fn func())

// Machine is the playback state machine. All Handle* methods must be called
// from the owner goroutine; backend completions are marshalled back onto it
// through the dispatcher and carry an operation token, so a completion that
// belongs to a superseded command is dropped.
type Machine struct {
	backend  Backend
	queue    Queue
	callback Callback
	dispatch Dispatcher

	status Status
	active track.Track // Track loaded in the backend
	op     uint64
}

// NewMachine creates a new state machine in StateNone.
func NewMachine(backend Backend, queue Queue, callback Callback, dispatch Dispatcher) *Machine {
	m := &Machine{
		backend:  backend,
		queue:    queue,
		callback: callback,
		dispatch: dispatch,
		status: Status{
			State:     StateNone,
			UpdatedAt: time.Now(),
		},
	}
	backend.SetListener(&backendEvents{m: m})
	return m
}

// Status returns the current status. While playing, Position is read live
// from the backend.
func (m *Machine) Status() Status {
	s := m.status
	if s.State == StatePlaying {
		s.Position = m.backend.Position()
	}
	return s
}

// State returns the current state.
func (m *Machine) State() State {
	return m.status.State
}

// Active returns the track loaded in the backend.
func (m *Machine) Active() (track.Track, bool) {
	return m.active, m.active.ID != ""
}

// HandlePlayRequest starts, resumes or retries playback of the queue's current track.
func (m *Machine) HandlePlayRequest() {
	current, ok := m.queue.Current()

	switch m.status.State {
	case StatePaused:
		if ok && current.ID != m.active.ID {
			m.start(current)
			return
		}
		m.resume()

	case StatePlaying, StateBuffering, StateSkippingNext, StateSkippingPrev:
		if ok && current.ID != m.active.ID {
			m.start(current)
			return
		}
		m.ignore("play")

	case StateNone, StateStopped, StateError:
		if !ok {
			m.ignore("play with empty queue")
			return
		}
		m.start(current)
	}
}

// HandlePauseRequest pauses playback. Only valid while playing.
func (m *Machine) HandlePauseRequest() {
	if m.status.State != StatePlaying {
		m.ignore("pause")
		return
	}

	op := m.nextOp()
	m.status.Position = m.backend.Position()
	m.commit(StatePaused, "")
	m.backend.Pause(m.completion(op, "pause", nil))
}

// HandleStopRequest stops playback. A non-empty reason moves the machine to
// StateError with that reason from any state.
func (m *Machine) HandleStopRequest(reason string) {
	if reason != "" {
		wasActive := m.status.State.IsActive()
		op := m.nextOp()
		if wasActive {
			m.status.Position = m.backend.Position()
		}
		m.commit(StateError, reason)
		if wasActive {
			m.backend.Stop(m.completion(op, "stop", nil))
		}
		return
	}

	switch m.status.State {
	case StatePlaying, StatePaused, StateBuffering, StateSkippingNext, StateSkippingPrev:
		op := m.nextOp()
		m.status.Position = m.backend.Position()
		m.commit(StateStopped, "")
		m.backend.Stop(m.completion(op, "stop", nil))
	default:
		m.ignore("stop")
	}
}

// HandleSkipRequest moves the queue in direction and plays the new current
// track. At a queue boundary the current track restarts.
func (m *Machine) HandleSkipRequest(direction Direction) {
	var interim State
	switch m.status.State {
	case StatePlaying, StatePaused:
	default:
		m.ignore("skip " + direction.String())
		return
	}
	if direction == DirectionNext {
		interim = StateSkippingNext
	} else {
		interim = StateSkippingPrev
	}

	op := m.nextOp()
	m.commit(interim, "")
	if !m.queue.Skip(int(direction)) {
		zlog.Debug().Msgf("playback: skip clamped at queue boundary, restarting: direction=%s", direction)
	}

	m.backend.Stop(m.completion(op, "skip", func() {
		if m.status.State != interim {
			return
		}
		next, ok := m.queue.Current()
		if !ok {
			m.commit(StateStopped, "")
			return
		}
		m.start(next)
	}))
}

// HandleSeekRequest moves the playback position of the active track.
func (m *Machine) HandleSeekRequest(position time.Duration) {
	switch m.status.State {
	case StatePlaying, StatePaused:
	default:
		m.ignore("seek")
		return
	}
	if position < 0 {
		position = 0
	}
	if d := m.active.Duration; d > 0 && position > d {
		position = d
	}

	op := m.nextOp()
	m.status.Position = position
	m.commit(m.status.State, "")
	m.backend.Seek(position, m.completion(op, "seek", nil))
}

// start loads t into the backend from the beginning.
func (m *Machine) start(t track.Track) {
	op := m.nextOp()
	m.active = t
	m.status.Position = 0
	m.commit(StateBuffering, "")

	zlog.Debug().Msgf("playback: starting track: id=%s title=%s", t.ID, t.Title)
	m.backend.Play(t, 0, m.completion(op, "play", func() {
		if m.status.State == StateBuffering {
			m.commit(StatePlaying, "")
		}
	}))
}

// resume continues the active track from the paused position.
func (m *Machine) resume() {
	op := m.nextOp()
	m.commit(StatePlaying, "")
	m.backend.Play(m.active, m.status.Position, m.completion(op, "resume", nil))
}

// completion wraps a backend done callback: it is dispatched onto the owner
// goroutine, dropped if op is stale, and turns an error into StateError.
func (m *Machine) completion(op uint64, name string, onSuccess func()) func(error) {
	return func(err error) {
		m.dispatch(func() {
			if op != m.op {
				zlog.Debug().Msgf("playback: stale %s completion dropped: op=%d current=%d", name, op, m.op)
				return
			}
			if err != nil {
				m.fail(errors.Wrapf(errors.Mark(err, ErrBackendTransport), "%s failed", name))
				return
			}
			if onSuccess != nil {
				onSuccess()
			}
		})
	}
}

func (m *Machine) fail(err error) {
	zlog.Error().Msgf("playback: %v", err)
	m.nextOp()
	m.commit(StateError, err.Error())
}

func (m *Machine) onCompletion(t track.Track) {
	if m.status.State != StatePlaying || t.ID != m.active.ID {
		zlog.Debug().Msgf("playback: completion ignored: id=%s state=%s", t.ID, m.status.State)
		return
	}

	zlog.Debug().Msgf("playback: track ended: id=%s title=%s", t.ID, t.Title)
	if m.queue.Skip(1) {
		if next, ok := m.queue.Current(); ok {
			m.start(next)
			return
		}
	}

	m.nextOp()
	m.status.Position = 0
	m.commit(StateStopped, "")
}

func (m *Machine) onError(err error) {
	m.fail(errors.Mark(err, ErrBackendTransport))
}

// commit applies a transition and notifies the callback.
func (m *Machine) commit(state State, message string) {
	prev := m.status.State

	if state == StateError {
		if message == "" {
			message = DefaultErrorMessage
		}
	} else {
		message = ""
	}

	m.status.State = state
	m.status.Error = message
	m.status.ActiveTrackID = m.active.ID
	m.status.Sequence++
	m.status.UpdatedAt = time.Now()

	zlog.Debug().Msgf("playback: state %s -> %s: seq=%d track=%s", prev, state, m.status.Sequence, m.active.ID)

	m.callback.OnPlaybackStateUpdated(m.Status())
	if state == prev {
		return
	}
	switch state {
	case StatePlaying:
		m.callback.OnPlaybackStart()
	case StateStopped, StateError:
		m.callback.OnPlaybackStop()
	}
}

// ignore re-emits the unchanged status for an inapplicable command.
func (m *Machine) ignore(command string) {
	zlog.Debug().Msgf("playback: %s ignored in state %s", command, m.status.State)
	m.callback.OnPlaybackStateUpdated(m.Status())
}

func (m *Machine) nextOp() uint64 {
	m.op++
	return m.op
}

// backendEvents forwards unsolicited backend events onto the owner goroutine.
type backendEvents struct {
	m *Machine
}

func (b *backendEvents) OnCompletion(t track.Track) {
	b.m.dispatch(func() { b.m.onCompletion(t) })
}

func (b *backendEvents) OnError(err error) {
	b.m.dispatch(func() { b.m.onError(err) })
}
