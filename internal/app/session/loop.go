package session

import (
	"runtime/debug"
	"sync"

	zlog "github.com/rs/zerolog/log"
)

// loop is the session's owner goroutine. Posted functions run one at a time
// in submission order. Posting never blocks.
type loop struct {
	mu      sync.Mutex
	pending []func()
	closed  bool

	wake    chan struct{}
	stopped chan struct{}
}

func newLoop() *loop {
	return &loop{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

// post queues fn. It returns false once the loop has been closed.
func (l *loop) post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// close stops accepting work. Functions still queued are dropped once the
// running one returns.
func (l *loop) close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *loop) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// run processes posted functions until the loop is closed.
func (l *loop) run() {
	defer close(l.stopped)

	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		closed := l.closed
		l.mu.Unlock()

		if closed {
			if len(batch) > 0 {
				zlog.Debug().Msgf("session loop closed, dropping queued work: count=%d", len(batch))
			}
			return
		}

		for i, fn := range batch {
			l.safeCall(fn)
			if l.isClosed() {
				if rest := len(batch) - i - 1; rest > 0 {
					zlog.Debug().Msgf("session loop closed, dropping queued work: count=%d", rest)
				}
				return
			}
		}

		<-l.wake
	}
}

// safeCall runs fn and keeps the loop alive if it panics.
func (l *loop) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("session loop handler panicked: %v\n%s", r, debug.Stack())
		}
	}()
	fn()
}
