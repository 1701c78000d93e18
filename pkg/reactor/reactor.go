// Package reactor runs a single dispatch goroutine that serializes I/O
// completion callbacks. Every OnSent/OnReceived/OnDisconnect notification in
// this module executes on that goroutine, never on a caller goroutine.
package reactor

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned by Submit once the reactor has been closed.
var ErrClosed = errors.New("reactor: closed")

// DefaultQueueDepth bounds how many completions may be queued before Submit
// blocks the producing goroutine.
const DefaultQueueDepth = 128

// Reactor owns one dispatch goroutine. Functions passed to Submit run on it
// serially, in submission order.
type Reactor struct {
	log   *zap.Logger
	tasks chan func()

	mu     sync.Mutex
	closed bool
	quit   chan struct{}
	done   chan struct{}
}

// New starts a reactor with the given completion queue depth. depth <= 0
// selects DefaultQueueDepth.
func New(depth int, log *zap.Logger) *Reactor {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &Reactor{
		log:   log,
		tasks: make(chan func(), depth),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go r.dispatch()
	return r
}

// Submit enqueues fn for execution on the dispatch goroutine. It blocks only
// when the queue is full, and fails once the reactor is closed.
func (r *Reactor) Submit(fn func()) error {
	select {
	case <-r.quit:
		return ErrClosed
	default:
	}
	select {
	case r.tasks <- fn:
		return nil
	case <-r.quit:
		return ErrClosed
	}
}

// Close stops the dispatch goroutine after draining completions already
// queued. Close is idempotent and returns once the goroutine has exited.
func (r *Reactor) Close() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.quit)
	}
	r.mu.Unlock()
	<-r.done
	return nil
}

func (r *Reactor) dispatch() {
	defer close(r.done)
	for {
		select {
		case fn := <-r.tasks:
			r.run(fn)
		case <-r.quit:
			// drain what was accepted before the close
			for {
				select {
				case fn := <-r.tasks:
					r.run(fn)
				default:
					return
				}
			}
		}
	}
}

// run isolates a single completion so a panicking handler cannot take the
// dispatch loop down with it.
func (r *Reactor) run(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("reactor: completion panicked", zap.Any("panic", p))
		}
	}()
	fn()
}
