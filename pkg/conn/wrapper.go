package conn

import (
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"cryptipc/pkg/fault"
	"cryptipc/pkg/reactor"
)

// Wrapper normalizes a Conn into the asynchronous four-operation contract
// the transporter consumes: send-async, receive-async, close, and the send
// size limit. Completion callbacks are always delivered on the reactor
// dispatch goroutine, never inline on the caller.
//
// At most one send and one receive may be outstanding at a time; a second
// request fails fast with a busy error instead of queuing.
type Wrapper struct {
	c   *Conn
	r   *reactor.Reactor
	log *zap.Logger

	sendBusy atomic.Bool
	recvBusy atomic.Bool

	// mu orders enqueues against Close so an operation can never slip into
	// a channel after the loops have drained it; a stranded operation
	// would leave its caller waiting forever.
	mu     sync.Mutex
	closed bool

	sendCh chan sendOp
	recvCh chan recvOp

	closeOnce sync.Once
	quit      chan struct{}
}

type sendOp struct {
	data []byte
	done func(error)
}

type recvOp struct {
	done func([]byte, error)
}

// Wrap binds a connection to a reactor and starts its I/O goroutines. The
// wrapper takes exclusive ownership of c.
func Wrap(c *Conn, r *reactor.Reactor, log *zap.Logger) *Wrapper {
	if log == nil {
		log = zap.NewNop()
	}
	w := &Wrapper{
		c:      c,
		r:      r,
		log:    log,
		sendCh: make(chan sendOp, 1),
		recvCh: make(chan recvOp, 1),
		quit:   make(chan struct{}),
	}
	go w.writeLoop()
	go w.readLoop()
	return w
}

// MaxSendSize returns the largest payload SendAsync accepts.
func (w *Wrapper) MaxSendSize() int { return w.c.MaxSendSize() }

// SendAsync queues one outbound frame. done is invoked exactly once on the
// reactor goroutine unless SendAsync itself returns an error.
func (w *Wrapper) SendAsync(data []byte, done func(error)) error {
	if w.c.Closed() {
		return fault.New(fault.CodeResourceFault, "wrapper.send", net.ErrClosed)
	}
	if len(data) > w.c.MaxSendSize() {
		return fault.New(fault.CodeInvalidSize, "wrapper.send", nil)
	}
	if !w.sendBusy.CompareAndSwap(false, true) {
		return fault.New(fault.CodeBusy, "wrapper.send", nil)
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.sendBusy.Store(false)
		return fault.New(fault.CodeResourceFault, "wrapper.send", net.ErrClosed)
	}
	// The busy flag guarantees channel capacity; this never blocks.
	w.sendCh <- sendOp{data: data, done: done}
	w.mu.Unlock()
	return nil
}

// ReceiveAsync binds the single receive slot. done is invoked exactly once
// on the reactor goroutine unless ReceiveAsync itself returns an error.
func (w *Wrapper) ReceiveAsync(done func([]byte, error)) error {
	if w.c.Closed() {
		return fault.New(fault.CodeUninitialized, "wrapper.recv", net.ErrClosed)
	}
	if !w.recvBusy.CompareAndSwap(false, true) {
		return fault.New(fault.CodeBusy, "wrapper.recv", nil)
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.recvBusy.Store(false)
		return fault.New(fault.CodeUninitialized, "wrapper.recv", net.ErrClosed)
	}
	w.recvCh <- recvOp{done: done}
	w.mu.Unlock()
	return nil
}

// Close tears the connection down. Operations in flight complete with a
// resource fault rather than hanging.
func (w *Wrapper) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(w.quit)
		_ = w.c.Close()
	})
	return nil
}

func (w *Wrapper) writeLoop() {
	for {
		select {
		case op := <-w.sendCh:
			err := w.c.SendFrame(op.data)
			w.sendBusy.Store(false)
			w.post(func() { op.done(err) })
		case <-w.quit:
			w.failPending()
			return
		}
	}
}

func (w *Wrapper) readLoop() {
	for {
		select {
		case op := <-w.recvCh:
			data, err := w.c.RecvFrame()
			w.recvBusy.Store(false)
			w.post(func() { op.done(data, err) })
		case <-w.quit:
			return
		}
	}
}

// failPending drains operations that were queued but not yet picked up when
// Close raced the loops, so no caller is left waiting on a callback.
func (w *Wrapper) failPending() {
	for {
		select {
		case op := <-w.sendCh:
			w.sendBusy.Store(false)
			err := fault.New(fault.CodeResourceFault, "wrapper.send", net.ErrClosed)
			w.post(func() { op.done(err) })
		case op := <-w.recvCh:
			w.recvBusy.Store(false)
			err := fault.New(fault.CodeResourceFault, "wrapper.recv", net.ErrClosed)
			w.post(func() { op.done(nil, err) })
		default:
			return
		}
	}
}

// post hands a completion to the reactor. If the reactor has already shut
// down we run the completion here: this only happens during teardown and the
// alternative is a caller blocked forever on a promise.
func (w *Wrapper) post(fn func()) {
	if err := w.r.Submit(fn); err != nil {
		w.log.Warn("wrapper: reactor closed, running completion in place", zap.Error(err))
		fn()
	}
}
