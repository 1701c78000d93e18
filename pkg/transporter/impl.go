package transporter

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"cryptipc/pkg/fault"
	"cryptipc/pkg/promise"
)

// transporter is the concrete state machine over one ConnectionWrapper.
//
// Synchronization is deliberately split across several fine-grained guards
// instead of one coarse lock, so delivering a callback never contends with
// closing the connection or with an unrelated send:
//
//   - ioMu keeps a receive bind from starting while a send is still
//     populating the shared send buffer;
//   - sendInFlight enforces the single-outstanding-send invariant;
//   - recvArmed enforces the single-outstanding-receive invariant;
//   - handler is an atomic pointer, so a handler can re-register from
//     inside its own callback while delivery stays serialized on the
//     reactor goroutine;
//   - closeMu makes Close idempotent under concurrent callers;
//   - destroying, set at the start of Close, tells the receive-completion
//     path not to re-arm, breaking the receive loop without racing the
//     teardown.
type transporter struct {
	log  *zap.Logger
	conn ConnectionWrapper // exclusively owned for the transporter's lifetime

	ioMu         sync.Mutex
	sendInFlight atomic.Bool
	recvArmed    atomic.Bool
	destroying   atomic.Bool

	closeMu sync.Mutex
	closed  bool

	handler atomic.Pointer[handlerCell]
	reply   atomic.Pointer[promise.Promise[[]byte]]
}

// handlerCell wraps the registered handler so a nil registration and an
// absent registration store the same way.
type handlerCell struct {
	h EventHandler
}

// New validates the connection, arms the first receive, and returns a ready
// Transporter. The transporter takes exclusive ownership of cw.
func New(cw ConnectionWrapper, log *zap.Logger) (Transporter, error) {
	if cw == nil {
		return nil, fault.New(fault.CodeUninitialized, "transporter.new", nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	t := &transporter{log: log, conn: cw}
	if err := t.armReceive(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *transporter) RegisterCallback(h EventHandler) {
	t.handler.Store(&handlerCell{h: h})
}

func (t *transporter) currentHandler() EventHandler {
	if c := t.handler.Load(); c != nil {
		return c.h
	}
	return nil
}

func (t *transporter) Send(data []byte) *promise.Future[struct{}] {
	if t.destroying.Load() {
		return promise.Failed[struct{}](fault.New(fault.CodeResourceFault, "transporter.send", nil))
	}
	if len(data) > t.conn.MaxSendSize() {
		return promise.Failed[struct{}](fault.New(fault.CodeInvalidSize, "transporter.send", nil))
	}
	if !t.sendInFlight.CompareAndSwap(false, true) {
		return promise.Failed[struct{}](fault.New(fault.CodeBusy, "transporter.send", nil))
	}

	p := promise.New[struct{}]()
	t.ioMu.Lock()
	err := t.conn.SendAsync(data, func(err error) {
		// reactor goroutine
		t.sendInFlight.Store(false)
		if err != nil {
			p.Fail(err)
			return
		}
		p.Complete(struct{}{})
		if h := t.currentHandler(); h != nil {
			h.OnSent()
		}
	})
	t.ioMu.Unlock()
	if err != nil {
		t.sendInFlight.Store(false)
		p.Fail(err)
	}
	return p.Future()
}

func (t *transporter) SendSync(data []byte) error {
	_, err := t.Send(data).Wait()
	return err
}

func (t *transporter) SendAndReceiveSync(data []byte) ([]byte, error) {
	if t.destroying.Load() {
		return nil, fault.New(fault.CodeResourceFault, "transporter.sendrecv", nil)
	}

	// Claim the single reply slot before sending so the answer cannot slip
	// past between the send completing and the wait starting.
	p := promise.New[[]byte]()
	if !t.reply.CompareAndSwap(nil, p) {
		return nil, fault.New(fault.CodeBusy, "transporter.sendrecv", nil)
	}

	if err := t.SendSync(data); err != nil {
		// Release the slot only if the receive path has not already
		// consumed it for this promise.
		t.reply.CompareAndSwap(p, nil)
		return nil, err
	}
	return p.Future().Wait()
}

// Close releases the connection. Exactly one caller performs the teardown;
// the rest return immediately. In-flight operations fail with a resource
// fault instead of hanging.
func (t *transporter) Close() error {
	t.closeMu.Lock()
	if t.closed {
		t.closeMu.Unlock()
		return nil
	}
	t.closed = true
	t.closeMu.Unlock()

	// Order matters: the destroying flag must be visible before the
	// connection starts failing completions, so the receive path never
	// re-arms into a dying connection.
	t.destroying.Store(true)
	_ = t.conn.Close()

	if w := t.reply.Swap(nil); w != nil {
		w.Fail(fault.New(fault.CodeResourceFault, "transporter.close", nil))
	}
	return nil
}

// armReceive binds the receive slot. It fails busy when a receive is already
// bound and uninitialized when the connection is already gone.
func (t *transporter) armReceive() error {
	if !t.recvArmed.CompareAndSwap(false, true) {
		return fault.New(fault.CodeBusy, "transporter.recv", nil)
	}
	t.ioMu.Lock()
	err := t.conn.ReceiveAsync(t.onReceive)
	t.ioMu.Unlock()
	if err != nil {
		t.recvArmed.Store(false)
		return err
	}
	return nil
}

// onReceive runs on the reactor goroutine for every completed receive. It
// delivers the message, then re-arms unless destruction has begun, so
// inbound messages are never dropped between deliveries and their order is
// preserved.
func (t *transporter) onReceive(data []byte, err error) {
	t.recvArmed.Store(false)

	if err != nil {
		t.connectionLost(err)
		return
	}

	if w := t.reply.Swap(nil); w != nil {
		w.Complete(data)
	} else if h := t.currentHandler(); h != nil {
		h.OnReceived(data)
	}

	if t.destroying.Load() {
		return
	}
	if rearmErr := t.armReceive(); rearmErr != nil && !t.destroying.Load() {
		t.connectionLost(rearmErr)
	}
}

// connectionLost funnels a failure detected on the reactor goroutine into
// whatever is waiting on it: the pending reply promise, then the registered
// handler. A locally initiated Close reports nothing.
func (t *transporter) connectionLost(err error) {
	if w := t.reply.Swap(nil); w != nil {
		w.Fail(fault.New(fault.CodeResourceFault, "transporter.recv", err))
	}
	if t.destroying.Load() {
		return
	}
	t.log.Debug("transporter: connection lost", zap.Error(err))
	if h := t.currentHandler(); h != nil {
		h.OnDisconnect()
	}
}
