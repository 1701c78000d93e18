package transporter

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"cryptipc/pkg/conn"
	"cryptipc/pkg/fault"
	"cryptipc/pkg/reactor"
)

// handlerRecorder records event-handler callbacks through channels so tests
// can assert on delivery and ordering.
type handlerRecorder struct {
	received     chan []byte
	sent         chan struct{}
	disconnected chan struct{}
}

func newHandlerRecorder() *handlerRecorder {
	return &handlerRecorder{
		received:     make(chan []byte, 16),
		sent:         make(chan struct{}, 16),
		disconnected: make(chan struct{}, 16),
	}
}

func (h *handlerRecorder) OnDisconnect()         { h.disconnected <- struct{}{} }
func (h *handlerRecorder) OnSent()               { h.sent <- struct{}{} }
func (h *handlerRecorder) OnReceived(data []byte) { h.received <- data }

// testRig wires a transporter to the client end of an in-process pipe and
// hands the daemon end to the test.
type testRig struct {
	t      *testing.T
	tr     Transporter
	server *conn.Conn
	r      *reactor.Reactor
}

func newTestRig(t *testing.T, o conn.Options) *testRig {
	t.Helper()
	client, server := conn.Pipe(o)
	r := reactor.New(0, zap.NewNop())
	w := conn.Wrap(client, r, zap.NewNop())
	tr, err := New(w, zap.NewNop())
	if err != nil {
		t.Fatalf("transporter.New failed: %v", err)
	}
	t.Cleanup(func() {
		_ = tr.Close()
		_ = server.Close()
		_ = r.Close()
	})
	return &testRig{t: t, tr: tr, server: server, r: r}
}

// startEcho echoes every inbound frame until the connection dies.
func (rig *testRig) startEcho() {
	go func() {
		for {
			data, err := rig.server.RecvFrame()
			if err != nil {
				return
			}
			if err := rig.server.SendFrame(data); err != nil {
				return
			}
		}
	}()
}

// drainSends consumes inbound frames without replying.
func (rig *testRig) drainSends() {
	go func() {
		for {
			if _, err := rig.server.RecvFrame(); err != nil {
				return
			}
		}
	}()
}

func waitErr(t *testing.T, f interface{ Done() <-chan struct{} }, wait func() error) error {
	t.Helper()
	select {
	case <-f.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("future never settled")
	}
	return wait()
}

func TestRoundTripFidelity(t *testing.T) {
	rig := newTestRig(t, conn.Options{})
	rig.startEcho()

	msg := bytes.Repeat([]byte{0xC3}, 512)
	got, err := rig.tr.SendAndReceiveSync(msg)
	if err != nil {
		t.Fatalf("SendAndReceiveSync failed: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Fatalf("reply differs from request: %d vs %d bytes", len(got), len(msg))
	}
}

func TestSendSyncCompletes(t *testing.T) {
	rig := newTestRig(t, conn.Options{})
	rig.drainSends()

	if err := rig.tr.SendSync([]byte("fire and wait")); err != nil {
		t.Fatalf("SendSync failed: %v", err)
	}
}

func TestOnSentFiresAfterAsyncSend(t *testing.T) {
	rig := newTestRig(t, conn.Options{})
	rig.drainSends()

	h := newHandlerRecorder()
	rig.tr.RegisterCallback(h)

	f := rig.tr.Send([]byte("async"))
	if err := waitErr(t, f, func() error { _, err := f.Wait(); return err }); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case <-h.sent:
	case <-time.After(time.Second):
		t.Fatalf("OnSent never fired")
	}
}

func TestSecondConcurrentSendIsBusy(t *testing.T) {
	rig := newTestRig(t, conn.Options{})

	// Nothing reads on the daemon side yet, so the first send stays in
	// flight while the second one is issued.
	first := rig.tr.Send([]byte("first"))

	second := rig.tr.Send([]byte("second"))
	if _, settled, err := second.TryGet(); !settled || !errors.Is(err, fault.ErrBusy) {
		t.Fatalf("expected immediate busy failure, settled=%v err=%v", settled, err)
	}

	// First one completes normally once the daemon reads it.
	rig.drainSends()
	if err := waitErr(t, first, func() error { _, err := first.Wait(); return err }); err != nil {
		t.Fatalf("first send failed: %v", err)
	}
}

func TestSecondConcurrentSendAndReceiveSyncIsBusy(t *testing.T) {
	rig := newTestRig(t, conn.Options{})

	reqSeen := make(chan struct{})
	release := make(chan struct{})
	go func() {
		data, err := rig.server.RecvFrame()
		if err != nil {
			return
		}
		close(reqSeen)
		<-release
		_ = rig.server.SendFrame(data)
	}()

	type result struct {
		data []byte
		err  error
	}
	firstDone := make(chan result, 1)
	go func() {
		data, err := rig.tr.SendAndReceiveSync([]byte("request"))
		firstDone <- result{data, err}
	}()

	select {
	case <-reqSeen:
	case <-time.After(time.Second):
		t.Fatalf("daemon never saw the first request")
	}

	if _, err := rig.tr.SendAndReceiveSync([]byte("interloper")); !errors.Is(err, fault.ErrBusy) {
		t.Fatalf("expected busy for the second synchronous receive, got %v", err)
	}

	close(release)
	select {
	case res := <-firstDone:
		if res.err != nil {
			t.Fatalf("first round trip failed: %v", res.err)
		}
		if !bytes.Equal(res.data, []byte("request")) {
			t.Fatalf("first round trip got %q", res.data)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("first round trip never finished")
	}
}

func TestOversizeMessageRejected(t *testing.T) {
	rig := newTestRig(t, conn.Options{MaxFrameSize: 64})

	f := rig.tr.Send(make([]byte, 65))
	if _, settled, err := f.TryGet(); !settled || !errors.Is(err, fault.ErrInvalidSize) {
		t.Fatalf("expected immediate invalid-size failure, settled=%v err=%v", settled, err)
	}
	if err := rig.tr.SendSync(make([]byte, 65)); !errors.Is(err, fault.ErrInvalidSize) {
		t.Fatalf("SendSync: expected invalid size, got %v", err)
	}
}

func TestDoubleCloseFromTwoGoroutines(t *testing.T) {
	rig := newTestRig(t, conn.Options{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = rig.tr.Close()
		}()
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("concurrent Close calls blocked")
	}
	for i, err := range errs {
		if err != nil {
			t.Fatalf("Close #%d returned %v", i, err)
		}
	}
}

func TestOperationsAfterCloseFailWithResourceFault(t *testing.T) {
	rig := newTestRig(t, conn.Options{})
	_ = rig.tr.Close()

	f := rig.tr.Send([]byte("x"))
	if _, settled, err := f.TryGet(); !settled || !errors.Is(err, fault.ErrResourceFault) {
		t.Fatalf("Send after close: settled=%v err=%v", settled, err)
	}
	if err := rig.tr.SendSync([]byte("x")); !errors.Is(err, fault.ErrResourceFault) {
		t.Fatalf("SendSync after close: %v", err)
	}
	if _, err := rig.tr.SendAndReceiveSync([]byte("x")); !errors.Is(err, fault.ErrResourceFault) {
		t.Fatalf("SendAndReceiveSync after close: %v", err)
	}
}

func TestCloseWithReceiveInFlight(t *testing.T) {
	rig := newTestRig(t, conn.Options{})

	h := newHandlerRecorder()
	rig.tr.RegisterCallback(h)

	// The receive loop is armed and blocked on the pipe; closing must not
	// crash, must not re-arm, and must not report a disconnect for a
	// locally initiated close.
	if err := rig.tr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	select {
	case <-h.disconnected:
		t.Fatalf("OnDisconnect fired for a local Close")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPeerDisconnectFiresHandler(t *testing.T) {
	rig := newTestRig(t, conn.Options{})

	h := newHandlerRecorder()
	rig.tr.RegisterCallback(h)

	_ = rig.server.Close()
	select {
	case <-h.disconnected:
	case <-time.After(time.Second):
		t.Fatalf("OnDisconnect never fired after the peer closed")
	}
}

func TestPeerDisconnectFailsPendingReply(t *testing.T) {
	rig := newTestRig(t, conn.Options{})

	go func() {
		// Swallow the request, then drop the connection instead of
		// answering.
		_, _ = rig.server.RecvFrame()
		_ = rig.server.Close()
	}()

	if _, err := rig.tr.SendAndReceiveSync([]byte("doomed")); !errors.Is(err, fault.ErrResourceFault) {
		t.Fatalf("expected resource fault for abandoned reply, got %v", err)
	}
}

func TestUnsolicitedMessagesPreserveOrder(t *testing.T) {
	rig := newTestRig(t, conn.Options{})

	h := newHandlerRecorder()
	rig.tr.RegisterCallback(h)

	frames := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	go func() {
		for _, f := range frames {
			if err := rig.server.SendFrame(f); err != nil {
				return
			}
		}
	}()

	for _, want := range frames {
		select {
		case got := <-h.received:
			if !bytes.Equal(got, want) {
				t.Fatalf("order broken: want %q got %q", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("inbound %q never delivered", want)
		}
	}
}

// reregisteringHandler swaps in a replacement handler from inside its own
// OnReceived callback.
type reregisteringHandler struct {
	tr   Transporter
	next EventHandler
	seen chan []byte
}

func (h *reregisteringHandler) OnDisconnect() {}
func (h *reregisteringHandler) OnSent()       {}
func (h *reregisteringHandler) OnReceived(data []byte) {
	h.seen <- data
	h.tr.RegisterCallback(h.next)
}

func TestReregisterFromInsideCallback(t *testing.T) {
	rig := newTestRig(t, conn.Options{})

	second := newHandlerRecorder()
	first := &reregisteringHandler{tr: rig.tr, next: second, seen: make(chan []byte, 1)}
	rig.tr.RegisterCallback(first)

	if err := rig.server.SendFrame([]byte("a")); err != nil {
		t.Fatalf("server send failed: %v", err)
	}
	select {
	case <-first.seen:
	case <-time.After(time.Second):
		t.Fatalf("first handler never saw the message")
	}

	if err := rig.server.SendFrame([]byte("b")); err != nil {
		t.Fatalf("server send failed: %v", err)
	}
	select {
	case got := <-second.received:
		if !bytes.Equal(got, []byte("b")) {
			t.Fatalf("replacement handler got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("replacement handler never saw the next message")
	}
}

func TestSendFailureLeavesTransporterUsable(t *testing.T) {
	rig := newTestRig(t, conn.Options{MaxFrameSize: 32})
	rig.drainSends()

	if err := rig.tr.SendSync(make([]byte, 33)); !errors.Is(err, fault.ErrInvalidSize) {
		t.Fatalf("expected invalid size, got %v", err)
	}
	// The failure was local to that operation; the transporter still works.
	if err := rig.tr.SendSync([]byte("still alive")); err != nil {
		t.Fatalf("send after local failure: %v", err)
	}
}

func TestNewRequiresConnection(t *testing.T) {
	if _, err := New(nil, zap.NewNop()); !errors.Is(err, fault.ErrUninitialized) {
		t.Fatalf("expected uninitialized, got %v", err)
	}
}
