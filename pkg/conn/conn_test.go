package conn

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"cryptipc/pkg/fault"
)

func TestFrameRoundTrip(t *testing.T) {
	a, b := Pipe(Options{})
	defer a.Close()
	defer b.Close()

	payload := []byte("wrap me in a frame")
	errc := make(chan error, 1)
	go func() { errc <- a.SendFrame(payload) }()

	got, err := b.RecvFrame()
	if err != nil {
		t.Fatalf("RecvFrame failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: %q != %q", got, payload)
	}
	if err := <-errc; err != nil {
		t.Fatalf("SendFrame failed: %v", err)
	}
}

func TestEmptyFrame(t *testing.T) {
	a, b := Pipe(Options{})
	defer a.Close()
	defer b.Close()

	go func() { _ = a.SendFrame(nil) }()
	got, err := b.RecvFrame()
	if err != nil {
		t.Fatalf("RecvFrame failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty frame, got %d bytes", len(got))
	}
}

func TestOversizeSendRejectedBeforeIO(t *testing.T) {
	a, b := Pipe(Options{MaxFrameSize: 16})
	defer a.Close()
	defer b.Close()

	// No reader on the other end: if SendFrame attempted I/O it would
	// block, so an immediate return proves the rejection happens first.
	err := a.SendFrame(make([]byte, 17))
	if !errors.Is(err, fault.ErrInvalidSize) {
		t.Fatalf("expected invalid size, got %v", err)
	}
}

func TestSendAfterClose(t *testing.T) {
	a, b := Pipe(Options{})
	_ = b.Close()
	_ = a.Close()
	if err := a.SendFrame([]byte("x")); !errors.Is(err, fault.ErrResourceFault) {
		t.Fatalf("expected resource fault, got %v", err)
	}
}

func TestRecvUnblocksOnClose(t *testing.T) {
	a, b := Pipe(Options{})
	defer b.Close()

	errc := make(chan error, 1)
	go func() {
		_, err := a.RecvFrame()
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	_ = a.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, fault.ErrResourceFault) {
			t.Fatalf("expected resource fault, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("RecvFrame did not unblock on Close")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	a, b := Pipe(Options{})
	_ = b.Close()
	if err := a.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
