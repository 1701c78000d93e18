// Package conn provides the raw connection primitive for talking to the
// crypto daemon and the four-operation wrapper the transporter consumes.
// Frames are opaque byte regions with a u32 little-endian length prefix;
// this package imposes no structure on the payload.
package conn

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"cryptipc/pkg/fault"
)

// DefaultMaxFrameSize bounds a single message when no explicit limit is
// configured. It mirrors the daemon's send buffer capacity.
const DefaultMaxFrameSize = 1 << 20

// Options tunes a connection.
type Options struct {
	// MaxFrameSize is the largest payload accepted for send or receive.
	// Zero selects DefaultMaxFrameSize.
	MaxFrameSize int
}

func (o Options) maxFrame() int {
	if o.MaxFrameSize <= 0 {
		return DefaultMaxFrameSize
	}
	return o.MaxFrameSize
}

// Conn is an established, exclusively-owned bidirectional channel to the
// daemon. Exactly one owner mutates it; it is never shared or duplicated.
type Conn struct {
	c        net.Conn
	br       *bufio.Reader
	bw       *bufio.Writer
	wmu      sync.Mutex
	maxFrame int

	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error
}

// Dial establishes a connection to the daemon endpoint. The address is an
// opaque endpoint identifier: a Unix socket path on POSIX systems, a named
// pipe name on Windows. Establishment is bounded by ctx.
func Dial(ctx context.Context, address string, o Options) (*Conn, error) {
	raw, err := dialRaw(ctx, address)
	if err != nil {
		return nil, err
	}
	return newConn(raw, o), nil
}

// Pipe returns two connected in-process connections, one per end. Useful in
// tests as a stand-in for a daemon connection.
func Pipe(o Options) (*Conn, *Conn) {
	c1, c2 := net.Pipe()
	return newConn(c1, o), newConn(c2, o)
}

func newConn(raw net.Conn, o Options) *Conn {
	return &Conn{
		c:        raw,
		br:       bufio.NewReader(raw),
		bw:       bufio.NewWriter(raw),
		maxFrame: o.maxFrame(),
	}
}

// MaxSendSize returns the largest payload SendFrame accepts.
func (c *Conn) MaxSendSize() int { return c.maxFrame }

func (c *Conn) LocalAddr() net.Addr  { return c.c.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.c.RemoteAddr() }

// SendFrame writes one length-prefixed frame. The size limit is enforced
// before any byte is written.
func (c *Conn) SendFrame(b []byte) error {
	if len(b) > c.maxFrame {
		return fault.New(fault.CodeInvalidSize, "conn.send", nil)
	}
	if c.closed.Load() {
		return fault.New(fault.CodeResourceFault, "conn.send", net.ErrClosed)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	var lenbuf [4]byte
	binary.LittleEndian.PutUint32(lenbuf[:], uint32(len(b)))
	if _, err := c.bw.Write(lenbuf[:]); err != nil {
		return c.sendErr(err)
	}
	if _, err := c.bw.Write(b); err != nil {
		return c.sendErr(err)
	}
	if err := c.bw.Flush(); err != nil {
		return c.sendErr(err)
	}
	return nil
}

// RecvFrame reads the next length-prefixed frame.
func (c *Conn) RecvFrame() ([]byte, error) {
	var lenbuf [4]byte
	if _, err := io.ReadFull(c.br, lenbuf[:]); err != nil {
		return nil, c.recvErr(err)
	}
	n := int(binary.LittleEndian.Uint32(lenbuf[:]))
	if n < 0 || n > c.maxFrame {
		return nil, fault.New(fault.CodeRuntimeFault, "conn.recv",
			fmt.Errorf("frame size %d exceeds limit %d", n, c.maxFrame))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.br, buf); err != nil {
		return nil, c.recvErr(err)
	}
	return buf, nil
}

// Close releases the connection. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.c.Close()
	})
	return c.closeErr
}

// Closed reports whether Close has begun.
func (c *Conn) Closed() bool { return c.closed.Load() }

func (c *Conn) sendErr(err error) error {
	if c.closed.Load() || isClosedErr(err) {
		return fault.New(fault.CodeResourceFault, "conn.send", err)
	}
	return fault.New(fault.CodeRuntimeFault, "conn.send", err)
}

func (c *Conn) recvErr(err error) error {
	// Any failure to complete an inbound frame means the channel is gone:
	// either we closed it, the daemon went away, or the stream is torn
	// mid-frame and can no longer be trusted.
	return fault.New(fault.CodeResourceFault, "conn.recv", err)
}

func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed)
}
