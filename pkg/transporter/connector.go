package transporter

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"cryptipc/pkg/conn"
	"cryptipc/pkg/fault"
	"cryptipc/pkg/reactor"
)

// DefaultConnectTimeout bounds connection establishment. There is no
// per-operation timeout once connected.
const DefaultConnectTimeout = 10 * time.Second

// Connector turns a daemon endpoint address into a working Transporter.
// It is safe for concurrent use: every Connect call produces an independent
// connection.
type Connector struct {
	r       *reactor.Reactor
	log     *zap.Logger
	timeout time.Duration
	maxMsg  int
}

// ConnectorOption tunes a Connector.
type ConnectorOption func(*Connector)

// WithConnectTimeout replaces the default connect timeout.
func WithConnectTimeout(d time.Duration) ConnectorOption {
	return func(c *Connector) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxMessageSize replaces the default per-message size limit.
func WithMaxMessageSize(n int) ConnectorOption {
	return func(c *Connector) {
		if n > 0 {
			c.maxMsg = n
		}
	}
}

// WithLogger attaches a logger to the Connector and the Transporters it
// produces.
func WithLogger(log *zap.Logger) ConnectorOption {
	return func(c *Connector) {
		if log != nil {
			c.log = log
		}
	}
}

// NewConnector builds a Connector whose Transporters deliver completions
// through r.
func NewConnector(r *reactor.Reactor, opts ...ConnectorOption) *Connector {
	c := &Connector{
		r:       r,
		log:     zap.NewNop(),
		timeout: DefaultConnectTimeout,
		maxMsg:  conn.DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes a connection to address and returns a ready
// Transporter with its receive loop armed. Establishment fails
// deterministically once the connect timeout elapses.
func (c *Connector) Connect(address string) (Transporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	raw, err := conn.Dial(ctx, address, conn.Options{MaxFrameSize: c.maxMsg})
	if err != nil {
		terr := translateDialError(err)
		c.log.Debug("connector: dial failed",
			zap.String("address", address), zap.Error(terr))
		return nil, terr
	}

	w := conn.Wrap(raw, c.r, c.log)
	t, err := New(w, c.log)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	c.log.Debug("connector: connected", zap.String("address", address))
	return t, nil
}

// translateDialError maps OS-level connection failures onto the transport
// error taxonomy.
func translateDialError(err error) error {
	const op = "connector.connect"
	switch {
	case errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ETIMEDOUT):
		return fault.New(fault.CodeRefusedOrTimedOut, op, err)
	case errors.Is(err, syscall.EISCONN) ||
		errors.Is(err, syscall.EALREADY):
		return fault.New(fault.CodeAlreadyConnected, op, err)
	case errors.Is(err, syscall.EACCES) ||
		errors.Is(err, syscall.EPERM) ||
		errors.Is(err, fs.ErrPermission):
		return fault.New(fault.CodePermissionDenied, op, err)
	case errors.Is(err, syscall.EADDRINUSE) ||
		errors.Is(err, syscall.EAGAIN):
		return fault.New(fault.CodeAddressBusy, op, err)
	case errors.Is(err, syscall.ENOMEM) ||
		errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ENOBUFS):
		return fault.New(fault.CodeNoResources, op, err)
	case errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT):
		// The daemon's endpoint does not exist: it is not configured or
		// not running on this host.
		return fault.New(fault.CodeMissingConfig, op, err)
	case errors.Is(err, syscall.ENOTDIR) ||
		errors.Is(err, syscall.EROFS):
		return fault.New(fault.CodeEnvironmentFault, op, err)
	default:
		return fault.New(fault.CodeRuntimeFault, op, err)
	}
}
