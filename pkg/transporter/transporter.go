// Package transporter implements the client side of the IPC channel to the
// crypto daemon: a Transporter bound to exactly one connection, a Connector
// that establishes connections, and a Manager that keeps one canonical
// Transporter per endpoint.
package transporter

import "cryptipc/pkg/promise"

// ConnectionWrapper is the four-operation contract the transporter consumes
// from the connection layer. Completion callbacks are delivered on the
// reactor dispatch goroutine.
type ConnectionWrapper interface {
	// SendAsync queues one outbound message; done fires exactly once
	// unless SendAsync itself returns an error.
	SendAsync(data []byte, done func(error)) error
	// ReceiveAsync binds the single receive slot; done fires exactly once
	// unless ReceiveAsync itself returns an error.
	ReceiveAsync(done func(data []byte, err error)) error
	// Close releases the connection; idempotent.
	Close() error
	// MaxSendSize is the largest message the connection accepts.
	MaxSendSize() int
}

// EventHandler is the upstream callback surface. All three callbacks run on
// the reactor dispatch goroutine. At most one handler is registered per
// transporter at a time; a handler may re-register from inside a callback.
type EventHandler interface {
	// OnDisconnect fires when the daemon side goes away. It does not fire
	// for a locally initiated Close.
	OnDisconnect()
	// OnSent fires after an asynchronous Send completes successfully.
	OnSent()
	// OnReceived delivers an inbound message that no synchronous receive
	// is waiting for. Delivery order is preserved per transporter.
	OnReceived(data []byte)
}

// Transporter exposes send/receive/close over one exclusively-owned daemon
// connection.
//
// There is no internal request queue: at most one send and one receive may
// be outstanding, and violating that fails fast with a busy error. There is
// also no per-operation timeout once connected; SendSync and
// SendAndReceiveSync block until the daemon answers or the connection dies.
type Transporter interface {
	// Send transmits data asynchronously. Completion or failure is
	// observed through the returned future; the calling goroutine never
	// blocks for the I/O itself.
	Send(data []byte) *promise.Future[struct{}]

	// SendSync transmits data and blocks until the reactor signals
	// completion of the same underlying send.
	SendSync(data []byte) error

	// SendAndReceiveSync transmits data and blocks until the next inbound
	// message, which is treated as the reply. There is no correlation
	// identifier: correctness rests on a strict request/response
	// discipline between client and daemon.
	SendAndReceiveSync(data []byte) ([]byte, error)

	// Close releases the connection. Idempotent and safe to call
	// concurrently with in-flight operations, which fail with a resource
	// fault rather than hanging.
	Close() error

	// RegisterCallback installs the event handler, replacing any previous
	// one. A nil handler clears the registration.
	RegisterCallback(h EventHandler)
}
