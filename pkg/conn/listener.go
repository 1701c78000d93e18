package conn

import "net"

// Listener accepts inbound daemon-side connections. The client library never
// listens; this exists for the echo daemon and for tests that need a real
// listening endpoint.
type Listener struct {
	l    net.Listener
	opts Options
}

// Listen starts accepting connections on the daemon endpoint address.
func Listen(address string, o Options) (*Listener, error) {
	l, err := listenRaw(address)
	if err != nil {
		return nil, err
	}
	return &Listener{l: l, opts: o}, nil
}

// Accept blocks until an inbound connection is available.
func (l *Listener) Accept() (*Conn, error) {
	c, err := l.l.Accept()
	if err != nil {
		return nil, err
	}
	return newConn(c, l.opts), nil
}

// Addr returns the local listening address.
func (l *Listener) Addr() net.Addr { return l.l.Addr() }

// Close stops the listener and unblocks Accept.
func (l *Listener) Close() error { return l.l.Close() }
