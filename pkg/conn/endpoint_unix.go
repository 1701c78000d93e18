//go:build !windows

package conn

import (
	"context"
	"net"
)

// On POSIX systems the daemon listens on a Unix domain socket; the address
// is the socket path.

func dialRaw(ctx context.Context, address string) (net.Conn, error) {
	d := &net.Dialer{}
	return d.DialContext(ctx, "unix", address)
}

func listenRaw(address string) (net.Listener, error) {
	return net.Listen("unix", address)
}
