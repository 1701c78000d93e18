//go:build windows

package conn

import (
	"context"
	"net"

	"github.com/Microsoft/go-winio"
)

// On Windows the daemon listens on a named pipe; the address is the pipe
// name (\\.\pipe\...).

func dialRaw(ctx context.Context, address string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, address)
}

func listenRaw(address string) (net.Listener, error) {
	return winio.ListenPipe(address, nil)
}
