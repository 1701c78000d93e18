// cryptipc-echod is a stand-in daemon for round-trip testing: it accepts
// connections on the daemon endpoint and echoes every frame back unchanged.
package main

import (
	"errors"
	"flag"
	"net"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"cryptipc/pkg/config"
	"cryptipc/pkg/conn"
	"cryptipc/pkg/observability"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("cryptipc-echod", flag.ExitOnError)
	endpoint := fs.String("endpoint", config.DefaultEndpoint(), "daemon endpoint to listen on")
	maxBytes := fs.Int("max-bytes", conn.DefaultMaxFrameSize, "largest accepted frame")
	level := fs.String("log-level", "info", "log level")
	_ = fs.Parse(args)

	logger, err := observability.SetupLogger(config.LogConfig{
		Level:   *level,
		Format:  "console",
		Outputs: []string{"stderr"},
	})
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	l, err := conn.Listen(*endpoint, conn.Options{MaxFrameSize: *maxBytes})
	if err != nil {
		logger.Error("listen failed", zap.String("endpoint", *endpoint), zap.Error(err))
		return 1
	}
	logger.Info("echo daemon listening", zap.String("endpoint", *endpoint))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		logger.Info("shutting down")
		_ = l.Close()
	}()

	for {
		c, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return 0
			}
			logger.Warn("accept failed", zap.Error(err))
			continue
		}
		go echo(c, logger)
	}
}

// echo reads frames and writes each one straight back until the peer goes
// away. Strict ping-pong, matching the transport's reply discipline.
func echo(c *conn.Conn, logger *zap.Logger) {
	defer func() { _ = c.Close() }()
	for {
		data, err := c.RecvFrame()
		if err != nil {
			logger.Debug("connection finished", zap.Error(err))
			return
		}
		if err := c.SendFrame(data); err != nil {
			logger.Debug("echo write failed", zap.Error(err))
			return
		}
	}
}
