package main

import (
	"bytes"
	"os"
	"time"

	"go.uber.org/zap"

	"cryptipc/pkg/codec"
	"cryptipc/pkg/config"
	"cryptipc/pkg/observability"
	"cryptipc/pkg/reactor"
	"cryptipc/pkg/transporter"
)

// ping is the record echoed through the daemon, CBOR-encoded. The transport
// does not interpret it; only the two ends of this tool do.
type ping struct {
	Seq     int    `cbor:"seq"`
	SentAt  int64  `cbor:"sent_unix_ns"`
	Padding []byte `cbor:"pad,omitempty"`
}

// run is the main entry point after CLI parsing.
func run(opts Options) int {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}
	if opts.Endpoint != "" {
		cfg.Endpoint = opts.Endpoint
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	cdc, err := codec.CBOR()
	if err != nil {
		logger.Error("codec init failed", zap.Error(err))
		return 1
	}

	r := reactor.New(cfg.ReactorQueueDepth, logger)
	defer func() { _ = r.Close() }()

	c := transporter.NewConnector(r,
		transporter.WithConnectTimeout(time.Duration(cfg.ConnectTimeoutMS)*time.Millisecond),
		transporter.WithMaxMessageSize(cfg.MaxMessageBytes),
		transporter.WithLogger(logger),
	)

	t, err := c.Connect(cfg.Endpoint)
	if err != nil {
		logger.Error("connect failed", zap.String("endpoint", cfg.Endpoint), zap.Error(err))
		return 1
	}
	defer func() { _ = t.Close() }()
	logger.Info("connected", zap.String("endpoint", cfg.Endpoint))

	pad := bytes.Repeat([]byte{0xA5}, opts.PayloadLen)
	for seq := 1; seq <= opts.Count; seq++ {
		req := ping{Seq: seq, SentAt: time.Now().UnixNano(), Padding: pad}
		payload, err := cdc.Marshal(req)
		if err != nil {
			logger.Error("marshal failed", zap.Error(err))
			return 1
		}

		start := time.Now()
		replyBytes, err := t.SendAndReceiveSync(payload)
		if err != nil {
			logger.Error("round trip failed", zap.Int("seq", seq), zap.Error(err))
			return 1
		}
		rtt := time.Since(start)

		var reply ping
		if err := cdc.Unmarshal(replyBytes, &reply); err != nil {
			logger.Error("reply decode failed", zap.Int("seq", seq), zap.Error(err))
			return 1
		}
		if reply.Seq != req.Seq {
			logger.Error("reply sequence mismatch",
				zap.Int("sent", req.Seq), zap.Int("got", reply.Seq))
			return 1
		}
		logger.Info("pong",
			zap.Int("seq", seq),
			zap.Int("bytes", len(payload)),
			zap.Duration("rtt", rtt))
	}
	return 0
}
