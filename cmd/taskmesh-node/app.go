package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"taskmesh/pkg/comm"
	"taskmesh/pkg/config"
	"taskmesh/pkg/observability"
	"taskmesh/pkg/protocol/codec"
	"taskmesh/pkg/scheduler"
	"taskmesh/pkg/transport"
	"taskmesh/pkg/transport/mem"
)

// run is the main entry point after CLI parsing. All collaborators are
// constructed here and passed down explicitly; there are no package-level
// instances to reach for.
func run(opts Options) int {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	zap.L().Info("taskmesh-node started", zap.String("app", cfg.AppName))
	zap.L().Info("effective configuration", zap.Any("config", cfg))

	sched, err := scheduler.New(scheduler.Config{
		Strategy:   cfg.Scheduler.Strategy,
		MaxRetries: cfg.Scheduler.MaxRetries,
		Timeout:    time.Duration(cfg.Scheduler.TimeoutMS) * time.Millisecond,
	})
	if err != nil {
		zap.L().Error("failed to build scheduler", zap.Error(err))
		return 1
	}

	codecs := codec.NewRegistry()
	cb, err := codec.CBOR()
	if err != nil {
		zap.L().Error("failed to build cbor codec", zap.Error(err))
		return 1
	}
	codecs.Register(cb)
	wire := codecs.Get(cfg.Comm.Codec)
	if wire == nil {
		zap.L().Error("unknown wire codec", zap.String("codec", cfg.Comm.Codec))
		return 1
	}

	// In-process bus; a distributed deployment plugs a real transport here.
	bus := mem.NewBus()
	self := transport.PeerID(cfg.NodeID)
	var mgr *comm.Manager
	tr := bus.Endpoint(self, func(from transport.PeerID, frame []byte) {
		mgr.Inbound(from, frame)
	})
	mgr = comm.NewManager(self, comm.Config{
		HeartbeatInterval: time.Duration(cfg.Comm.HeartbeatIntervalMS) * time.Millisecond,
		MessageTimeout:    time.Duration(cfg.Comm.MessageTimeoutMS) * time.Millisecond,
		MaxRetries:        cfg.Comm.MaxRetries,
	}, tr, wire)

	mgr.Start()
	defer mgr.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zap.L().Info("node is running; press Ctrl+C to exit",
		zap.String("node", cfg.NodeID),
		zap.String("strategy", sched.Stats().Strategy))
	<-ctx.Done()

	zap.L().Info("shutting down")
	_ = tr.Close()
	return 0
}
