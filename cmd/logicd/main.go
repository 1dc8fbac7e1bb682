package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"logic-server/internal/common/logging"
	"logic-server/internal/config"
	"logic-server/internal/service"
	"logic-server/internal/service/modules/kvstore"
	"logic-server/internal/service/modules/testmod"
)

func main() {
	var (
		configPath = flag.String("config", "configs/logicd.json", "config path")
		socketPath = flag.String("socket", "", "socket path override")
		debug      = flag.Bool("debug", false, "development logging")
	)
	flag.Parse()

	var cfg config.ServerConfig
	if err := config.Load(*configPath, &cfg); err != nil {
		log.Fatal(err)
	}
	if *socketPath != "" {
		cfg.SocketPath = *socketPath
	}

	logger, err := logging.NewLogger("logicd", *debug || cfg.Debug)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	srv := service.NewServer(service.Options{
		SocketPath:     cfg.SocketPath,
		RestartBackoff: time.Duration(cfg.RestartBackoffSec) * time.Second,
		DrainTimeout:   time.Duration(cfg.DrainTimeoutSec) * time.Second,
		BlockingSlots:  int64(cfg.BlockingSlots),
	}, logger)

	tm, err := testmod.New(logger)
	if err != nil {
		logger.Fatal("build test module", zap.Error(err))
	}
	srv.RegisterModule(tm)

	if cfg.Redis.Addr != "" {
		kv, err := kvstore.New(cfg.Redis, logger)
		if err != nil {
			logger.Fatal("build kvstore module", zap.Error(err))
		}
		srv.RegisterModule(kv)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Serve(ctx); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
