package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/config"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/logging"
	"github.com/LSFLK/superapp-mobile-sub000/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Flags override environment variables
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "Server port")
	flag.StringVar(&cfg.Backend.BaseURL, "backend", cfg.Backend.BaseURL, "Backend base URL")
	flag.StringVar(&cfg.Host.DocumentRoot, "root", cfg.Host.DocumentRoot, "Document root for installed bundles")
	flag.StringVar(&cfg.Host.UserID, "user", cfg.Host.UserID, "Signed-in user id")
	flag.BoolVar(&cfg.Host.SyncOnStart, "sync", cfg.Host.SyncOnStart, "Sync entitled apps on start")
	flag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development logging")
	flag.Parse()

	logCfg := logging.DefaultConfig()
	if cfg.Logging.Development {
		logCfg = logging.DevelopmentConfig()
	}
	logCfg.Level = cfg.Logging.Level
	logger, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	srv, err := server.NewServer(cfg, logger, nil)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("Server error", zap.Error(err))
		stop()
		_ = srv.Close()
		os.Exit(1)
	}
	logger.Info("Server stopped")
}
