// Package main runs the grocery store server: an in-memory ordered store
// hosted over REST and WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/grocery-sync/internal/config"
	"github.com/vyrodovalexey/grocery-sync/internal/logging"
	"github.com/vyrodovalexey/grocery-sync/internal/server"
	"github.com/vyrodovalexey/grocery-sync/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "grocery-server: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.LogLevel, logging.WithFields(zap.String("component", "grocery-server")))
	if err != nil {
		fmt.Fprintf(os.Stderr, "grocery-server: building logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.Int("server_port", cfg.ServerPort),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("shutdown_timeout", cfg.ShutdownTimeout),
		zap.Bool("metrics_enabled", cfg.MetricsEnabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	memStore := store.NewMemoryStore()
	srv := server.New(cfg, logger, memStore)

	served := make(chan error, 1)
	go func() { served <- srv.Start() }()

	return serve(ctx, logger, cfg, srv, memStore, served)
}

// stopper is the part of the server that serve drives.
type stopper interface {
	Shutdown(ctx context.Context) error
}

// serve waits for the listener to fail or ctx to end. It then stops the
// server within the shutdown timeout and closes the store last, so open
// streams see a close frame before the store goes away.
func serve(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	srv stopper,
	st *store.MemoryStore,
	served <-chan error,
) int {
	code := 0
	select {
	case err := <-served:
		logger.Error("store server failed", zap.Error(err))
		code = 1
	case <-ctx.Done():
		logger.Info("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			code = 1
		}
	}

	if err := st.Close(); err != nil {
		logger.Warn("closing store", zap.Error(err))
	}
	return code
}
