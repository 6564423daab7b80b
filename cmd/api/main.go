package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ricochet-server/internal/config"
	"ricochet-server/internal/obslog"
	"ricochet-server/internal/server"
)

func gracefulShutdown(customServer *server.Server, httpServer *http.Server, done chan bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log := obslog.L()
	log.Info("shutdown signal received, press Ctrl+C again to force")
	stop()

	// Rooms are notified and pending results flushed within this window.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := customServer.Shutdown(ctx); err != nil {
		log.Error("error during server shutdown", zap.Error(err))
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("http server forced to shutdown", zap.Error(err))
	}

	done <- true
}

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	log := obslog.L()
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	customServer, httpServer, err := server.NewServer(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatal("server setup failed", zap.Error(err))
	}

	done := make(chan bool, 1)
	go gracefulShutdown(customServer, httpServer, done)

	log.Info("listening", zap.String("addr", httpServer.Addr))
	err = httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("http server error", zap.Error(err))
	}

	<-done
	log.Info("graceful shutdown complete")
}
