package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fieldvisit/common/logger"
	"fieldvisit/internal/app"
	"fieldvisit/internal/config"
	"fieldvisit/internal/service"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "fieldvisit-api")
	if err != nil {
		log, _ = zap.NewProduction()
	}
	defer log.Sync()

	a := app.New(cfg, log)
	defer a.Close()

	srv := service.NewServer(cfg.HTTP.Addr, a.Router(), log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			log.Error("HTTP server stopped", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown failed", zap.Error(err))
	}
}
