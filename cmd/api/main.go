package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lectern-ai/lectern/internal/app"
	"github.com/lectern-ai/lectern/internal/config"
	"github.com/lectern-ai/lectern/internal/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT/SIGTERM for graceful shutdown.
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c
		cancel()
	}()

	cfg := config.LoadConfig()

	zl, err := logger.New(logger.Options{
		Level:       cfg.LogLevel,
		Development: cfg.Env == "development",
		FilePath:    os.Getenv("LOG_FILE"),
	})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	application, err := app.NewApp(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("startup failed", zap.Error(err))
	}
	defer application.Close()

	// Ingestion workers drain the queue in the background. Shutdown waits on
	// ingestorDone so workers finish their bookkeeping before Close tears
	// down the connection pool.
	ingestorDone := make(chan struct{})
	go func() {
		defer close(ingestorDone)
		if err := application.Ingestor.Run(ctx); err != nil {
			zl.Error("ingestor stopped", zap.Error(err))
		}
	}()

	go func() {
		if err := application.Server.Start(); err != nil {
			zl.Error("server stopped", zap.Error(err))
			cancel()
		}
	}()

	zl.Info("lectern is running")
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := application.Server.Shutdown(shutdownCtx); err != nil {
		zl.Error("shutdown error", zap.Error(err))
	}
	<-ingestorDone
}
