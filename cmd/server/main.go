package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hie-gateway/internal/app"
	"hie-gateway/internal/platform/config"
	"hie-gateway/internal/platform/logger"
)

const shutdownTimeout = 15 * time.Second

// main wires configuration into the app and owns the process lifecycle.
// Everything else lives in internal packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	log.Info("initializing hie-gateway",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"postgres", cfg.Database.URL != "",
		"redis", cfg.Redis.URL != "",
		"kafka", cfg.Kafka.Brokers != "",
		"auto_approve_consent", cfg.AutoApprove,
		"auto_create_subject", cfg.AutoCreateSubject,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gateway, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to build gateway", "error", err)
		os.Exit(1)
	}
	gateway.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           gateway.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("shutting down gracefully")
	case err := <-serveErr:
		log.Error("server error", "error", err)
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		exitCode = 1
	}
	if err := gateway.Close(); err != nil {
		log.Error("failed to release resources", "error", err)
		exitCode = 1
	}

	log.Info("server stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
