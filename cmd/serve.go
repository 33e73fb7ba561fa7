package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/konecto/actuator-agent/api"
	"github.com/konecto/actuator-agent/internal/app"
	"github.com/konecto/actuator-agent/internal/config"
)

// runServe initializes the application and starts the HTTP API server.
// The server runs until SIGINT or SIGTERM, then shuts down gracefully.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := checkRequiredEnv(cfg); err != nil {
		return err
	}

	addr, err := parseServeAddr(cfg.Addr)
	if err != nil {
		return fmt.Errorf("parsing address: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.Logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	srv := api.NewServer(a.Agent, a.DBPool, a.Exact, a.Logger)

	a.Logger.Info("HTTP server ready",
		"addr", addr,
		"api", "/api/conversation",
		"health", "/health, /ready",
		"version", AppVersion,
	)

	if err := srv.Run(ctx, addr); err != nil {
		return fmt.Errorf("HTTP server: %w", err)
	}
	return nil
}
