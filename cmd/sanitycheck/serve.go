package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sanitycheck/internal/core"
	"github.com/JonMunkholm/sanitycheck/internal/service"
	"github.com/JonMunkholm/sanitycheck/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API. Settings come from the environment (SERVER_*,
SANITY_*, DATABASE_URL, LOG_*); see the README for the full list.

SIGINT or SIGTERM stops accepting requests and waits for running checks
up to SERVER_SHUTDOWN_TIMEOUT.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd.Context())
		},
	}
}

func (a *app) runServe(ctx context.Context) error {
	cfg := a.cfg
	slog.Info("configuration loaded",
		"addr", cfg.Server.Addr(),
		"storage", cfg.Database.Enabled(),
		"max_concurrent", cfg.Checker.MaxConcurrent,
		"rate_limit", cfg.Server.RateLimit,
	)

	reg, err := a.registry()
	if err != nil {
		return err
	}
	slog.Info("columns registered", "count", reg.Len(), "source", columnSource(cfg.Checker.ColumnsPath))

	opts, err := service.OptionsFromConfig(cfg.Checker)
	if err != nil {
		return err
	}

	var st service.ResultStore
	if cfg.Database.Enabled() {
		s, closeStore, err := openStore(ctx, a)
		if err != nil {
			return err
		}
		defer closeStore()
		st = s
		slog.Info("connected to database", "name", databaseName(cfg.Database.URL))
	} else {
		slog.Info("result storage disabled, set DATABASE_URL to keep runs")
	}

	limiter := core.NewCheckLimiter(cfg.Checker.MaxConcurrent, cfg.Checker.MaxWaitTime)
	server := web.NewServer(service.New(reg, limiter, st, opts), cfg)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		server.Close()
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Wait for running checks to complete (with timeout)
	if active := limiter.Active(); active > 0 {
		slog.Info("waiting for checks to complete", "active", active)
		if err := limiter.WaitForDrain(shutdownCtx); err != nil {
			slog.Warn("checks did not complete in time", "error", err)
		} else {
			slog.Info("all checks completed")
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

func columnSource(path string) string {
	if path == "" {
		return "standard"
	}
	return path
}

// databaseName returns the database name from a connection URL, for logs
// that must not show credentials.
func databaseName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}
