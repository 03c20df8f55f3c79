// Command server runs the salesrecon HTTP API and dashboard.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/salesrecon/internal/config"
	"github.com/JonMunkholm/salesrecon/internal/core"
	"github.com/JonMunkholm/salesrecon/internal/logging"
	"github.com/JonMunkholm/salesrecon/internal/metrics"
	"github.com/JonMunkholm/salesrecon/internal/web"
)

func main() {
	// A .env file, when present, wins over the inherited environment.
	envLoaded := godotenv.Overload() == nil

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "dotenv", envLoaded, "config", cfg.String())

	if err := run(cfg); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func run(cfg *config.Config) error {
	limiter := core.NewRunLimiter(cfg.Pipeline.MaxConcurrent, cfg.Pipeline.MaxWaitTime)
	collector := metrics.New(func() float64 { return float64(limiter.Active()) })
	service := core.NewService(core.Options{
		Fields:         cfg.Pipeline.Fields(),
		EnumerationCap: cfg.Pipeline.EnumerationCap,
		Observer:       collector,
	})
	slog.Info("pipeline ready",
		"rules", len(core.RuleCatalog()),
		"max_concurrent_runs", cfg.Pipeline.MaxConcurrent,
	)

	server := web.NewServer(web.Options{
		Service: service,
		Config:  cfg,
		Limiter: limiter,
		Metrics: collector.Handler(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down", "active_runs", limiter.Status().Active)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
