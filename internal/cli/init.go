// Package cli provides the startup steps shared by every binary: env and
// config loading, logging, backend and engine wiring, and graceful shutdown.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"finora/internal/backend"
	"finora/internal/config"
	"finora/internal/forecast"
	flog "finora/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadEnvFileFrom loads path if it exists. Variables already set in the
// environment are kept.
func LoadEnvFileFrom(path string) {
	_ = godotenv.Load(path)
}

// LoadConfig loads and validates the configuration.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Bootstrap loads .env and the configuration, then installs the default
// logger for component. It exits the process when the configuration is
// invalid.
func Bootstrap(component string) (*config.Config, *flog.Logger) {
	LoadEnvFile()
	cfg, err := LoadConfig()
	if err != nil {
		logger := flog.Setup("info", "text", component)
		logger.Error("Configuration validation failed", flog.FieldError, err)
		os.Exit(1)
	}
	return cfg, flog.Setup(cfg.LogLevel, cfg.LogFormat, component)
}

// OpenBackend opens the configured ledger backend. The caller owns the
// returned provider and must Close it on shutdown.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *flog.Logger) (*backend.Provider, *backend.Resources, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	provider := backend.NewProvider(bcfg, logger.WithComponent(flog.ComponentBackend).Slog())
	res, err := provider.Open(ctx)
	if err != nil {
		_ = provider.Close()
		return nil, nil, err
	}
	return provider, res, nil
}

// NewEngine builds the forecast engine from cfg over res. A nil reg leaves
// the engine uninstrumented.
func NewEngine(cfg *config.Config, res *backend.Resources, reg prometheus.Registerer, logger *flog.Logger) (*forecast.Engine, error) {
	opts := forecast.DefaultOptions()
	opts.Sources = cfg.Sources()
	opts.BaselineDepth = cfg.BaselineDepth
	opts.Timeout = cfg.ForecastTimeout
	opts.Logger = logger.WithComponent(flog.ComponentForecast).Slog()
	if reg != nil {
		opts.Metrics = forecast.NewMetrics(reg)
	}
	engine, err := forecast.NewEngine(res.Store, res.Cache, opts)
	if err != nil {
		return nil, fmt.Errorf("build forecast engine: %w", err)
	}
	return engine, nil
}

// GracefulShutdown returns a context cancelled on SIGINT, SIGTERM or a call
// to stop. Cleanup then runs with a context bounded by timeout, and the
// returned channel closes when cleanup is done.
func GracefulShutdown(logger *slog.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (ctx context.Context, stop context.CancelFunc, done <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(finished)
	}()

	return ctx, cancel, finished
}
