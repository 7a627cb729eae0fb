package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"finora/internal/cli"
	apphttp "finora/internal/http"
	flog "finora/internal/log"
)

func main() {
	cfg, logger := cli.Bootstrap(flog.ComponentApp)
	logger.Info("Starting finora-api")

	provider, res, err := cli.OpenBackend(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to open backend", flog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine, err := cli.NewEngine(cfg, res, reg, logger)
	if err != nil {
		logger.Error("Failed to build forecast engine", flog.FieldError, err)
		_ = provider.Close()
		os.Exit(1)
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr:              ":" + cfg.Port,
		Forecaster:        engine,
		Ready:             provider.Ready,
		Gatherer:          reg,
		Registerer:        reg,
		Logger:            logger,
		RequestsPerMinute: cfg.RateLimitPerMinute,
	})

	ctx, stop, done := cli.GracefulShutdown(logger.Slog(), cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", flog.FieldError, err)
		}
		if err := provider.Close(); err != nil {
			logger.Error("Backend close error", flog.FieldError, err)
		}
	})

	logger.Info("Starting HTTP server", "port", cfg.Port, "backend", cfg.DataBackend, "forecast_cache", cfg.ForecastCache)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", flog.FieldError, err, "port", cfg.Port)
		stop()
		<-done
		os.Exit(1)
	}

	<-ctx.Done()
	<-done
	logger.Info("Server stopped gracefully")
}
