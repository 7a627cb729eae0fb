package main

import (
	"context"
	"errors"
	"os"

	"finora/internal/amqp"
	"finora/internal/cli"
	flog "finora/internal/log"
	"finora/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(flog.ComponentWorker)
	logger.Info("Starting forecast-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the forecast worker")
		os.Exit(1)
	}

	provider, res, err := cli.OpenBackend(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to open backend", flog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer provider.Close()

	engine, err := cli.NewEngine(cfg, res, nil, logger)
	if err != nil {
		logger.Error("Failed to build forecast engine", flog.FieldError, err)
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", flog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	forecastWorker := worker.NewForecastWorker(engine, logger.Slog())

	ctx, stop, done := cli.GracefulShutdown(logger.Slog(), cfg.ShutdownTimeout, nil)
	defer stop()

	logger.Info("Consuming forecast requests", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	if err := amqpClient.Run(ctx, forecastWorker.Handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", flog.FieldError, err)
		stop()
		<-done
		return
	}

	<-done
	logger.Info("Forecast worker stopped")
}
