package main

import (
	"context"
	"os"

	"finora/internal/cli"
	"finora/internal/events/kafka"
	flog "finora/internal/log"
	"finora/internal/snapshot"
)

func main() {
	cfg, logger := cli.Bootstrap(flog.ComponentSnapshot)
	logger.Info("Starting forecast-snapshot")

	provider, res, err := cli.OpenBackend(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to open backend", flog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	engine, err := cli.NewEngine(cfg, res, nil, logger)
	if err != nil {
		logger.Error("Failed to build forecast engine", flog.FieldError, err)
		_ = provider.Close()
		os.Exit(1)
	}

	opts := snapshot.Options{Logger: logger.Slog()}
	if inv, ok := res.Cache.(snapshot.Invalidator); ok {
		opts.Invalidator = inv
	}
	var publisher *kafka.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		opts.Publisher = publisher
		logger.Info("Kafka events enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("Kafka disabled - snapshots will not emit events")
	}

	job, err := snapshot.NewJob(engine, res.Writer, opts)
	if err != nil {
		logger.Error("Failed to create snapshot job", flog.FieldError, err)
		_ = provider.Close()
		os.Exit(1)
	}

	ctx, stop, done := cli.GracefulShutdown(logger.Slog(), cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := job.Stop(ctx); err != nil {
			logger.Warn("Snapshot job stop timed out", flog.FieldError, err)
		}
		if publisher != nil {
			if err := publisher.Close(); err != nil {
				logger.Error("Kafka publisher close error", flog.FieldError, err)
			}
		}
		if err := provider.Close(); err != nil {
			logger.Error("Backend close error", flog.FieldError, err)
		}
	})

	if err := job.Start(ctx, cfg.SnapshotSchedule); err != nil {
		logger.Error("Failed to schedule snapshot job", flog.FieldError, err)
		stop()
		<-done
		os.Exit(1)
	}

	<-ctx.Done()
	<-done
	logger.Info("Snapshot scheduler stopped")
}
