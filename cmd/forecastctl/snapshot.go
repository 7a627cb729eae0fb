package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"finora/internal/cli"
	"finora/internal/core"
	"finora/internal/events/kafka"
	"finora/internal/snapshot"
)

var flagSnapshotMonth string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Compute and store the month-end forecast for one month",
	Long:  "Runs the snapshot job once. Without --month it snapshots the previous (closed) month.",
	RunE:  runSnapshot,
}

func init() {
	snapshotCmd.Flags().StringVar(&flagSnapshotMonth, "month", "", "Month to snapshot (YYYY-MM, default previous month)")
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	provider, res, err := cli.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer provider.Close()

	engine, err := cli.NewEngine(cfg, res, nil, logger)
	if err != nil {
		return err
	}

	opts := snapshot.Options{Logger: logger.Slog()}
	if inv, ok := res.Cache.(snapshot.Invalidator); ok {
		opts.Invalidator = inv
	}
	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer publisher.Close()
		opts.Publisher = publisher
	}

	job, err := snapshot.NewJob(engine, res.Writer, opts)
	if err != nil {
		return err
	}

	var saved core.SavedForecast
	if flagSnapshotMonth == "" {
		saved, err = job.RunClosedMonth(ctx)
	} else {
		month, parseErr := core.ParseMonthKey(flagSnapshotMonth)
		if parseErr != nil {
			return parseErr
		}
		saved, err = job.Run(ctx, month)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(saved)
}
