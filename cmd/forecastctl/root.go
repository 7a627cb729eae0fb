package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"finora/internal/cli"
	"finora/internal/config"
	flog "finora/internal/log"
)

var (
	flagEnvFile string
	flagQuiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "forecastctl",
	Short: "Finora forecast tooling",
	Long:  "Compute monthly balance projections, store month-end snapshots and manage the ledger schema.",

	SilenceUsage: true,
}

// Execute is the main entry point called from main.go.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "Optional dotenv file loaded before the configuration")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Only log errors")
}

// loadConfig is the configuration path shared by every subcommand.
func loadConfig() (*config.Config, *flog.Logger, error) {
	if flagEnvFile != "" {
		cli.LoadEnvFileFrom(flagEnvFile)
	}
	cfg, err := cli.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	lcfg := flog.DefaultConfig()
	lcfg.Level = flog.ParseLevel(cfg.LogLevel)
	if flagQuiet {
		lcfg.Level = flog.ParseLevel("error")
	}
	lcfg.Format = cfg.LogFormat
	lcfg.Output = os.Stderr
	return cfg, flog.New(lcfg), nil
}
