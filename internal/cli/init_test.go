package cli

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finora/internal/core"
	flog "finora/internal/log"
)

func quietLogger() *flog.Logger {
	cfg := flog.DefaultConfig()
	cfg.Output = io.Discard
	return flog.New(cfg)
}

func TestLoadConfigRejectsInvalidEnv(t *testing.T) {
	t.Setenv("FINORA_CONFIG_FILE", "")
	t.Setenv("DATA_BACKEND", "mongodb")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid data backend 'mongodb'")
}

func TestOpenBackendAndEngine(t *testing.T) {
	t.Setenv("FINORA_CONFIG_FILE", "")
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("FORECAST_CACHE", "store")
	cfg, err := LoadConfig()
	require.NoError(t, err)

	ctx := context.Background()
	logger := quietLogger()
	provider, res, err := OpenBackend(ctx, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Close() })
	require.NoError(t, provider.Ready(ctx))

	reg := prometheus.NewRegistry()
	engine, err := NewEngine(cfg, res, reg, logger)
	require.NoError(t, err)

	res2, err := engine.Calculate(ctx, core.ForecastRequest{Month: "2024-03", NowISO: "2024-03-15"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res2.ProjectedBalanceCts)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestGracefulShutdownOnStop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cleaned := make(chan struct{})
	ctx, stop, done := GracefulShutdown(logger, time.Second, func(context.Context) { close(cleaned) })

	stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}
	assert.Error(t, ctx.Err())
	select {
	case <-cleaned:
	default:
		t.Fatal("cleanup did not run")
	}
}
