// Package snapshot stores end-of-month forecasts so later months can use
// them as their starting balance.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"finora/internal/core"
	"finora/internal/ledger"
	flog "finora/internal/log"
)

// Forecaster computes one forecast. *forecast.Engine satisfies it.
type Forecaster interface {
	Calculate(ctx context.Context, req core.ForecastRequest) (core.ForecastResult, error)
}

// Publisher announces stored forecasts.
type Publisher interface {
	PublishForecastSnapshotted(ctx context.Context, f core.SavedForecast) error
}

// Invalidator drops a month from a read-through forecast cache.
type Invalidator interface {
	Invalidate(month core.MonthKey)
}

// Options holds the optional collaborators of a Job.
type Options struct {
	Publisher   Publisher
	Invalidator Invalidator
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Job computes a closed month's forecast as of its last day, with no extras,
// and persists it.
type Job struct {
	engine      Forecaster
	writer      ledger.ForecastWriter
	publisher   Publisher
	invalidator Invalidator
	logger      *slog.Logger
	clock       func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewJob(engine Forecaster, writer ledger.ForecastWriter, opts Options) (*Job, error) {
	if engine == nil || writer == nil {
		return nil, errors.New("snapshot: engine and writer are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Job{
		engine:      engine,
		writer:      writer,
		publisher:   opts.Publisher,
		invalidator: opts.Invalidator,
		logger:      opts.Logger.With(flog.FieldComponent, flog.ComponentSnapshot),
		clock:       opts.Clock,
	}, nil
}

// Run snapshots month. The forecast is computed with the cutoff on the last
// day of month, so every scheduled amount counts as realized. A publish
// failure is logged but does not fail the run.
func (j *Job) Run(ctx context.Context, month core.MonthKey) (core.SavedForecast, error) {
	if month.IsZero() {
		return core.SavedForecast{}, core.ErrInvalidMonthKey
	}

	res, err := j.engine.Calculate(ctx, core.ForecastRequest{
		Month:  month.String(),
		NowISO: month.LastDay().Format(core.DateLayout),
	})
	if err != nil {
		return core.SavedForecast{}, fmt.Errorf("calculate %s: %w", month, err)
	}

	saved := core.SavedForecast{
		Month:               res.Month,
		ProjectedBalanceCts: res.ProjectedBalanceCts,
		Components:          res.Components,
		ComputedAt:          j.clock().UTC(),
	}
	if err := j.writer.SaveForecast(ctx, saved); err != nil {
		return core.SavedForecast{}, fmt.Errorf("save %s: %w", month, err)
	}
	if j.invalidator != nil {
		j.invalidator.Invalidate(month)
	}

	j.logger.InfoContext(ctx, "Forecast snapshot stored",
		flog.FieldMonth, month.String(),
		flog.FieldProjected, saved.ProjectedBalanceCts,
		flog.FieldBaseline, saved.Components.BudgetBaseCts,
		flog.FieldOperation, flog.OpSnapshot)

	if j.publisher != nil {
		if err := j.publisher.PublishForecastSnapshotted(ctx, saved); err != nil {
			j.logger.WarnContext(ctx, "Failed to publish snapshot event",
				flog.FieldMonth, month.String(),
				flog.FieldError, err,
				flog.FieldOperation, flog.OpPublish)
		}
	}
	return saved, nil
}

// RunClosedMonth snapshots the month before the current one.
func (j *Job) RunClosedMonth(ctx context.Context) (core.SavedForecast, error) {
	return j.Run(ctx, core.MonthKeyOf(j.clock()).Prev())
}

// Start runs RunClosedMonth on the standard cron spec until Stop.
func (j *Job) Start(ctx context.Context, spec string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return errors.New("snapshot job is already running")
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(spec, func() {
		if _, err := j.RunClosedMonth(ctx); err != nil {
			j.logger.ErrorContext(ctx, "Scheduled snapshot failed", flog.FieldError, err)
		}
	}); err != nil {
		return fmt.Errorf("invalid snapshot schedule %q: %w", spec, err)
	}
	c.Start()
	j.cron, j.running = c, true

	j.logger.InfoContext(ctx, "Snapshot job scheduled", "schedule", spec)
	return nil
}

// Stop halts scheduling and waits for a running snapshot to finish or ctx
// to end.
func (j *Job) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return nil
	}
	c := j.cron
	j.cron, j.running = nil, false
	j.mu.Unlock()

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
