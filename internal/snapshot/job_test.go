package snapshot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finora/internal/core"
	"finora/internal/forecast"
	"finora/internal/ledger/memory"
)

type recordingPublisher struct {
	events []core.SavedForecast
	err    error
}

func (p *recordingPublisher) PublishForecastSnapshotted(_ context.Context, f core.SavedForecast) error {
	p.events = append(p.events, f)
	return p.err
}

type recordingInvalidator struct{ months []core.MonthKey }

func (i *recordingInvalidator) Invalidate(m core.MonthKey) { i.months = append(i.months, m) }

var april2 = time.Date(2024, 4, 2, 0, 5, 0, 0, time.UTC)

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New("expenses", "incomes", "fixed_expenses", "recurring_incomes")
	march := func(day int) time.Time { return time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, s.AddEntry("incomes", core.NewLedgerEntry(march(1), "salary", 300000)))
	require.NoError(t, s.AddEntry("expenses", core.NewLedgerEntry(march(3), "groceries", 12000)))
	require.NoError(t, s.AddSchedule("fixed_expenses", core.RecurringSchedule{
		Label: "rent", AmountCts: 90000, DayOfMonth: 31, StartDate: march(1),
	}))
	return s
}

func newJob(t *testing.T, s *memory.Store, opts Options) *Job {
	t.Helper()
	engine, err := forecast.NewEngine(s, s, forecast.DefaultOptions())
	require.NoError(t, err)
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return april2 }
	}
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	j, err := NewJob(engine, s, opts)
	require.NoError(t, err)
	return j
}

func TestRunStoresMonthEndForecast(t *testing.T) {
	s := seededStore(t)
	pub := &recordingPublisher{}
	inv := &recordingInvalidator{}
	j := newJob(t, s, Options{Publisher: pub, Invalidator: inv})

	saved, err := j.Run(context.Background(), core.MustMonthKey("2024-03"))
	require.NoError(t, err)

	// Everything scheduled in March is realized at month end.
	assert.Equal(t, int64(300000-12000-90000), saved.ProjectedBalanceCts)
	assert.Equal(t, int64(0), saved.Components.FixedRemainingCts)
	assert.Equal(t, int64(0), saved.Components.ExtrasExpenseCts)
	assert.True(t, saved.ComputedAt.Equal(april2))

	got, ok, err := s.Lookup(context.Background(), core.MustMonthKey("2024-03"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, saved.ProjectedBalanceCts, got.ProjectedBalanceCts)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "2024-03", pub.events[0].Month.String())
	assert.Equal(t, []core.MonthKey{core.MustMonthKey("2024-03")}, inv.months)
}

func TestSnapshotBecomesNextMonthBaseline(t *testing.T) {
	s := seededStore(t)
	j := newJob(t, s, Options{})
	saved, err := j.RunClosedMonth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-03", saved.Month.String())

	engine, err := forecast.NewEngine(s, s, forecast.DefaultOptions())
	require.NoError(t, err)
	res, err := engine.Calculate(context.Background(), core.ForecastRequest{Month: "2024-04", NowISO: "2024-04-02"})
	require.NoError(t, err)
	assert.Equal(t, saved.ProjectedBalanceCts, res.Components.BudgetBaseCts)
}

func TestPublishFailureDoesNotFailRun(t *testing.T) {
	s := seededStore(t)
	pub := &recordingPublisher{err: errors.New("broker down")}
	j := newJob(t, s, Options{Publisher: pub})

	_, err := j.Run(context.Background(), core.MustMonthKey("2024-03"))
	require.NoError(t, err)
	_, ok, err := s.Lookup(context.Background(), core.MustMonthKey("2024-03"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunFailuresStoreNothing(t *testing.T) {
	t.Run("zero month", func(t *testing.T) {
		j := newJob(t, seededStore(t), Options{})
		_, err := j.Run(context.Background(), core.MonthKey{})
		assert.ErrorIs(t, err, core.ErrInvalidMonthKey)
	})

	t.Run("primary ledger down", func(t *testing.T) {
		s := seededStore(t)
		s.FailAlias("expenses", errors.New("disk I/O error"))
		pub := &recordingPublisher{}
		j := newJob(t, s, Options{Publisher: pub})

		_, err := j.Run(context.Background(), core.MustMonthKey("2024-03"))
		require.ErrorIs(t, err, forecast.ErrLedgerUnavailable)
		_, ok, lerr := s.Lookup(context.Background(), core.MustMonthKey("2024-03"))
		require.NoError(t, lerr)
		assert.False(t, ok)
		assert.Empty(t, pub.events)
	})
}

func TestNewJobRequiresCollaborators(t *testing.T) {
	_, err := NewJob(nil, memory.New(), Options{})
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	j := newJob(t, seededStore(t), Options{})
	ctx := context.Background()

	require.NoError(t, j.Stop(ctx), "stop before start is a no-op")
	assert.Error(t, j.Start(ctx, "not a schedule"))

	require.NoError(t, j.Start(ctx, "5 0 1 * *"))
	assert.Error(t, j.Start(ctx, "5 0 1 * *"))
	require.NoError(t, j.Stop(ctx))
	require.NoError(t, j.Start(ctx, "@monthly"))
	require.NoError(t, j.Stop(ctx))
}
