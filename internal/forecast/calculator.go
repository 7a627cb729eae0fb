package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"finora/internal/core"
	"finora/internal/ledger"
	flog "finora/internal/log"
)

// MonthComponents are the ledger-derived buckets of one month at a cutoff.
type MonthComponents struct {
	RealizedExpensesCts   int64
	RealizedIncomesCts    int64
	FixedRemainingCts     int64
	RecurringRemainingCts int64
}

// Calculator sums a month's ledgers around a cutoff day.
type Calculator struct {
	store   ledger.Store
	sources ledger.Sources
	logger  *slog.Logger
	metrics *Metrics
}

func NewCalculator(store ledger.Store, sources ledger.Sources, logger *slog.Logger, metrics *Metrics) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{store: store, sources: sources, logger: logger, metrics: metrics}
}

// EffectiveCutoff clamps cutoff to [0, 31]. A cutoff on or past the month's
// last day becomes 31 so that every schedule is realized, including those
// targeting days the month does not have.
func EffectiveCutoff(month core.MonthKey, cutoff int) int {
	if cutoff < 0 {
		return 0
	}
	if cutoff >= month.DaysIn() {
		return core.MaxDayOfMonth
	}
	return cutoff
}

// Compute issues the six independent sums concurrently and joins them.
func (c *Calculator) Compute(ctx context.Context, month core.MonthKey, cutoff int) (MonthComponents, error) {
	cutoff = EffectiveCutoff(month, cutoff)

	var (
		varExp, varInc             int64
		fixedRealized, fixedRemain int64
		recurRealized, recurRemain int64
	)
	byMonth := func(ctx context.Context, a string) (int64, error) {
		return c.store.SumByMonth(ctx, a, month)
	}
	scheduled := func(part ledger.Partition) sumFunc {
		return func(ctx context.Context, a string) (int64, error) {
			return c.store.SumScheduled(ctx, a, month, cutoff, part)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	jobs := []struct {
		src ledger.Source
		fn  sumFunc
		out *int64
	}{
		{c.sources.Expenses, byMonth, &varExp},
		{c.sources.Incomes, byMonth, &varInc},
		{c.sources.Fixed, scheduled(ledger.Realized), &fixedRealized},
		{c.sources.Fixed, scheduled(ledger.Remaining), &fixedRemain},
		{c.sources.Recurring, scheduled(ledger.Realized), &recurRealized},
		{c.sources.Recurring, scheduled(ledger.Remaining), &recurRemain},
	}
	for _, j := range jobs {
		g.Go(func() error {
			v, err := c.sumAcross(gctx, j.src, j.fn)
			if err != nil {
				return err
			}
			*j.out = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return MonthComponents{}, err
	}
	if err := ctx.Err(); err != nil {
		return MonthComponents{}, err
	}

	return MonthComponents{
		RealizedExpensesCts:   varExp + fixedRealized,
		RealizedIncomesCts:    varInc + recurRealized,
		FixedRemainingCts:     fixedRemain,
		RecurringRemainingCts: recurRemain,
	}, nil
}

type sumFunc func(ctx context.Context, alias string) (int64, error)

// sumAcross adds up every alias of src. A missing alias counts as zero, a
// failing legacy alias counts as zero, a failing primary alias fails the sum.
func (c *Calculator) sumAcross(ctx context.Context, src ledger.Source, fn sumFunc) (int64, error) {
	var total int64
	for i, alias := range src.Aliases {
		v, err := fn(ctx, alias)
		switch {
		case err == nil:
			total += v
		case errors.Is(err, ledger.ErrSourceNotFound):
			c.logger.DebugContext(ctx, "Ledger source not found, counting as zero",
				flog.FieldLedger, string(src.Kind), flog.FieldAlias, alias)
		case isContextErr(err):
			return 0, err
		case ctx.Err() != nil:
			// Drivers such as lib/pq report cancellation with their own error.
			return 0, ctx.Err()
		case i == 0:
			return 0, fmt.Errorf("%w: %s source %q: %w", ErrLedgerUnavailable, src.Kind, alias, err)
		default:
			c.logger.WarnContext(ctx, "Legacy ledger source failed, counting as zero",
				flog.FieldLedger, string(src.Kind), flog.FieldAlias, alias, flog.FieldError, err)
			c.metrics.fallback(string(src.Kind), alias)
		}
	}
	return total, nil
}
