package forecast

import (
	"context"
	"fmt"
	"log/slog"

	"finora/internal/core"
	"finora/internal/ledger"
	flog "finora/internal/log"
)

// Origin tells where a baseline came from.
type Origin string

const (
	OriginCache     Origin = "cache"
	OriginRecompute Origin = "recompute"
	OriginNone      Origin = "none"
)

// DefaultBaselineDepth is the number of months walked back when no saved
// forecast is found.
const DefaultBaselineDepth = 1

// BaselineResolver derives the balance carried into a month from the month
// before it.
type BaselineResolver struct {
	cache  ledger.ForecastCache
	calc   *Calculator
	depth  int
	logger *slog.Logger
}

// NewBaselineResolver returns a resolver that walks back at most depth
// months. cache may be nil.
func NewBaselineResolver(cache ledger.ForecastCache, calc *Calculator, depth int, logger *slog.Logger) *BaselineResolver {
	if logger == nil {
		logger = slog.Default()
	}
	if depth < 0 {
		depth = 0
	}
	return &BaselineResolver{cache: cache, calc: calc, depth: depth, logger: logger}
}

// Resolve returns budgetBaseCts for month.
func (r *BaselineResolver) Resolve(ctx context.Context, month core.MonthKey) (int64, Origin, error) {
	return r.resolve(ctx, month, r.depth)
}

func (r *BaselineResolver) resolve(ctx context.Context, month core.MonthKey, depth int) (int64, Origin, error) {
	if depth <= 0 {
		return 0, OriginNone, nil
	}
	prev := month.Prev()

	if r.cache != nil {
		saved, ok, err := r.cache.Lookup(ctx, prev)
		switch {
		case err != nil && isContextErr(err):
			return 0, "", err
		case err != nil:
			r.logger.WarnContext(ctx, "Forecast cache lookup failed, recomputing baseline",
				flog.FieldMonth, prev.String(), flog.FieldError, err)
		case ok:
			return saved.ProjectedBalanceCts, OriginCache, nil
		}
	}

	comp, err := r.calc.Compute(ctx, prev, core.MaxDayOfMonth)
	if err != nil {
		return 0, "", fmt.Errorf("recompute baseline for %s: %w", prev, err)
	}
	carried, _, err := r.resolve(ctx, prev, depth-1)
	if err != nil {
		return 0, "", err
	}
	return carried + comp.RealizedIncomesCts - comp.RealizedExpensesCts, OriginRecompute, nil
}
