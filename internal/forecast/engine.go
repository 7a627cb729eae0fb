// Package forecast projects a month's end balance from realized ledger
// activity, scheduled amounts still to come, caller-supplied extras and the
// balance carried over from the previous month.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finora/internal/core"
	"finora/internal/ledger"
	flog "finora/internal/log"
)

// Options tune an Engine.
type Options struct {
	Sources       ledger.Sources
	BaselineDepth int
	// Timeout bounds one Calculate call. Zero means no extra bound.
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *Metrics
	// Clock supplies "now" when a request omits nowISO.
	Clock func() time.Time
}

// DefaultOptions returns the default ledger aliases and a one month baseline.
func DefaultOptions() Options {
	return Options{
		Sources:       ledger.DefaultSources(),
		BaselineDepth: DefaultBaselineDepth,
	}
}

// Engine computes forecasts. It only reads; it never writes a forecast back.
type Engine struct {
	calc     *Calculator
	baseline *BaselineResolver
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *Metrics
	clock    func() time.Time
}

// NewEngine wires an engine over store and an optional cache.
func NewEngine(store ledger.Store, cache ledger.ForecastCache, opts Options) (*Engine, error) {
	if store == nil {
		return nil, errors.New("forecast: nil ledger store")
	}
	if err := opts.Sources.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With(flog.FieldComponent, flog.ComponentForecast)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	calc := NewCalculator(store, opts.Sources, opts.Logger, opts.Metrics)
	return &Engine{
		calc:     calc,
		baseline: NewBaselineResolver(cache, calc, opts.BaselineDepth, opts.Logger),
		timeout:  opts.Timeout,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		clock:    opts.Clock,
	}, nil
}

// Calculate validates req and returns the projected balance with its full
// breakdown. On error the result is always the zero value.
func (e *Engine) Calculate(ctx context.Context, req core.ForecastRequest) (res core.ForecastResult, err error) {
	start := time.Now()
	defer func() {
		e.metrics.observe(outcomeOf(err), time.Since(start))
	}()

	month, err := core.ParseMonthKey(req.Month)
	if err != nil {
		return core.ForecastResult{}, fmt.Errorf("%w: month %q: %w", ErrInvalidRequest, req.Month, err)
	}
	now := e.clock().UTC()
	if req.NowISO != "" {
		if now, err = core.ParseInstant(req.NowISO); err != nil {
			return core.ForecastResult{}, fmt.Errorf("%w: nowISO %q: %w", ErrInvalidRequest, req.NowISO, err)
		}
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	base, origin, err := e.baseline.Resolve(ctx, month)
	if err != nil {
		return core.ForecastResult{}, fmt.Errorf("resolve baseline: %w", err)
	}
	e.metrics.baseline(origin)

	cutoff := now.Day()
	comp, err := e.calc.Compute(ctx, month, cutoff)
	if err != nil {
		return core.ForecastResult{}, fmt.Errorf("compute %s: %w", month, err)
	}

	if err := ctx.Err(); err != nil {
		return core.ForecastResult{}, err
	}

	extrasExp, extrasInc := SumExtras(req.Extras)
	res = Project(month, base, comp, extrasExp, extrasInc)

	e.logger.DebugContext(ctx, "Forecast computed",
		flog.FieldMonth, month.String(),
		flog.FieldCutoffDay, cutoff,
		flog.FieldOrigin, string(origin),
		flog.FieldBaseline, base,
		flog.FieldProjected, res.ProjectedBalanceCts)
	return res, nil
}

// SumExtras splits extras into expense and income totals. Unknown types
// contribute nothing.
func SumExtras(extras []core.Extra) (expenseCts, incomeCts int64) {
	for _, x := range extras {
		switch x.Type {
		case core.ExtraExpense:
			expenseCts += x.AmountCts
		case core.ExtraIncome:
			incomeCts += x.AmountCts
		}
	}
	return expenseCts, incomeCts
}

// Project combines the parts into a result.
func Project(month core.MonthKey, baseCts int64, comp MonthComponents, extrasExpenseCts, extrasIncomeCts int64) core.ForecastResult {
	projected := baseCts +
		(comp.RealizedIncomesCts - comp.RealizedExpensesCts) +
		(comp.RecurringRemainingCts + extrasIncomeCts) -
		(comp.FixedRemainingCts + extrasExpenseCts)
	return core.ForecastResult{
		Month:               month,
		ProjectedBalanceCts: projected,
		Components: core.Components{
			BudgetBaseCts:         baseCts,
			RealizedExpensesCts:   comp.RealizedExpensesCts,
			RealizedIncomesCts:    comp.RealizedIncomesCts,
			FixedRemainingCts:     comp.FixedRemainingCts,
			RecurringRemainingCts: comp.RecurringRemainingCts,
			ExtrasExpenseCts:      extrasExpenseCts,
			ExtrasIncomeCts:       extrasIncomeCts,
		},
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrInvalidRequest):
		return OutcomeInvalid
	case isContextErr(err):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}
