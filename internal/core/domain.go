package core

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ExtraExpense ExtraType = "expense"
	ExtraIncome  ExtraType = "income"
)

type (
	ExtraType string

	Money struct {
		Cents int64
	}

	// LedgerEntry is a one-off expense or income.
	LedgerEntry struct {
		ID         int64
		Date       time.Time
		MonthKey   MonthKey // always MonthKeyOf(Date)
		Label      string
		AmountCts  int64
		CategoryID *int64 // expenses only
		Notes      string
		CreatedAt  time.Time
		UpdatedAt  time.Time
	}

	// RecurringSchedule is a fixed expense or recurring income that falls on
	// DayOfMonth of every month between StartDate and EndDate.
	RecurringSchedule struct {
		ID         int64
		Label      string
		AmountCts  int64
		DayOfMonth int
		StartDate  time.Time
		EndDate    *time.Time // nil = open ended
		Notes      string
		CreatedAt  time.Time
		UpdatedAt  time.Time
	}

	// SavedForecast is a persisted forecast for a month, written by the
	// snapshot job and read back as a baseline.
	SavedForecast struct {
		Month               MonthKey   `json:"monthKey"`
		ProjectedBalanceCts int64      `json:"projectedBalanceCts"`
		Components          Components `json:"components"`
		ComputedAt          time.Time  `json:"computedAt"`
	}

	// Extra is a caller-supplied hypothetical adjustment.
	Extra struct {
		Type      ExtraType `json:"type"`
		AmountCts int64     `json:"amountCts"`
	}

	ForecastRequest struct {
		Month  string  `json:"month"`
		NowISO string  `json:"nowISO,omitempty"`
		Extras []Extra `json:"extras,omitempty"`
	}

	Components struct {
		BudgetBaseCts         int64 `json:"budgetBaseCts"`
		RealizedExpensesCts   int64 `json:"realizedExpensesCts"`
		RealizedIncomesCts    int64 `json:"realizedIncomesCts"`
		FixedRemainingCts     int64 `json:"fixedRemainingCts"`
		RecurringRemainingCts int64 `json:"recurringRemainingCts"`
		ExtrasExpenseCts      int64 `json:"extrasExpenseCts"`
		ExtrasIncomeCts       int64 `json:"extrasIncomeCts"`
	}

	ForecastResult struct {
		Month               MonthKey   `json:"month"`
		ProjectedBalanceCts int64      `json:"projectedBalanceCts"`
		Components          Components `json:"components"`
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidDayOfMonth = errors.New("invalid day of month")
	ErrEmptyLabel        = errors.New("empty label")
	ErrZeroDate          = errors.New("date cannot be zero")
	ErrMonthKeyMismatch  = errors.New("month key does not match date")
)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// NewLedgerEntry builds an entry whose MonthKey is derived from date.
func NewLedgerEntry(date time.Time, label string, amountCts int64) LedgerEntry {
	return LedgerEntry{
		Date:      date.UTC(),
		MonthKey:  MonthKeyOf(date),
		Label:     label,
		AmountCts: amountCts,
	}
}

func (e LedgerEntry) Validate() error {
	if e.Date.IsZero() {
		return ErrZeroDate
	}
	if e.MonthKey != MonthKeyOf(e.Date) {
		return ErrMonthKeyMismatch
	}
	if strings.TrimSpace(e.Label) == "" {
		return ErrEmptyLabel
	}
	if len(e.Label) > 200 {
		return errors.New("label too long (max 200 characters)")
	}
	return Money{Cents: e.AmountCts}.Validate()
}

// ActiveIn reports whether the schedule has at least one day in common with m.
func (s RecurringSchedule) ActiveIn(m MonthKey) bool {
	if s.StartDate.After(m.LastDay()) {
		return false
	}
	return s.EndDate == nil || !s.EndDate.Before(m.FirstDay())
}

func (s RecurringSchedule) Validate() error {
	if s.StartDate.IsZero() {
		return errors.New("invalid start date: " + ErrZeroDate.Error())
	}
	if s.EndDate != nil && s.EndDate.Before(s.StartDate) {
		return errors.New("end date must not be before start date")
	}
	if s.DayOfMonth < 1 || s.DayOfMonth > MaxDayOfMonth {
		return ErrInvalidDayOfMonth
	}
	if strings.TrimSpace(s.Label) == "" {
		return ErrEmptyLabel
	}
	if len(s.Label) > 200 {
		return errors.New("label too long (max 200 characters)")
	}
	return Money{Cents: s.AmountCts}.Validate()
}

// UnmarshalJSON decodes an extra leniently: a field of the wrong JSON type
// is left at its zero value instead of failing the whole request.
func (e *Extra) UnmarshalJSON(data []byte) error {
	*e = Extra{}
	var raw struct {
		Type      json.RawMessage `json:"type"`
		AmountCts json.RawMessage `json:"amountCts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	var typ string
	if json.Unmarshal(raw.Type, &typ) == nil {
		e.Type = ExtraType(typ)
	}
	if amount, ok := integralCents(raw.AmountCts); ok {
		e.AmountCts = amount
	}
	return nil
}

// integralCents accepts any JSON number with an integral value that fits in
// int64, so 2000, 2000.0 and 2e3 all decode to 2000.
func integralCents(raw json.RawMessage) (int64, bool) {
	var num json.Number
	if len(raw) == 0 || raw[0] == '"' || json.Unmarshal(raw, &num) != nil {
		return 0, false
	}
	if v, err := num.Int64(); err == nil {
		return v, true
	}
	d, err := decimal.NewFromString(num.String())
	if err != nil || !d.IsInteger() || d.LessThan(minCents) || d.GreaterThan(maxCents) {
		return 0, false
	}
	return d.IntPart(), true
}

var (
	minCents = decimal.NewFromInt(math.MinInt64)
	maxCents = decimal.NewFromInt(math.MaxInt64)
)
