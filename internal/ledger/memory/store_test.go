package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"finora/internal/core"
	"finora/internal/ledger"
)

func day(s string) time.Time {
	t, err := core.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestSumByMonth(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, e := range []core.LedgerEntry{
		core.NewLedgerEntry(day("2024-03-01"), "a", 100),
		core.NewLedgerEntry(day("2024-03-31"), "b", 250),
		core.NewLedgerEntry(day("2024-04-01"), "c", 999),
	} {
		if err := s.AddEntry("expenses", e); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	got, err := s.SumByMonth(ctx, "expenses", core.MustMonthKey("2024-03"))
	if err != nil || got != 350 {
		t.Fatalf("got %d err=%v, want 350", got, err)
	}

	_, err = s.SumByMonth(ctx, "missing", core.MustMonthKey("2024-03"))
	if !errors.Is(err, ledger.ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
}

func TestSumScheduledPartitions(t *testing.T) {
	s := New()
	ctx := context.Background()
	end := day("2024-02-28")
	for _, r := range []core.RecurringSchedule{
		{Label: "rent", AmountCts: 50000, DayOfMonth: 5, StartDate: day("2024-01-01")},
		{Label: "gym", AmountCts: 3000, DayOfMonth: 20, StartDate: day("2024-01-01")},
		{Label: "ended", AmountCts: 7, DayOfMonth: 25, StartDate: day("2024-01-01"), EndDate: &end},
		{Label: "future", AmountCts: 9, DayOfMonth: 1, StartDate: day("2024-04-01")},
	} {
		if err := s.AddSchedule("fixed_expenses", r); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	m := core.MustMonthKey("2024-03")
	realized, err := s.SumScheduled(ctx, "fixed_expenses", m, 10, ledger.Realized)
	if err != nil || realized != 50000 {
		t.Fatalf("realized = %d err=%v", realized, err)
	}
	remaining, err := s.SumScheduled(ctx, "fixed_expenses", m, 10, ledger.Remaining)
	if err != nil || remaining != 3000 {
		t.Fatalf("remaining = %d err=%v", remaining, err)
	}
	all, _ := s.SumScheduled(ctx, "fixed_expenses", m, core.MaxDayOfMonth, ledger.Realized)
	if all != realized+remaining {
		t.Fatalf("cutoff 31 should cover whole month: %d", all)
	}
}

func TestFailAliasAndContext(t *testing.T) {
	s := New("incomes")
	boom := errors.New("boom")
	s.FailAlias("incomes", boom)
	if _, err := s.SumByMonth(context.Background(), "incomes", core.MustMonthKey("2024-03")); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	s.FailAlias("incomes", nil)
	if got, err := s.SumByMonth(context.Background(), "incomes", core.MustMonthKey("2024-03")); err != nil || got != 0 {
		t.Fatalf("expected empty alias to sum to 0, got %d err=%v", got, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.SumByMonth(ctx, "incomes", core.MustMonthKey("2024-03")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSaveAndLookupForecast(t *testing.T) {
	s := New()
	ctx := context.Background()
	m := core.MustMonthKey("2024-02")
	if _, ok, _ := s.Lookup(ctx, m); ok {
		t.Fatalf("expected miss")
	}
	if err := s.SaveForecast(ctx, core.SavedForecast{Month: m, ProjectedBalanceCts: 0}); err != nil {
		t.Fatalf("save: %v", err)
	}
	f, ok, err := s.Lookup(ctx, m)
	if err != nil || !ok || f.ProjectedBalanceCts != 0 || f.ComputedAt.IsZero() {
		t.Fatalf("unexpected lookup: %+v ok=%v err=%v", f, ok, err)
	}
	if err := s.SaveForecast(ctx, core.SavedForecast{Month: m, ProjectedBalanceCts: 42}); err != nil {
		t.Fatalf("save: %v", err)
	}
	f, _, _ = s.Lookup(ctx, m)
	if f.ProjectedBalanceCts != 42 {
		t.Fatalf("last write should win, got %d", f.ProjectedBalanceCts)
	}
}

func TestNewFromFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFromFile(filepath.Join(dir, "absent.json"), "expenses")
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if _, err := s.SumByMonth(context.Background(), "expenses", core.MustMonthKey("2024-01")); err != nil {
		t.Fatalf("default alias should exist: %v", err)
	}

	path := filepath.Join(dir, "seed.json")
	seed := `{
  "entries": {"expenses": [{"date": "2024-03-02", "label": "food", "amountCts": 1200}]},
  "schedules": {"recurring_incomes": [{"label": "salary", "amountCts": 200000, "dayOfMonth": 27, "startDate": "2023-01-01"}]},
  "forecasts": [{"monthKey": "2024-02", "projectedBalanceCts": 5000}]
}`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err = NewFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ctx := context.Background()
	m := core.MustMonthKey("2024-03")
	if got, _ := s.SumByMonth(ctx, "expenses", m); got != 1200 {
		t.Errorf("expenses = %d", got)
	}
	if got, _ := s.SumScheduled(ctx, "recurring_incomes", m, 15, ledger.Remaining); got != 200000 {
		t.Errorf("recurring remaining = %d", got)
	}
	if f, ok, _ := s.Lookup(ctx, m.Prev()); !ok || f.ProjectedBalanceCts != 5000 {
		t.Errorf("forecast = %+v ok=%v", f, ok)
	}

	if err := os.WriteFile(path, []byte(`{"entries": {"x": [{"date": "bad"}]}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFromFile(path); err == nil {
		t.Fatalf("expected error for bad date")
	}
}
