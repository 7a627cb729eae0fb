package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"finora/internal/core"
	"finora/internal/ledger"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "finora.db")
	repo, err := Open(context.Background(), SQLite, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := core.ParseDate(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func TestSumByMonth(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	for _, e := range []core.LedgerEntry{
		core.NewLedgerEntry(mustDate(t, "2024-03-01"), "groceries", 1250),
		core.NewLedgerEntry(mustDate(t, "2024-03-31"), "fuel", 4000),
		core.NewLedgerEntry(mustDate(t, "2024-04-01"), "april", 99),
	} {
		if _, err := repo.InsertEntry(ctx, "expenses", e); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := repo.SumByMonth(ctx, "expenses", core.MustMonthKey("2024-03"))
	if err != nil || got != 5250 {
		t.Fatalf("SumByMonth = %d, %v; want 5250", got, err)
	}
	got, err = repo.SumByMonth(ctx, "incomes", core.MustMonthKey("2024-03"))
	if err != nil || got != 0 {
		t.Fatalf("empty table should sum to 0, got %d, %v", got, err)
	}
}

func TestMissingTableIsSourceNotFound(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	m := core.MustMonthKey("2024-03")

	if _, err := repo.SumByMonth(ctx, "fixedExpenses", m); !errors.Is(err, ledger.ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
	if _, err := repo.SumScheduled(ctx, "recurringIncomes", m, 10, ledger.Realized); !errors.Is(err, ledger.ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
}

func TestRejectsUnsafeAlias(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.SumByMonth(context.Background(), `expenses"; DROP TABLE expenses; --`, core.MustMonthKey("2024-03"))
	if err == nil || errors.Is(err, ledger.ErrSourceNotFound) {
		t.Fatalf("expected identifier error, got %v", err)
	}
}

func TestSumScheduled(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	endFeb := mustDate(t, "2024-02-29")
	endMar := mustDate(t, "2024-03-01")
	schedules := []core.RecurringSchedule{
		{Label: "rent", AmountCts: 50000, DayOfMonth: 1, StartDate: mustDate(t, "2023-01-01")},
		{Label: "phone", AmountCts: 1500, DayOfMonth: 15, StartDate: mustDate(t, "2024-03-31")},
		{Label: "gym", AmountCts: 3000, DayOfMonth: 28, StartDate: mustDate(t, "2023-06-01"), EndDate: &endMar},
		{Label: "old", AmountCts: 7, DayOfMonth: 5, StartDate: mustDate(t, "2023-01-01"), EndDate: &endFeb},
		{Label: "later", AmountCts: 11, DayOfMonth: 5, StartDate: mustDate(t, "2024-04-01")},
	}
	for _, s := range schedules {
		if _, err := repo.InsertSchedule(ctx, "fixed_expenses", s); err != nil {
			t.Fatalf("insert %s: %v", s.Label, err)
		}
	}

	m := core.MustMonthKey("2024-03")
	tests := []struct {
		cutoff int
		part   ledger.Partition
		want   int64
	}{
		{15, ledger.Realized, 50000 + 1500},
		{15, ledger.Remaining, 3000},
		{0, ledger.Realized, 0},
		{0, ledger.Remaining, 54500},
		{31, ledger.Realized, 54500},
		{31, ledger.Remaining, 0},
	}
	for _, tt := range tests {
		got, err := repo.SumScheduled(ctx, "fixed_expenses", m, tt.cutoff, tt.part)
		if err != nil {
			t.Fatalf("cutoff %d %s: %v", tt.cutoff, tt.part, err)
		}
		if got != tt.want {
			t.Errorf("cutoff %d %s = %d, want %d", tt.cutoff, tt.part, got, tt.want)
		}
	}
}

func TestForecastRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	m := core.MustMonthKey("2024-02")

	if _, ok, err := repo.Lookup(ctx, m); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	at := time.Date(2024, 3, 1, 0, 5, 0, 0, time.UTC)
	saved := core.SavedForecast{
		Month:               m,
		ProjectedBalanceCts: -4200,
		Components:          core.Components{RealizedExpensesCts: 4200},
		ComputedAt:          at,
	}
	if err := repo.SaveForecast(ctx, saved); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := repo.Lookup(ctx, m)
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if got != saved {
		t.Fatalf("got %+v, want %+v", got, saved)
	}

	saved.ProjectedBalanceCts = 0
	saved.Components = core.Components{}
	if err := repo.SaveForecast(ctx, saved); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, ok, _ = repo.Lookup(ctx, m)
	if !ok || got.ProjectedBalanceCts != 0 || got.Components != (core.Components{}) {
		t.Fatalf("overwrite not applied: %+v ok=%v", got, ok)
	}
}

func TestNullBalanceIsMiss(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if _, err := repo.db.ExecContext(ctx,
		`INSERT INTO forecasts (month_key, projected_balance_cts, components, computed_at) VALUES ('2024-01', NULL, NULL, '')`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, ok, err := repo.Lookup(ctx, core.MustMonthKey("2024-01")); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finora.db")
	for i := 0; i < 2; i++ {
		if err := RunMigrations(SQLite, path); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
}

func TestRebind(t *testing.T) {
	q := `SELECT a FROM t WHERE x = ? AND y = ?`
	if got := SQLite.rebind(q); got != q {
		t.Fatalf("sqlite rebind changed query: %q", got)
	}
	if got := Postgres.rebind(q); got != `SELECT a FROM t WHERE x = $1 AND y = $2` {
		t.Fatalf("postgres rebind = %q", got)
	}
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{"sqlite": SQLite, "Postgres": Postgres, "postgresql": Postgres} {
		if got, err := ParseDialect(in); err != nil || got != want {
			t.Errorf("ParseDialect(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDialect("mysql"); err == nil {
		t.Errorf("expected error for mysql")
	}
}
