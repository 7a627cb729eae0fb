package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"finora/internal/core"
	"finora/internal/ledger"
	flog "finora/internal/log"
)

// Repository is a ledger.Store, ledger.ForecastCache and ledger.ForecastWriter
// over a SQL database.
type Repository struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to dsn, applies migrations and returns a ready repository.
// For sqlite dsn is a file path; its directory is created if missing.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Repository, error) {
	if dialect == SQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, err
	}

	slog.InfoContext(ctx, "Ledger database ready",
		flog.FieldComponent, flog.ComponentStorage, "dialect", string(dialect))
	return New(db, dialect), nil
}

// New wraps an already migrated database.
func New(db *sql.DB, dialect Dialect) *Repository {
	return &Repository{db: db, dialect: dialect}
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) sum(ctx context.Context, alias, query string, args ...any) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, r.dialect.rebind(query), args...).Scan(&total)
	if err != nil {
		if r.dialect.isMissingTable(err) {
			return 0, fmt.Errorf("%s: %w", alias, ledger.ErrSourceNotFound)
		}
		return 0, fmt.Errorf("sum %s: %w", alias, err)
	}
	return total, nil
}

// SumByMonth implements ledger.Store.
func (r *Repository) SumByMonth(ctx context.Context, alias string, month core.MonthKey) (int64, error) {
	table, err := quoteIdent(alias)
	if err != nil {
		return 0, err
	}
	q := `SELECT COALESCE(SUM(amount_cts), 0) FROM ` + table + ` WHERE month_key = ?`
	return r.sum(ctx, alias, q, month.String())
}

// SumScheduled implements ledger.Store.
func (r *Repository) SumScheduled(ctx context.Context, alias string, month core.MonthKey, cutoff int, part ledger.Partition) (int64, error) {
	table, err := quoteIdent(alias)
	if err != nil {
		return 0, err
	}
	cmp := "<="
	if part == ledger.Remaining {
		cmp = ">"
	}
	q := `SELECT COALESCE(SUM(amount_cts), 0) FROM ` + table + `
		WHERE start_date <= ?
		  AND (end_date IS NULL OR end_date >= ?)
		  AND day_of_month ` + cmp + ` ?`
	return r.sum(ctx, alias, q,
		month.LastDay().Format(core.DateLayout),
		month.FirstDay().Format(core.DateLayout),
		cutoff)
}

// Lookup implements ledger.ForecastCache. A row with a NULL balance is a miss.
func (r *Repository) Lookup(ctx context.Context, month core.MonthKey) (core.SavedForecast, bool, error) {
	var (
		balance    sql.NullInt64
		components sql.NullString
		computedAt string
	)
	q := r.dialect.rebind(`SELECT projected_balance_cts, components, computed_at FROM forecasts WHERE month_key = ?`)
	err := r.db.QueryRowContext(ctx, q, month.String()).Scan(&balance, &components, &computedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows), r.dialect.isMissingTable(err):
		return core.SavedForecast{}, false, nil
	case err != nil:
		return core.SavedForecast{}, false, fmt.Errorf("lookup forecast %s: %w", month, err)
	case !balance.Valid:
		return core.SavedForecast{}, false, nil
	}

	f := core.SavedForecast{Month: month, ProjectedBalanceCts: balance.Int64}
	if components.Valid && strings.TrimSpace(components.String) != "" {
		if err := json.Unmarshal([]byte(components.String), &f.Components); err != nil {
			slog.WarnContext(ctx, "Ignoring malformed forecast components",
				flog.FieldComponent, flog.ComponentStorage, flog.FieldMonth, month.String(), flog.FieldError, err)
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, computedAt); err == nil {
		f.ComputedAt = t.UTC()
	}
	return f, true, nil
}

// SaveForecast implements ledger.ForecastWriter. An existing row for the
// month is replaced wholesale.
func (r *Repository) SaveForecast(ctx context.Context, f core.SavedForecast) error {
	if f.Month.IsZero() {
		return core.ErrInvalidMonthKey
	}
	if f.ComputedAt.IsZero() {
		f.ComputedAt = time.Now()
	}
	components, err := json.Marshal(f.Components)
	if err != nil {
		return fmt.Errorf("encode components: %w", err)
	}
	q := r.dialect.rebind(`INSERT INTO forecasts (month_key, projected_balance_cts, components, computed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (month_key) DO UPDATE SET
			projected_balance_cts = excluded.projected_balance_cts,
			components = excluded.components,
			computed_at = excluded.computed_at`)
	_, err = r.db.ExecContext(ctx, q, f.Month.String(), f.ProjectedBalanceCts, string(components),
		f.ComputedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save forecast %s: %w", f.Month, err)
	}
	return nil
}

// InsertEntry adds a dated expense or income row to alias.
func (r *Repository) InsertEntry(ctx context.Context, alias string, e core.LedgerEntry) (int64, error) {
	if e.MonthKey.IsZero() {
		e.MonthKey = core.MonthKeyOf(e.Date)
	}
	if err := e.Validate(); err != nil {
		return 0, err
	}
	table, err := quoteIdent(alias)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	q := r.dialect.rebind(`INSERT INTO ` + table + ` (date, month_key, label, amount_cts, category_id, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	var category any
	if e.CategoryID != nil {
		category = *e.CategoryID
	}
	var id int64
	err = r.db.QueryRowContext(ctx, q, e.Date.Format(core.DateLayout), e.MonthKey.String(), e.Label,
		e.AmountCts, category, e.Notes, now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", alias, err)
	}
	return id, nil
}

// InsertSchedule adds a fixed expense or recurring income row to alias.
func (r *Repository) InsertSchedule(ctx context.Context, alias string, s core.RecurringSchedule) (int64, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	table, err := quoteIdent(alias)
	if err != nil {
		return 0, err
	}
	var end any
	if s.EndDate != nil {
		end = s.EndDate.UTC().Format(core.DateLayout)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	q := r.dialect.rebind(`INSERT INTO ` + table + ` (label, amount_cts, day_of_month, start_date, end_date, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	var id int64
	err = r.db.QueryRowContext(ctx, q, s.Label, s.AmountCts, s.DayOfMonth,
		s.StartDate.UTC().Format(core.DateLayout), end, s.Notes, now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", alias, err)
	}
	return id, nil
}
