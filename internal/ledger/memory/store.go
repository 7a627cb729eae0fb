// Package memory is an in-process ledger store used by tests and local runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"finora/internal/core"
	"finora/internal/ledger"
)

type Store struct {
	mu        sync.RWMutex
	entries   map[string][]core.LedgerEntry
	schedules map[string][]core.RecurringSchedule
	forecasts map[core.MonthKey]core.SavedForecast
	failures  map[string]error
}

// New creates a store in which each alias exists and is empty. Aliases not
// listed here report ledger.ErrSourceNotFound until something is added.
func New(aliases ...string) *Store {
	s := &Store{
		entries:   map[string][]core.LedgerEntry{},
		schedules: map[string][]core.RecurringSchedule{},
		forecasts: map[core.MonthKey]core.SavedForecast{},
		failures:  map[string]error{},
	}
	for _, a := range aliases {
		s.entries[a] = nil
	}
	return s
}

// AddEntry appends a dated entry to alias, creating it if needed.
func (s *Store) AddEntry(alias string, e core.LedgerEntry) error {
	if e.MonthKey.IsZero() {
		e.MonthKey = core.MonthKeyOf(e.Date)
	}
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = int64(len(s.entries[alias]) + 1)
	s.entries[alias] = append(s.entries[alias], e)
	return nil
}

// AddSchedule appends a recurring schedule to alias, creating it if needed.
func (s *Store) AddSchedule(alias string, r core.RecurringSchedule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = int64(len(s.schedules[alias]) + 1)
	s.schedules[alias] = append(s.schedules[alias], r)
	return nil
}

// FailAlias makes every read of alias return err. A nil err clears it.
func (s *Store) FailAlias(alias string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, alias)
		return
	}
	s.failures[alias] = err
}

func (s *Store) exists(alias string) bool {
	_, e := s.entries[alias]
	_, r := s.schedules[alias]
	return e || r
}

func (s *Store) SumByMonth(ctx context.Context, alias string, month core.MonthKey) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failures[alias]; err != nil {
		return 0, err
	}
	if !s.exists(alias) {
		return 0, fmt.Errorf("%s: %w", alias, ledger.ErrSourceNotFound)
	}
	var total int64
	for _, e := range s.entries[alias] {
		if e.MonthKey == month {
			total += e.AmountCts
		}
	}
	return total, nil
}

func (s *Store) SumScheduled(ctx context.Context, alias string, month core.MonthKey, cutoff int, part ledger.Partition) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failures[alias]; err != nil {
		return 0, err
	}
	if !s.exists(alias) {
		return 0, fmt.Errorf("%s: %w", alias, ledger.ErrSourceNotFound)
	}
	var total int64
	for _, r := range s.schedules[alias] {
		if r.ActiveIn(month) && part.Includes(r.DayOfMonth, cutoff) {
			total += r.AmountCts
		}
	}
	return total, nil
}

// Lookup implements ledger.ForecastCache.
func (s *Store) Lookup(ctx context.Context, month core.MonthKey) (core.SavedForecast, bool, error) {
	if err := ctx.Err(); err != nil {
		return core.SavedForecast{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.forecasts[month]
	return f, ok, nil
}

// SaveForecast implements ledger.ForecastWriter. The last write wins.
func (s *Store) SaveForecast(ctx context.Context, f core.SavedForecast) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.Month.IsZero() {
		return core.ErrInvalidMonthKey
	}
	if f.ComputedAt.IsZero() {
		f.ComputedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forecasts[f.Month] = f
	return nil
}

// seedFile is the on-disk shape accepted by NewFromFile.
type seedFile struct {
	Entries map[string][]struct {
		Date      string `json:"date"`
		Label     string `json:"label"`
		AmountCts int64  `json:"amountCts"`
	} `json:"entries"`
	Schedules map[string][]struct {
		Label      string `json:"label"`
		AmountCts  int64  `json:"amountCts"`
		DayOfMonth int    `json:"dayOfMonth"`
		StartDate  string `json:"startDate"`
		EndDate    string `json:"endDate,omitempty"`
	} `json:"schedules"`
	Forecasts []core.SavedForecast `json:"forecasts"`
}

// NewFromFile loads a JSON seed file. A missing file yields a store holding
// empty default aliases.
func NewFromFile(path string, aliases ...string) (*Store, error) {
	s := New(aliases...)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for alias, rows := range seed.Entries {
		for i, row := range rows {
			d, err := core.ParseDate(row.Date)
			if err != nil {
				return nil, fmt.Errorf("entries.%s[%d]: %w", alias, i, err)
			}
			if err := s.AddEntry(alias, core.NewLedgerEntry(d, row.Label, row.AmountCts)); err != nil {
				return nil, fmt.Errorf("entries.%s[%d]: %w", alias, i, err)
			}
		}
	}
	for alias, rows := range seed.Schedules {
		for i, row := range rows {
			r := core.RecurringSchedule{Label: row.Label, AmountCts: row.AmountCts, DayOfMonth: row.DayOfMonth}
			if r.StartDate, err = core.ParseDate(row.StartDate); err != nil {
				return nil, fmt.Errorf("schedules.%s[%d]: %w", alias, i, err)
			}
			if strings.TrimSpace(row.EndDate) != "" {
				end, err := core.ParseDate(row.EndDate)
				if err != nil {
					return nil, fmt.Errorf("schedules.%s[%d]: %w", alias, i, err)
				}
				r.EndDate = &end
			}
			if err := s.AddSchedule(alias, r); err != nil {
				return nil, fmt.Errorf("schedules.%s[%d]: %w", alias, i, err)
			}
		}
	}
	for _, f := range seed.Forecasts {
		if err := s.SaveForecast(context.Background(), f); err != nil {
			return nil, fmt.Errorf("forecasts: %w", err)
		}
	}
	return s, nil
}
