// Package ledger defines the read ports the forecast engine depends on:
// aggregate sums over the four logical ledgers and the saved-forecast cache.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"finora/internal/core"
)

// Kind names one of the four logical ledgers.
type Kind string

const (
	Expenses  Kind = "expenses"
	Incomes   Kind = "incomes"
	Fixed     Kind = "fixed"
	Recurring Kind = "recurring"
)

// Partition splits a month's schedule occurrences around a cutoff day.
type Partition int

const (
	// Realized selects occurrences with dayOfMonth <= cutoff.
	Realized Partition = iota
	// Remaining selects occurrences with dayOfMonth > cutoff.
	Remaining
)

// Includes reports whether an occurrence on dayOfMonth falls in p.
func (p Partition) Includes(dayOfMonth, cutoff int) bool {
	if p == Realized {
		return dayOfMonth <= cutoff
	}
	return dayOfMonth > cutoff
}

func (p Partition) String() string {
	if p == Realized {
		return "realized"
	}
	return "remaining"
}

// ErrSourceNotFound is returned by a Store when an alias names a source that
// does not exist. Callers treat it as a zero contribution.
var ErrSourceNotFound = errors.New("ledger source not found")

// Ports for the outbound adapters.
type (
	// Store exposes read-only aggregate sums. alias names a physical source
	// (table, collection) of a logical ledger.
	Store interface {
		// SumByMonth sums amountCts of dated entries whose monthKey is month.
		SumByMonth(ctx context.Context, alias string, month core.MonthKey) (int64, error)
		// SumScheduled sums amountCts of schedules active in month whose
		// dayOfMonth falls in part relative to cutoff.
		SumScheduled(ctx context.Context, alias string, month core.MonthKey, cutoff int, part Partition) (int64, error)
	}

	// ForecastCache looks up previously saved forecasts.
	ForecastCache interface {
		Lookup(ctx context.Context, month core.MonthKey) (core.SavedForecast, bool, error)
	}

	// ForecastWriter persists forecasts. The engine never uses it; only the
	// snapshot job does.
	ForecastWriter interface {
		SaveForecast(ctx context.Context, f core.SavedForecast) error
	}
)

// Source is a logical ledger with its physical aliases in priority order.
// The first alias is the primary source; the rest are legacy names kept
// while a schema migration is in flight. All aliases are summed.
type Source struct {
	Kind    Kind
	Aliases []string
}

// Primary returns the authoritative alias.
func (s Source) Primary() string {
	if len(s.Aliases) == 0 {
		return ""
	}
	return s.Aliases[0]
}

// Sources groups the four logical ledgers.
type Sources struct {
	Expenses  Source
	Incomes   Source
	Fixed     Source
	Recurring Source
}

// DefaultSources returns the current table names plus the camelCase names
// used before the snake_case migration.
func DefaultSources() Sources {
	return Sources{
		Expenses:  Source{Kind: Expenses, Aliases: []string{"expenses"}},
		Incomes:   Source{Kind: Incomes, Aliases: []string{"incomes"}},
		Fixed:     Source{Kind: Fixed, Aliases: []string{"fixed_expenses", "fixedExpenses"}},
		Recurring: Source{Kind: Recurring, Aliases: []string{"recurring_incomes", "recurringIncomes"}},
	}
}

// All returns the sources in a stable order.
func (s Sources) All() []Source {
	return []Source{s.Expenses, s.Incomes, s.Fixed, s.Recurring}
}

// Validate checks every source has at least one non-blank, unique alias.
func (s Sources) Validate() error {
	var problems []string
	for _, src := range s.All() {
		if len(src.Aliases) == 0 {
			problems = append(problems, fmt.Sprintf("%s: no aliases", src.Kind))
			continue
		}
		seen := map[string]bool{}
		for _, a := range src.Aliases {
			if strings.TrimSpace(a) == "" {
				problems = append(problems, fmt.Sprintf("%s: blank alias", src.Kind))
				continue
			}
			if seen[a] {
				problems = append(problems, fmt.Sprintf("%s: duplicate alias %q", src.Kind, a))
			}
			seen[a] = true
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid ledger sources: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ParseAliases splits a comma separated alias list, dropping blanks.
func ParseAliases(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
