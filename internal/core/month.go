package core

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	// DateLayout is the canonical calendar-date layout used for storage and ISO dates.
	DateLayout = "2006-01-02"

	// MaxDayOfMonth is the largest day a schedule may target.
	MaxDayOfMonth = 31
)

var (
	ErrInvalidMonthKey = errors.New("invalid month (YYYY-MM)")
	ErrInvalidInstant  = errors.New("invalid ISO-8601 timestamp")
)

var monthKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// MonthKey identifies a calendar month in UTC. Its text form is "YYYY-MM".
type MonthKey struct {
	Year  int
	Month time.Month
}

// ParseMonthKey parses a strict "YYYY-MM" string.
func ParseMonthKey(s string) (MonthKey, error) {
	if !monthKeyPattern.MatchString(s) {
		return MonthKey{}, ErrInvalidMonthKey
	}
	y, _ := strconv.Atoi(s[:4])
	m, _ := strconv.Atoi(s[5:])
	if m < 1 || m > 12 {
		return MonthKey{}, ErrInvalidMonthKey
	}
	return MonthKey{Year: y, Month: time.Month(m)}, nil
}

// MustMonthKey is ParseMonthKey for literals; it panics on malformed input.
func MustMonthKey(s string) MonthKey {
	m, err := ParseMonthKey(s)
	if err != nil {
		panic(fmt.Sprintf("core: %q: %v", s, err))
	}
	return m
}

// MonthKeyOf derives the month key from t's UTC year and month.
func MonthKeyOf(t time.Time) MonthKey {
	t = t.UTC()
	return MonthKey{Year: t.Year(), Month: t.Month()}
}

// Add shifts the month by n calendar months, rolling the year over as needed.
func (m MonthKey) Add(n int) MonthKey {
	return MonthKeyOf(time.Date(m.Year, m.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC))
}

// Prev returns the immediately preceding month.
func (m MonthKey) Prev() MonthKey {
	return m.Add(-1)
}

// FirstDay returns midnight UTC on the first day of the month.
func (m MonthKey) FirstDay() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// LastDay returns midnight UTC on the last day of the month.
func (m MonthKey) LastDay() time.Time {
	// day 0 of the next month
	return time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC)
}

// DaysIn returns the number of days in the month.
func (m MonthKey) DaysIn() int {
	return m.LastDay().Day()
}

// IsZero reports whether the key was never set.
func (m MonthKey) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

func (m MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// MarshalText implements encoding.TextMarshaler.
func (m MonthKey) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MonthKey) UnmarshalText(b []byte) error {
	k, err := ParseMonthKey(string(b))
	if err != nil {
		return err
	}
	*m = k
	return nil
}

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	DateLayout,
}

// ParseInstant parses an ISO-8601 timestamp or calendar date. Values without
// a zone are taken as UTC.
func ParseInstant(s string) (time.Time, error) {
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrInvalidInstant
}

// ParseDate parses a "YYYY-MM-DD" calendar date, or the date part of a
// full timestamp, at midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := ParseInstant(s)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
