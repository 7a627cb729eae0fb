package storage

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// Dialect selects the SQL flavour and driver.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// ParseDialect parses a DATA_BACKEND value.
func ParseDialect(s string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(s))) {
	case SQLite:
		return SQLite, nil
	case Postgres, "postgresql":
		return Postgres, nil
	default:
		return "", fmt.Errorf("unsupported SQL dialect %q", s)
	}
}

// driverName is the database/sql driver registered for d.
func (d Dialect) driverName() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// rebind rewrites "?" placeholders to "$n" for postgres.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// postgres: undefined_table
const pgUndefinedTable = "42P01"

// isMissingTable reports whether err means the queried table does not exist.
func (d Dialect) isMissingTable(err error) bool {
	if err == nil {
		return false
	}
	if d == Postgres {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && string(pqErr.Code) == pgUndefinedTable
	}
	return strings.Contains(err.Error(), "no such table")
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// quoteIdent validates a table alias and double-quotes it.
func quoteIdent(name string) (string, error) {
	if !identPattern.MatchString(name) {
		return "", fmt.Errorf("invalid source name %q", name)
	}
	return `"` + name + `"`, nil
}
