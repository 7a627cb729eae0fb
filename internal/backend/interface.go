package backend

import (
	"context"
	"time"

	"finora/internal/ledger"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Resources are the opened ledger ports. Cache is nil when caching is off.
type Resources struct {
	Store  ledger.Store
	Cache  ledger.ForecastCache
	Writer ledger.ForecastWriter
}

// Config holds configuration for backend creation
type Config struct {
	Type    BackendType
	Sources ledger.Sources

	// SQL specific
	SQLiteDBPath string
	PostgresDSN  string

	// Memory specific
	SeedFile string

	// Forecast cache
	Cache     CacheMode
	CacheTTL  time.Duration
	CacheSize int

	// Google Sheets specific
	GoogleSpreadsheetID      string
	GoogleForecastSheetName  string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}

// CacheMode selects where saved forecasts are looked up.
type CacheMode string

const (
	CacheStore  CacheMode = "store"
	CacheSheets CacheMode = "sheets"
	CacheNone   CacheMode = "none"
)

// IsValid returns true if the cache mode is known.
func (m CacheMode) IsValid() bool {
	switch m {
	case CacheStore, CacheSheets, CacheNone:
		return true
	default:
		return false
	}
}

// pinger is implemented by stores backed by a network resource.
type pinger interface {
	Ping(ctx context.Context) error
}

// store is what every backend implementation provides.
type store interface {
	ledger.Store
	ledger.ForecastCache
	ledger.ForecastWriter
}
