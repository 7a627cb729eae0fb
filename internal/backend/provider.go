// Package backend opens the ledger store and forecast cache once per process
// and releases them on shutdown.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"finora/internal/cache"
	"finora/internal/ledger/memory"
	gsheet "finora/internal/sheets/google"
	"finora/internal/storage"
)

// Provider owns the store connection. Open is idempotent; Close releases
// everything Open acquired, in reverse order.
type Provider struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	res      *Resources
	pinger   pinger
	cleanups []CleanupFunc
	closed   bool
}

// ErrClosed is returned by Open after Close.
var ErrClosed = errors.New("backend provider closed")

func NewProvider(cfg Config, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Cache == "" {
		cfg.Cache = CacheStore
	}
	return &Provider{cfg: cfg, logger: logger}
}

// Open initializes the backend on first use and returns the same resources
// on every later call.
func (p *Provider) Open(ctx context.Context) (*Resources, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if p.res != nil {
		return p.res, nil
	}
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := p.openStore(ctx)
	if err != nil {
		p.runCleanups()
		return nil, err
	}
	res := &Resources{Store: st, Writer: st}

	switch p.cfg.Cache {
	case CacheStore:
		res.Cache = st
	case CacheSheets:
		sc, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   p.cfg.GoogleSpreadsheetID,
			SheetName:       p.cfg.GoogleForecastSheetName,
			CredentialsJSON: p.cfg.GoogleServiceAccountJSON,
			CredentialsFile: p.cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			p.runCleanups()
			return nil, fmt.Errorf("failed to initialize Google Sheets forecast cache: %w", err)
		}
		res.Cache = sc
	}

	if res.Cache != nil && p.cfg.CacheTTL > 0 {
		cached := cache.NewCachedForecasts(res.Cache, p.cfg.CacheSize, p.cfg.CacheTTL)
		mgr := cache.NewManager()
		mgr.Register(cached.LRU())
		mgr.StartCleanup(p.cfg.CacheTTL)
		p.cleanups = append(p.cleanups, func() error { mgr.Stop(); return nil })
		res.Cache = cached
	}

	p.logger.InfoContext(ctx, "Initialized backend",
		"backend", p.cfg.Type.String(),
		"forecast_cache", string(p.cfg.Cache),
		"cache_ttl", p.cfg.CacheTTL.String())
	p.res = res
	return res, nil
}

func (p *Provider) openStore(ctx context.Context) (store, error) {
	switch p.cfg.Type {
	case MemoryBackend:
		primaries := make([]string, 0, 4)
		for _, src := range p.cfg.Sources.All() {
			primaries = append(primaries, src.Primary())
		}
		if p.cfg.SeedFile == "" {
			return memory.New(primaries...), nil
		}
		st, err := memory.NewFromFile(p.cfg.SeedFile, primaries...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize memory backend: %w", err)
		}
		p.logger.InfoContext(ctx, "Loaded memory seed", "path", p.cfg.SeedFile)
		return st, nil

	case SQLiteBackend, PostgresBackend:
		dialect, dsn := storage.SQLite, p.cfg.SQLiteDBPath
		if p.cfg.Type == PostgresBackend {
			dialect, dsn = storage.Postgres, p.cfg.PostgresDSN
		}
		repo, err := storage.Open(ctx, dialect, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize %s repository: %w", dialect, err)
		}
		p.pinger = repo
		p.cleanups = append(p.cleanups, repo.Close)
		return repo, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", p.cfg.Type)
	}
}

// Ready reports whether the opened backend can serve requests.
func (p *Provider) Ready(ctx context.Context) error {
	p.mu.Lock()
	res, pg := p.res, p.pinger
	p.mu.Unlock()

	if res == nil {
		return errors.New("backend not open")
	}
	if pg != nil {
		return pg.Ping(ctx)
	}
	return nil
}

// Close releases the backend. Later calls are no-ops.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.res = nil
	return p.runCleanups()
}

func (p *Provider) runCleanups() error {
	var errs []error
	for i := len(p.cleanups) - 1; i >= 0; i-- {
		if err := p.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.cleanups = nil
	p.pinger = nil
	return errors.Join(errs...)
}
