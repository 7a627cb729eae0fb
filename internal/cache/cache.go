// Package cache holds an in-process TTL LRU and a read-through decorator for
// saved forecasts.
package cache

import (
	"log/slog"
	"sync"
	"time"

	flog "finora/internal/log"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Cleaner is implemented by caches that can drop expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically cleans registered caches.
type Manager struct {
	mu       sync.Mutex
	caches   []Cleaner
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewManager() *Manager {
	return &Manager{}
}

// Register adds a cache to the manager for cleanup
func (m *Manager) Register(c Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = append(m.caches, c)
}

// StartCleanup begins periodic cleanup. Calling it twice is a no-op.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil || interval <= 0 {
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.cleanup(interval, m.stop, m.done)
}

// CleanNow runs one cleanup pass and returns the number of entries removed.
func (m *Manager) CleanNow() int {
	m.mu.Lock()
	caches := append([]Cleaner(nil), m.caches...)
	m.mu.Unlock()

	total := 0
	for _, c := range caches {
		total += c.CleanExpired()
	}
	return total
}

func (m *Manager) cleanup(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.CleanNow(); n > 0 {
				slog.Debug("Expired cache entries removed",
					flog.FieldComponent, flog.ComponentCache, "count", n)
			}
		case <-stop:
			return
		}
	}
}

// Stop ends the cleanup goroutine and waits for it. Safe to call when
// cleanup never started.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		stop, done := m.stop, m.done
		m.mu.Unlock()
		if stop == nil {
			return
		}
		close(stop)
		<-done
	})
}
