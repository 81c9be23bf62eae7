package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/wallroll/pkg/models"
)

// MemoryConfig configures a MemoryStore.
type MemoryConfig struct {
	TTL         time.Duration // Idle time before a session expires (default: SessionTimeout)
	MaxSessions int           // Upper bound on stored sessions, 0 for unbounded
	Now         func() time.Time
}

type memoryEntry struct {
	session *models.Session
	touched time.Time
}

// MemoryStore is an expiring, optionally bounded in-process Store.
// It stores copies so callers never share session state with it.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	max     int
	now     func() time.Time
}

// NewMemoryStore creates a memory store.
func NewMemoryStore(cfg MemoryConfig) *MemoryStore {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = SessionTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		max:     cfg.MaxSessions,
		now:     now,
	}
}

// Get returns a copy of the session for key, or nil if absent or expired.
// A hit counts as activity and restarts the idle timer.
func (m *MemoryStore) Get(_ context.Context, key string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	if m.expired(e) {
		delete(m.entries, key)
		return nil, nil
	}
	e.touched = m.now()
	return e.session.Clone(), nil
}

// Put stores a copy of s under key, evicting the stalest session when full.
func (m *MemoryStore) Put(_ context.Context, key string, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && m.max > 0 && len(m.entries) >= m.max {
		m.evictOldestLocked()
	}
	m.entries[key] = &memoryEntry{session: s.Clone(), touched: m.now()}
	return nil
}

// Clear removes the session for key.
func (m *MemoryStore) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored sessions, including not yet swept expired ones.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Sweep removes expired sessions and returns how many were dropped.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, e := range m.entries {
		if m.expired(e) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Run sweeps expired sessions every interval until ctx is done.
func (m *MemoryStore) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = CleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				log.Info().Int("removed", n).Int("remaining", m.Len()).Msg("Expired sessions swept")
			}
		}
	}
}

func (m *MemoryStore) expired(e *memoryEntry) bool {
	return m.now().Sub(e.touched) > m.ttl
}

func (m *MemoryStore) evictOldestLocked() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for key, e := range m.entries {
		if oldestKey == "" || e.touched.Before(oldest) {
			oldestKey, oldest = key, e.touched
		}
	}
	if oldestKey != "" {
		delete(m.entries, oldestKey)
		log.Debug().Str("chat", oldestKey).Msg("Session evicted, store full")
	}
}
