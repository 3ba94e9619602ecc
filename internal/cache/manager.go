// Package cache implements the tiered response cache: a TTL +
// bounded-LRU map over string keys, backed by an atomically-written JSON
// file. Grounded on an internal/cache.Manager shape (stats
// bucket, periodic cleanup, injectable clock) but replaces the
// bbolt-backed store with a plain JSON file, since the cache file's wire
// shape (version, atomic rename, 0600 permissions) is a fixed contract
// rather than an implementation detail left to the storage engine.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/everything-chalna/oh-my-notionmcp/internal/metrics"
)

// Manager is a bounded map from cache key to Entry, guarded by a single
// mutex. In-memory mutations must never suspend, so every method below
// does pure CPU work under the lock and only touches the filesystem in
// Load/Save, which callers invoke outside any other lock.
type Manager struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	ttl        time.Duration
	maxEntries int
	path       string
	now        func() time.Time
	logger     *zap.Logger
	metrics    *metrics.Registry
}

// Option customizes Manager construction.
type Option func(*Manager)

// WithClock injects a deterministic now() for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger attaches a logger; defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics attaches a metrics registry; defaults to a disconnected one.
func WithMetrics(r *metrics.Registry) Option {
	return func(m *Manager) { m.metrics = r }
}

// NewManager constructs a Manager. ttl must be > 0 and maxEntries must be
// >= 1.
func NewManager(ttl time.Duration, maxEntries int, path string, opts ...Option) (*Manager, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("cache: ttl_ms must be > 0")
	}
	if maxEntries < 1 {
		return nil, fmt.Errorf("cache: max_entries must be >= 1")
	}

	m := &Manager{
		entries:    make(map[string]*Entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		path:       path,
		now:        time.Now,
		logger:     zap.NewNop(),
		metrics:    metrics.Noop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Get returns the cached value for key if present and not expired. An
// expired entry observed on read is deleted before returning a miss.
func (m *Manager) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		m.metrics.CacheMisses.Inc()
		return "", false
	}

	nowMs := m.now().UnixMilli()
	if m.isExpiredLocked(e, nowMs) {
		delete(m.entries, key)
		m.metrics.CacheMisses.Inc()
		m.metrics.CacheEvictions.Inc()
		return "", false
	}

	e.AccessedAt = nowMs
	m.metrics.CacheHits.Inc()
	return e.Value, true
}

// Set inserts or overwrites key, preserving the original created_at on
// overwrite, then prunes expired entries and evicts by LRU until the map
// is back at capacity.
func (m *Manager) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	nowMs := m.now().UnixMilli()

	if existing, ok := m.entries[key]; ok {
		existing.Value = value
		existing.UpdatedAt = nowMs
		existing.AccessedAt = nowMs
	} else {
		m.entries[key] = &Entry{
			Key:        key,
			Value:      value,
			CreatedAt:  nowMs,
			UpdatedAt:  nowMs,
			AccessedAt: nowMs,
		}
	}

	m.pruneExpiredLocked(nowMs)
	m.evictOverCapacityLocked()
}

// Delete removes key unconditionally.
func (m *Manager) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Clear empties the cache.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*Entry)
}

// Size returns the current entry count (test/diagnostic use).
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) isExpiredLocked(e *Entry, nowMs int64) bool {
	return e.UpdatedAt+m.ttl.Milliseconds() <= nowMs
}

func (m *Manager) pruneExpiredLocked(nowMs int64) {
	for k, e := range m.entries {
		if m.isExpiredLocked(e, nowMs) {
			delete(m.entries, k)
			m.metrics.CacheEvictions.Inc()
		}
	}
}

// evictOverCapacityLocked evicts by ascending (accessed_at, updated_at,
// created_at) — LRU with stable tie-breaks — until size <= maxEntries.
func (m *Manager) evictOverCapacityLocked() {
	if len(m.entries) <= m.maxEntries {
		return
	}

	ordered := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.AccessedAt != b.AccessedAt {
			return a.AccessedAt < b.AccessedAt
		}
		if a.UpdatedAt != b.UpdatedAt {
			return a.UpdatedAt < b.UpdatedAt
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.Key < b.Key
	})

	excess := len(m.entries) - m.maxEntries
	for i := 0; i < excess; i++ {
		delete(m.entries, ordered[i].Key)
		m.metrics.CacheEvictions.Inc()
	}
}

// Load reads the cache file. An absent file is not an error — it simply
// leaves the cache empty. Invalid JSON or a version mismatch also yields
// a silently-empty cache; corruption is logged but never surfaced as an
// error.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		m.logger.Warn("cache: failed to read cache file, starting empty", zap.Error(err))
		return nil
	}

	var ff FileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		m.logger.Warn("cache: malformed cache file, starting empty", zap.Error(err))
		return nil
	}
	if ff.Version != CurrentVersion {
		m.logger.Warn("cache: cache file version mismatch, starting empty",
			zap.Int("found_version", ff.Version), zap.Int("expected_version", CurrentVersion))
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*Entry, len(ff.Entries))
	for i := range ff.Entries {
		e := ff.Entries[i]
		m.entries[e.Key] = &e
	}
	return nil
}

// Save prunes expired/overflow entries, then writes the cache file
// atomically: write to path+"."+pid+".tmp", rename over target, chmod
// 0600. Parent directory is created with mode 0700 first.
func (m *Manager) Save() error {
	m.mu.Lock()
	nowMs := m.now().UnixMilli()
	m.pruneExpiredLocked(nowMs)
	m.evictOverCapacityLocked()

	ff := FileFormat{Version: CurrentVersion, Entries: make([]Entry, 0, len(m.entries))}
	for _, e := range m.entries {
		ff.Entries = append(ff.Entries, *e)
	}
	m.mu.Unlock()

	// Deterministic ordering keeps the file diffable and tests stable.
	sort.Slice(ff.Entries, func(i, j int) bool { return ff.Entries[i].Key < ff.Entries[j].Key })

	data, err := json.Marshal(ff)
	if err != nil {
		return fmt.Errorf("cache: marshal cache file: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("cache: create cache dir: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", m.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("cache: write temp cache file: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("cache: rename temp cache file: %w", err)
	}
	if err := os.Chmod(m.path, 0o600); err != nil {
		return fmt.Errorf("cache: chmod cache file: %w", err)
	}

	return nil
}

// SaveAsync fires Save in a background goroutine; errors are logged,
// never surfaced — fire-and-forget persistence.
func (m *Manager) SaveAsync() {
	go func() {
		if err := m.Save(); err != nil {
			m.logger.Warn("cache: async persistence failed", zap.Error(err))
		}
	}()
}
