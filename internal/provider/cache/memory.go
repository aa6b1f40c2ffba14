package cache

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// entry is one cached value with its write time.
type entry struct {
	storedAt time.Time
	data     json.RawMessage
}

// Memory is an in-process Store. Values are kept encoded so callers get a
// copy on every read, as they would from the file store.
type Memory struct {
	TTL      time.Duration
	MaxItems int
	Now      func() time.Time
	Log      zerolog.Logger

	mu    sync.RWMutex
	items map[string]entry
}

func NewMemory(ttl time.Duration, maxItems int, log zerolog.Logger) *Memory {
	return &Memory{
		TTL:      ttl,
		MaxItems: maxItems,
		Now:      time.Now,
		Log:      log.With().Str("component", "cache").Logger(),
		items:    make(map[string]entry),
	}
}

func (m *Memory) Get(key string, dst any) bool {
	if m.TTL <= 0 {
		return false
	}
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()
	if !ok || !fresh(e.storedAt, m.Now(), m.TTL) {
		return false
	}
	return decode(e.data, dst)
}

func (m *Memory) Put(key string, v any) {
	if m.TTL <= 0 {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		m.Log.Warn().Err(err).Str("key", key).Msg("encode cache value")
		return
	}
	now := m.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string]entry)
	}
	m.items[key] = entry{storedAt: now, data: b}

	// best-effort cap: drop expired entries first, then arbitrary ones
	if m.MaxItems > 0 && len(m.items) > m.MaxItems {
		for k, e := range m.items {
			if len(m.items) <= m.MaxItems {
				break
			}
			if !fresh(e.storedAt, now, m.TTL) {
				delete(m.items, k)
			}
		}
		for k := range m.items {
			if len(m.items) <= m.MaxItems {
				break
			}
			if k != key {
				delete(m.items, k)
			}
		}
	}
}

// Len returns the number of entries, fresh or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
