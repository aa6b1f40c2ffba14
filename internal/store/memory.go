package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/guregu/null/v6"

	"twquote/internal/account"
)

// Memory is a process-local Store used when no database is configured.
type Memory struct {
	mu       sync.RWMutex
	users    map[int64]*account.User
	watch    map[int64][]WatchItem
	alerts   []PriceAlert
	searches []SearchRecord
	nextID   int64
}

func NewMemory() *Memory {
	return &Memory{users: map[int64]*account.User{}, watch: map[int64][]WatchItem{}}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Memory) CreateUser(ctx context.Context, u *account.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.users {
		if strings.EqualFold(cur.Username, u.Username) {
			return account.ErrUsernameTaken
		}
		if strings.EqualFold(cur.Email, u.Email) {
			return account.ErrEmailTaken
		}
	}
	u.ID = m.id()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *Memory) find(match func(*account.User) bool) (*account.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, account.ErrNotFound
}

func (m *Memory) UserByUsername(ctx context.Context, username string) (*account.User, error) {
	return m.find(func(u *account.User) bool { return strings.EqualFold(u.Username, username) })
}

func (m *Memory) UserByEmail(ctx context.Context, email string) (*account.User, error) {
	return m.find(func(u *account.User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *Memory) TouchLogin(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return account.ErrNotFound
	}
	u.LastLogin = null.TimeFrom(at)
	return nil
}

func (m *Memory) AddWatch(ctx context.Context, item *WatchItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.watch[item.UserID] {
		if w.Code == item.Code {
			return ErrDuplicate
		}
	}
	item.ID = m.id()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	item.UpdatedAt = item.CreatedAt
	m.watch[item.UserID] = append(m.watch[item.UserID], *item)
	return nil
}

func (m *Memory) ListWatch(ctx context.Context, userID int64) ([]WatchItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]WatchItem(nil), m.watch[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) RemoveWatch(ctx context.Context, userID int64, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.watch[userID]
	for i, w := range items {
		if w.Code == code {
			m.watch[userID] = append(items[:i:i], items[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) CountWatch(ctx context.Context, userID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.watch[userID]), nil
}

func (m *Memory) AddAlert(ctx context.Context, a *PriceAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.id()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.UpdatedAt = a.CreatedAt
	a.Active, a.Triggered, a.TriggeredAt = true, false, null.Time{}
	m.alerts = append(m.alerts, *a)
	return nil
}

func (m *Memory) ListAlerts(ctx context.Context, userID int64) ([]PriceAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []PriceAlert
	for _, a := range m.alerts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) RemoveAlert(ctx context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.alerts {
		if a.ID == id && a.UserID == userID {
			m.alerts = append(m.alerts[:i:i], m.alerts[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) TriggerAlert(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		a := &m.alerts[i]
		if a.ID != id || !a.Active {
			continue
		}
		a.Active, a.Triggered = false, true
		a.TriggeredAt = null.TimeFrom(at)
		a.UpdatedAt = at
		return nil
	}
	return ErrNotFound
}

func (m *Memory) RecordSearch(ctx context.Context, rec *SearchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = m.id()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.UserAgent = truncate(rec.UserAgent, maxUA)
	m.searches = append(m.searches, *rec)
	return nil
}

func (m *Memory) ListSearches(ctx context.Context, userID int64, since time.Time, limit int) ([]SearchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SearchRecord
	for i := len(m.searches) - 1; i >= 0; i-- {
		r := m.searches[i]
		if !r.UserID.Valid || r.UserID.Int64 != userID || r.CreatedAt.Before(since) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
