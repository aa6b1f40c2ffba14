// Package store persists users, watchlists, price alerts and search history.
package store

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"

	"twquote/internal/account"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// WatchItem is one code on a user's watchlist; (UserID, Code) is unique.
type WatchItem struct {
	ID         int64               `json:"id"`
	UserID     int64               `json:"user_id"`
	Code       string              `json:"code"`
	Name       string              `json:"name"`
	AddedPrice decimal.NullDecimal `json:"added_price"`
	Notes      string              `json:"notes,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// AlertKind is the condition a PriceAlert watches for.
type AlertKind string

const (
	AlertAbove         AlertKind = "above"
	AlertBelow         AlertKind = "below"
	AlertChangePercent AlertKind = "change_percent"
)

// PriceAlert fires once when a quote meets its condition. For
// AlertChangePercent, Target is the absolute percentage move.
type PriceAlert struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Kind        AlertKind       `json:"alert_type"`
	Target      decimal.Decimal `json:"target_price"`
	Active      bool            `json:"is_active"`
	Triggered   bool            `json:"is_triggered"`
	TriggeredAt null.Time       `json:"triggered_at"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// SearchRecord is one quote lookup. UserID is null for anonymous visitors.
type SearchRecord struct {
	ID        int64               `json:"id"`
	UserID    null.Int            `json:"user_id"`
	Code      string              `json:"code"`
	Name      string              `json:"name"`
	Price     decimal.NullDecimal `json:"price"`
	IP        string              `json:"ip_address,omitempty"`
	UserAgent string              `json:"user_agent,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

type Store interface {
	account.Users
	io.Closer

	AddWatch(ctx context.Context, item *WatchItem) error
	ListWatch(ctx context.Context, userID int64) ([]WatchItem, error)
	RemoveWatch(ctx context.Context, userID int64, code string) error
	CountWatch(ctx context.Context, userID int64) (int, error)

	AddAlert(ctx context.Context, a *PriceAlert) error
	// ListAlerts returns a user's alerts, oldest first.
	ListAlerts(ctx context.Context, userID int64) ([]PriceAlert, error)
	RemoveAlert(ctx context.Context, userID, id int64) error
	// TriggerAlert marks an active alert fired and deactivates it.
	TriggerAlert(ctx context.Context, id int64, at time.Time) error

	RecordSearch(ctx context.Context, rec *SearchRecord) error
	// ListSearches returns a user's records newer than since, newest first.
	ListSearches(ctx context.Context, userID int64, since time.Time, limit int) ([]SearchRecord, error)
}

// maxUA matches the column width of search_history.user_agent.
const maxUA = 500

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
