package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"twquote/internal/account"
)

// exercise runs the same contract against any Store.
func exercise(t *testing.T, s Store) {
	ctx := t.Context()
	suffix := time.Now().Format("150405.000000")

	u := &account.User{Username: "alice" + suffix, Email: "alice" + suffix + "@example.com", Level: account.LevelFree, CreatedAt: time.Now().UTC(), Active: true}
	require.NoError(t, u.SetPassword("secret1"))
	require.NoError(t, s.CreateUser(ctx, u))
	require.NotZero(t, u.ID)

	dup := *u
	require.ErrorIs(t, s.CreateUser(ctx, &dup), account.ErrUsernameTaken)

	got, err := s.UserByUsername(ctx, u.Username)
	require.NoError(t, err)
	require.Equal(t, u.Email, got.Email)
	require.True(t, got.CheckPassword("secret1"))
	_, err = s.UserByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, account.ErrNotFound)

	login := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.TouchLogin(ctx, u.ID, login))
	got, err = s.UserByEmail(ctx, u.Email)
	require.NoError(t, err)
	require.True(t, got.LastLogin.Time.Equal(login))

	t0 := time.Date(2025, 3, 4, 1, 0, 0, 0, time.UTC)
	w := &WatchItem{UserID: u.ID, Code: "2330", Name: "台積電", AddedPrice: decimal.NewNullDecimal(decimal.NewFromInt(100)), CreatedAt: t0}
	require.NoError(t, s.AddWatch(ctx, w))
	require.ErrorIs(t, s.AddWatch(ctx, &WatchItem{UserID: u.ID, Code: "2330"}), ErrDuplicate)
	require.NoError(t, s.AddWatch(ctx, &WatchItem{UserID: u.ID, Code: "0050", CreatedAt: t0.Add(time.Minute)}))

	n, err := s.CountWatch(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	items, err := s.ListWatch(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "2330", items[0].Code)
	require.Equal(t, "100", items[0].AddedPrice.Decimal.String())

	require.NoError(t, s.RemoveWatch(ctx, u.ID, "2330"))
	require.ErrorIs(t, s.RemoveWatch(ctx, u.ID, "2330"), ErrNotFound)

	a := &PriceAlert{UserID: u.ID, Code: "2330", Name: "台積電", Kind: AlertAbove, Target: decimal.NewFromInt(600), Notes: "breakout", CreatedAt: t0}
	require.NoError(t, s.AddAlert(ctx, a))
	require.NotZero(t, a.ID)
	require.True(t, a.Active)
	b := &PriceAlert{UserID: u.ID, Code: "0050", Kind: AlertChangePercent, Target: decimal.NewFromInt(3), CreatedAt: t0.Add(time.Minute)}
	require.NoError(t, s.AddAlert(ctx, b))

	fired := t0.Add(time.Hour)
	require.NoError(t, s.TriggerAlert(ctx, a.ID, fired))
	require.ErrorIs(t, s.TriggerAlert(ctx, a.ID, fired), ErrNotFound)

	alerts, err := s.ListAlerts(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	require.Equal(t, AlertAbove, alerts[0].Kind)
	require.Equal(t, "600", alerts[0].Target.String())
	require.Equal(t, "breakout", alerts[0].Notes)
	require.False(t, alerts[0].Active)
	require.True(t, alerts[0].Triggered)
	require.True(t, alerts[0].TriggeredAt.Time.Equal(fired))
	require.True(t, alerts[1].Active)

	require.ErrorIs(t, s.RemoveAlert(ctx, u.ID+1000, b.ID), ErrNotFound)
	require.NoError(t, s.RemoveAlert(ctx, u.ID, b.ID))
	require.ErrorIs(t, s.RemoveAlert(ctx, u.ID, b.ID), ErrNotFound)

	for i, code := range []string{"2330", "2317", "2454"} {
		require.NoError(t, s.RecordSearch(ctx, &SearchRecord{
			UserID: null.IntFrom(u.ID), Code: code, CreatedAt: t0.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, s.RecordSearch(ctx, &SearchRecord{Code: "2330", IP: "127.0.0.1", CreatedAt: t0}))

	recs, err := s.ListSearches(ctx, u.ID, t0.Add(30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "2454", recs[0].Code)
	require.Equal(t, "2317", recs[1].Code)

	recs, err = s.ListSearches(ctx, u.ID, time.Time{}, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestMemory(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	exercise(t, s)
}

func TestMemory_TruncatesUserAgent(t *testing.T) {
	s := NewMemory()
	ua := make([]rune, 600)
	for i := range ua {
		ua[i] = 'x'
	}
	rec := &SearchRecord{Code: "2330", UserAgent: string(ua)}
	require.NoError(t, s.RecordSearch(t.Context(), rec))
	require.Len(t, rec.UserAgent, maxUA)
	require.False(t, rec.CreatedAt.IsZero())
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("TWQ_TEST_DSN")
	if dsn == "" {
		t.Skip("TWQ_TEST_DSN not set")
	}
	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()
	s, err := OpenPostgres(ctx, dsn, 10*time.Second, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	exercise(t, s)
}

func TestUniqueViolation(t *testing.T) {
	c, ok := uniqueViolation(&pq.Error{Code: "23505", Constraint: "users_email_key"})
	require.True(t, ok)
	require.Equal(t, "users_email_key", c)

	_, ok = uniqueViolation(&pq.Error{Code: "23503"})
	require.False(t, ok)
	_, ok = uniqueViolation(nil)
	require.False(t, ok)
}
