package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/require"

	"twquote/internal/account"
	"twquote/internal/store"
	"twquote/internal/watchlist"
)

const signup = `{"username":"alice","email":"Alice@Example.com","password":"secret1","confirm_password":"secret1"}`

func TestRegister(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/api/register", signup)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var got registered
	require.NoError(t, json.Unmarshal(decodeAPI(t, rr).Data, &got))
	require.Equal(t, "alice@example.com", got.User.Email)
	require.Equal(t, account.LevelFree, got.User.Level)
	require.Equal(t, int64(10), got.Features.WatchlistLimit.Int64)
	require.NotContains(t, rr.Body.String(), "secret1")

	rr = f.do(t, http.MethodPost, "/api/register", signup)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/register", `{"username":"ab","email":"x","password":"1","confirm_password":"2"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	resp := decodeAPI(t, rr)
	require.Contains(t, resp.Errors, "username")
	require.Contains(t, resp.Errors, "email")
	require.Contains(t, resp.Errors, "password")
	require.Contains(t, resp.Errors, "confirm_password")
}

func TestWatchlist_RequiresAuth(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/api/watchlist", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Header().Get("WWW-Authenticate"), "Basic")

	f.do(t, http.MethodPost, "/api/register", signup)
	rr = f.do(t, http.MethodGet, "/api/watchlist", "", "alice", "wrong")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestWatchlist_AddListRemove(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/register", signup)

	rr := f.do(t, http.MethodPost, "/api/watchlist", `{"code":"2330.TW","notes":"core"}`, "alice", "secret1")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var item store.WatchItem
	require.NoError(t, json.Unmarshal(decodeAPI(t, rr).Data, &item))
	require.Equal(t, "2330", item.Code)
	require.Equal(t, "台積電", item.Name)
	require.Equal(t, "110", item.AddedPrice.Decimal.String())

	rr = f.do(t, http.MethodPost, "/api/watchlist", `{"code":"2330"}`, "alice", "secret1")
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/watchlist", `{"code":"9999"}`, "alice", "secret1")
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/watchlist", "", "alice", "secret1")
	require.Equal(t, http.StatusOK, rr.Code)
	var rows []watchlist.Row
	require.NoError(t, json.Unmarshal(decodeAPI(t, rr).Data, &rows))
	require.Len(t, rows, 2)
	require.Equal(t, "0", rows[0].Gain.Decimal.String())
	require.NotEmpty(t, rows[1].Error)

	rr = f.do(t, http.MethodDelete, "/api/watchlist/2330", "", "alice", "secret1")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = f.do(t, http.MethodDelete, "/api/watchlist/2330", "", "alice", "secret1")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestWatchlist_Limit(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/register", signup)
	for i := range 10 {
		rr := f.do(t, http.MethodPost, "/api/watchlist", fmt.Sprintf(`{"code":"%d"}`, 1000+i), "alice", "secret1")
		require.Equal(t, http.StatusCreated, rr.Code)
	}
	rr := f.do(t, http.MethodPost, "/api/watchlist", `{"code":"2330"}`, "alice", "secret1")
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/watchlist", `{"code":"  "}`, "alice", "secret1")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/register", signup)

	old := &store.SearchRecord{UserID: null.IntFrom(1), Code: "2317", CreatedAt: fixedNow.AddDate(0, 0, -30)}
	require.NoError(t, f.store.RecordSearch(t.Context(), old))
	for range 2 {
		f.do(t, http.MethodGet, "/api/stock/2330", "", "alice", "secret1")
	}

	rr := f.do(t, http.MethodGet, "/api/history", "", "alice", "secret1")
	require.Equal(t, http.StatusOK, rr.Code)
	var recs []store.SearchRecord
	require.NoError(t, json.Unmarshal(decodeAPI(t, rr).Data, &recs))
	require.Len(t, recs, 2)
	for _, r := range recs {
		require.Equal(t, "2330", r.Code)
		require.WithinDuration(t, fixedNow, r.CreatedAt, time.Second)
	}

	rr = f.do(t, http.MethodGet, "/api/history?distinct=1", "", "alice", "secret1")
	recs = nil
	require.NoError(t, json.Unmarshal(decodeAPI(t, rr).Data, &recs))
	require.Len(t, recs, 1)
}

func createUser(t *testing.T, f *fixture, name string, level account.Level) {
	t.Helper()
	u := &account.User{Username: name, Email: name + "@example.com", Level: level, CreatedAt: fixedNow, Active: true}
	require.NoError(t, u.SetPassword("secret1"))
	require.NoError(t, f.store.CreateUser(t.Context(), u))
}

func TestAlerts_PremiumOnly(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/register", signup)

	rr := f.do(t, http.MethodPost, "/api/alerts", `{"code":"2330","alert_type":"above","target_price":100}`, "alice", "secret1")
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/alerts", "").Code)
}

func TestAlerts_Validation(t *testing.T) {
	f := newFixture(t)
	createUser(t, f, "bob", account.LevelPremium)

	rr := f.do(t, http.MethodPost, "/api/alerts", `{"code":"2","alert_type":"sideways","target_price":0}`, "bob", "secret1")
	require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
	resp := decodeAPI(t, rr)
	require.Contains(t, resp.Errors, "code")
	require.Contains(t, resp.Errors, "alert_type")
	require.Contains(t, resp.Errors, "target_price")
}

func TestAlerts_FireOnList(t *testing.T) {
	f := newFixture(t)
	createUser(t, f, "bob", account.LevelPremium)

	for _, body := range []string{
		`{"code":"2330.TW","alert_type":"above","target_price":"105"}`,
		`{"code":"2330","alert_type":"below","target_price":100}`,
		`{"code":"2330","alert_type":"change_percent","target_price":4.5,"notes":"big move"}`,
	} {
		rr := f.do(t, http.MethodPost, "/api/alerts", body, "bob", "secret1")
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr := f.do(t, http.MethodGet, "/api/alerts", "", "bob", "secret1")
	require.Equal(t, http.StatusOK, rr.Code)
	var rows []watchlist.AlertRow
	require.NoError(t, json.Unmarshal(decodeAPI(t, rr).Data, &rows))
	require.Len(t, rows, 3)
	require.Equal(t, "台積電", rows[0].Name)
	require.True(t, rows[0].Fired)
	require.False(t, rows[1].Fired)
	require.True(t, rows[1].Active)
	require.True(t, rows[2].Fired)
	require.Equal(t, "110", rows[0].Price.Decimal.String())

	// fired alerts stay triggered and are not fired twice
	rr = f.do(t, http.MethodGet, "/api/alerts", "", "bob", "secret1")
	rows = nil
	require.NoError(t, json.Unmarshal(decodeAPI(t, rr).Data, &rows))
	require.False(t, rows[0].Fired)
	require.True(t, rows[0].Triggered)
	require.True(t, rows[0].TriggeredAt.Time.Equal(fixedNow))

	path := fmt.Sprintf("/api/alerts/%d", rows[1].ID)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, path, "", "bob", "secret1").Code)
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, path, "", "bob", "secret1").Code)
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/alerts/abc", "", "bob", "secret1").Code)
}
