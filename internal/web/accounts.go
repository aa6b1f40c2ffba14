package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/guregu/null/v6"

	"twquote/internal/account"
	"twquote/internal/provider"
	"twquote/internal/resolver"
	"twquote/internal/store"
	"twquote/internal/watchlist"
)

type userKeyType struct{}

var userKey userKeyType

func userFrom(ctx context.Context) *account.User {
	u, _ := ctx.Value(userKey).(*account.User)
	return u
}

type registered struct {
	User     *account.User    `json:"user"`
	Features account.Features `json:"features"`
}

func (s *Server) apiRegister(w http.ResponseWriter, r *http.Request) {
	var reg account.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	u, err := s.cfg.Accounts.Register(r.Context(), reg)
	var verr account.ValidationError
	switch {
	case errors.As(err, &verr):
		s.writeJSON(w, http.StatusBadRequest, envelope{Error: "註冊資料有誤", Errors: verr, Timestamp: s.cfg.Now()})
	case errors.Is(err, account.ErrUsernameTaken):
		s.fail(w, http.StatusConflict, "用戶名已存在")
	case errors.Is(err, account.ErrEmailTaken):
		s.fail(w, http.StatusConflict, "電子信箱已被註冊")
	case err != nil:
		s.log.Error().Err(err).Msg("register")
		s.fail(w, http.StatusInternalServerError, "伺服器內部錯誤")
	default:
		s.ok(w, http.StatusCreated, registered{User: u, Features: u.Features()})
	}
}

// authed requires HTTP basic credentials.
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := s.authenticate(r)
		if u == nil {
			if err != nil && !errors.Is(err, account.ErrInvalidCredentials) && !errors.Is(err, account.ErrInactive) {
				s.log.Error().Err(err).Msg("authenticate")
			}
			w.Header().Set("WWW-Authenticate", `Basic realm="twquote"`)
			s.fail(w, http.StatusUnauthorized, "請先登入")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	}
}

// authenticate returns nil without error when no credentials were sent.
func (s *Server) authenticate(r *http.Request) (*account.User, error) {
	username, password, ok := r.BasicAuth()
	if !ok || s.cfg.Accounts == nil {
		return nil, nil
	}
	return s.cfg.Accounts.Authenticate(r.Context(), username, password)
}

type addWatch struct {
	Code  string `json:"code"`
	Notes string `json:"notes"`
}

func (s *Server) apiListWatch(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	items, err := s.cfg.Store.ListWatch(r.Context(), u.ID)
	if err != nil {
		s.serverError(w, r, "伺服器內部錯誤")
		return
	}
	s.ok(w, http.StatusOK, watchlist.Valuate(r.Context(), s.cfg.Resolver, items))
}

func (s *Server) apiAddWatch(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	var req addWatch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	code := provider.NormalizeCode(req.Code)
	if code == "" {
		s.fail(w, http.StatusBadRequest, "請輸入有效的股票代碼")
		return
	}
	if limit := u.Features().WatchlistLimit; limit.Valid {
		n, err := s.cfg.Store.CountWatch(r.Context(), u.ID)
		if err != nil {
			s.serverError(w, r, "伺服器內部錯誤")
			return
		}
		if int64(n) >= limit.Int64 {
			s.fail(w, http.StatusForbidden, "觀察清單已達上限 "+strconv.FormatInt(limit.Int64, 10)+" 檔")
			return
		}
	}

	res := s.cfg.Resolver.ResolveQuote(r.Context(), code)
	item := &store.WatchItem{UserID: u.ID, Code: code, Name: res.Name, Notes: req.Notes, CreatedAt: s.cfg.Now().UTC()}
	if res.Success {
		item.AddedPrice = res.Quote.Price()
	}
	err := s.cfg.Store.AddWatch(r.Context(), item)
	switch {
	case errors.Is(err, store.ErrDuplicate):
		s.fail(w, http.StatusConflict, "股票已在觀察清單中")
	case err != nil:
		s.serverError(w, r, "伺服器內部錯誤")
	default:
		s.ok(w, http.StatusCreated, item)
	}
}

func (s *Server) apiRemoveWatch(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	err := s.cfg.Store.RemoveWatch(r.Context(), u.ID, provider.NormalizeCode(r.PathValue("code")))
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.fail(w, http.StatusNotFound, "股票不在觀察清單中")
	case err != nil:
		s.serverError(w, r, "伺服器內部錯誤")
	default:
		s.ok(w, http.StatusOK, nil)
	}
}

func (s *Server) apiListAlerts(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	alerts, err := s.cfg.Store.ListAlerts(r.Context(), u.ID)
	if err != nil {
		s.serverError(w, r, "伺服器內部錯誤")
		return
	}
	now := s.cfg.Now().UTC()
	rows := watchlist.CheckAlerts(r.Context(), s.cfg.Resolver, alerts, now)
	for _, row := range rows {
		if !row.Fired {
			continue
		}
		if err := s.cfg.Store.TriggerAlert(r.Context(), row.ID, now); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.log.Warn().Err(err).Int64("alert", row.ID).Msg("trigger alert")
		}
	}
	s.ok(w, http.StatusOK, rows)
}

func (s *Server) apiAddAlert(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	if !u.Features().PriceAlerts {
		s.fail(w, http.StatusForbidden, "價格提醒為付費會員功能")
		return
	}
	var req watchlist.AlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Code = provider.NormalizeCode(req.Code)
	if err := req.Validate(); err != nil {
		var verr validation.Errors
		if !errors.As(err, &verr) {
			s.serverError(w, r, "伺服器內部錯誤")
			return
		}
		msgs := make(map[string]string, len(verr))
		for k, e := range verr {
			msgs[k] = e.Error()
		}
		s.writeJSON(w, http.StatusBadRequest, envelope{Error: "提醒設定有誤", Errors: msgs, Timestamp: s.cfg.Now()})
		return
	}

	res := s.cfg.Resolver.ResolveQuote(r.Context(), req.Code)
	a := &store.PriceAlert{
		UserID:    u.ID,
		Code:      req.Code,
		Name:      res.Name,
		Kind:      req.Kind,
		Target:    req.Target,
		Notes:     req.Notes,
		CreatedAt: s.cfg.Now().UTC(),
	}
	if err := s.cfg.Store.AddAlert(r.Context(), a); err != nil {
		s.serverError(w, r, "伺服器內部錯誤")
		return
	}
	s.ok(w, http.StatusCreated, a)
}

func (s *Server) apiRemoveAlert(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.fail(w, http.StatusNotFound, "找不到此提醒")
		return
	}
	err = s.cfg.Store.RemoveAlert(r.Context(), u.ID, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.fail(w, http.StatusNotFound, "找不到此提醒")
	case err != nil:
		s.serverError(w, r, "伺服器內部錯誤")
	default:
		s.ok(w, http.StatusOK, nil)
	}
}

const defaultHistoryLimit = 50

// apiHistory lists the caller's searches within their membership window.
// distinct=1 keeps only the newest lookup per code.
func (s *Server) apiHistory(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	limit := defaultHistoryLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	var since time.Time
	if days := u.Features().HistoryDays; days.Valid {
		since = s.cfg.Now().AddDate(0, 0, -int(days.Int64))
	}
	recs, err := s.cfg.Store.ListSearches(r.Context(), u.ID, since, limit)
	if err != nil {
		s.serverError(w, r, "伺服器內部錯誤")
		return
	}
	if d, _ := strconv.ParseBool(r.URL.Query().Get("distinct")); d {
		recs = watchlist.LatestSearches(recs)
	}
	s.ok(w, http.StatusOK, recs)
}

// recordSearch stores a successful lookup. Failures are logged only.
func (s *Server) recordSearch(r *http.Request, res resolver.QuoteResult) {
	if s.cfg.Store == nil {
		return
	}
	rec := &store.SearchRecord{
		Code:      res.Code,
		Name:      res.Name,
		Price:     res.Quote.Price(),
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		CreatedAt: s.cfg.Now().UTC(),
	}
	if u, _ := s.authenticate(r); u != nil {
		rec.UserID = null.IntFrom(u.ID)
	}
	if err := s.cfg.Store.RecordSearch(r.Context(), rec); err != nil {
		s.log.Warn().Err(err).Str("code", res.Code).Msg("record search")
	}
}
