// Package web serves the quote pages, the JSON API and the account endpoints.
package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"twquote/internal/account"
	"twquote/internal/format"
	"twquote/internal/resolver"
	"twquote/internal/store"
)

// Resolver is satisfied by *resolver.Resolver.
type Resolver interface {
	ResolveQuote(ctx context.Context, code string) resolver.QuoteResult
	ResolveMarketSummary(ctx context.Context) resolver.MarketSummaryResult
}

// Replier answers chat messages.
type Replier interface {
	Reply(ctx context.Context, msg string) string
}

// Popular is one entry of the home page list.
type Popular struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type Config struct {
	Resolver Resolver
	Bot      Replier
	Accounts *account.Service
	Store    store.Store
	Popular  []Popular
	// RequestTimeout bounds each request; zero disables it.
	RequestTimeout time.Duration
	Log            zerolog.Logger
	Now            func() time.Time
}

type Server struct {
	cfg   Config
	log   zerolog.Logger
	pages map[string]*template.Template
}

//go:embed templates/*.html
var templateFS embed.FS

var funcs = template.FuncMap{
	"formatNumber":  format.Number,
	"formatPrice":   format.Price,
	"formatChange":  format.Change,
	"formatPercent": format.Percent,
	"changeClass":   format.ChangeClass,
}

func New(cfg Config) (*Server, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	pages := map[string]*template.Template{}
	for _, name := range []string{"home.html", "stock.html", "error.html"} {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, err
		}
		pages[name] = t
	}
	return &Server{
		cfg:   cfg,
		log:   cfg.Log.With().Str("component", "web").Logger(),
		pages: pages,
	}, nil
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /{$}", s.home)
	mux.HandleFunc("GET /stock", s.stockPage)
	mux.HandleFunc("GET /search", s.search)

	mux.HandleFunc("GET /api/stock/{code}", s.apiStock)
	mux.HandleFunc("GET /api/market", s.apiMarket)
	mux.HandleFunc("GET /api/popular", s.apiPopular)
	mux.HandleFunc("POST /api/chat", s.apiChat)

	mux.HandleFunc("POST /api/register", s.apiRegister)
	mux.HandleFunc("GET /api/watchlist", s.authed(s.apiListWatch))
	mux.HandleFunc("POST /api/watchlist", s.authed(s.apiAddWatch))
	mux.HandleFunc("DELETE /api/watchlist/{code}", s.authed(s.apiRemoveWatch))
	mux.HandleFunc("GET /api/alerts", s.authed(s.apiListAlerts))
	mux.HandleFunc("POST /api/alerts", s.authed(s.apiAddAlert))
	mux.HandleFunc("DELETE /api/alerts/{id}", s.authed(s.apiRemoveAlert))
	mux.HandleFunc("GET /api/history", s.authed(s.apiHistory))

	mux.HandleFunc("/", s.notFound)

	var h http.Handler = mux
	h = limitBody(h)
	h = s.recoverPanic(h)
	h = withTimeout(s.cfg.RequestTimeout, h)
	h = withGzip(h)
	h = withCORS(h)
	h = withLogging(s.log, h)
	return withRequestID(h)
}

type envelope struct {
	Success   bool              `json:"success"`
	Data      any               `json:"data,omitempty"`
	Error     string            `json:"error,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
	Cached    bool              `json:"cached,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func (s *Server) ok(w http.ResponseWriter, status int, data any) {
	s.writeJSON(w, status, envelope{Success: true, Data: data, Timestamp: s.cfg.Now()})
}

func (s *Server) fail(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, envelope{Error: msg, Timestamp: s.cfg.Now()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("encode response")
	}
}

func (s *Server) render(w http.ResponseWriter, status int, page string, data any) {
	var buf bytes.Buffer
	if err := s.pages[page].Execute(&buf, data); err != nil {
		s.log.Error().Err(err).Str("page", page).Msg("render")
		http.Error(w, "伺服器內部錯誤", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

type errorPage struct {
	Code    int
	Message string
}

func isAPI(r *http.Request) bool { return strings.HasPrefix(r.URL.Path, "/api/") }

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	if isAPI(r) {
		s.fail(w, http.StatusNotFound, "頁面不存在")
		return
	}
	s.render(w, http.StatusNotFound, "error.html", errorPage{http.StatusNotFound, "頁面不存在"})
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, msg string) {
	if isAPI(r) {
		s.fail(w, http.StatusInternalServerError, msg)
		return
	}
	s.render(w, http.StatusInternalServerError, "error.html", errorPage{http.StatusInternalServerError, msg})
}

// clientIP prefers the first X-Forwarded-For hop.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
