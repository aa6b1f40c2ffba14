package web

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"twquote/internal/provider"
	"twquote/internal/resolver"
)

type homeView struct {
	Market  provider.MarketSummary
	Popular []Popular
	Now     time.Time
}

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	m := s.cfg.Resolver.ResolveMarketSummary(r.Context())
	s.render(w, http.StatusOK, "home.html", homeView{
		Market:  m.Summary,
		Popular: s.cfg.Popular,
		Now:     s.cfg.Now(),
	})
}

type stockView struct {
	Code   string
	Result *resolver.QuoteResult
	Error  string
	Now    time.Time
}

func (s *Server) stockPage(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	data := stockView{Code: code, Now: s.cfg.Now()}
	if code == "" {
		data.Error = "請輸入股票代碼"
		s.render(w, http.StatusOK, "stock.html", data)
		return
	}
	res := s.cfg.Resolver.ResolveQuote(r.Context(), code)
	if res.Success {
		data.Result = &res
		s.recordSearch(r, res)
	} else {
		data.Error = res.Error
	}
	s.render(w, http.StatusOK, "stock.html", data)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/stock?code="+url.QueryEscape(q), http.StatusFound)
}
