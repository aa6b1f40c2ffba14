package web

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"twquote/internal/provider"
)

func (s *Server) apiStock(w http.ResponseWriter, r *http.Request) {
	res := s.cfg.Resolver.ResolveQuote(r.Context(), r.PathValue("code"))
	if !res.Success {
		s.fail(w, http.StatusNotFound, res.Error)
		return
	}
	s.recordSearch(r, res)
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Data: res.Quote, Cached: res.Cached, Timestamp: s.cfg.Now()})
}

func (s *Server) apiMarket(w http.ResponseWriter, r *http.Request) {
	res := s.cfg.Resolver.ResolveMarketSummary(r.Context())
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Data: res.Summary, Cached: res.Cached, Timestamp: s.cfg.Now()})
}

type popularRow struct {
	Code      string              `json:"code"`
	Name      string              `json:"name"`
	Price     decimal.NullDecimal `json:"price"`
	ChangeAbs decimal.NullDecimal `json:"change_abs"`
	ChangePct decimal.NullDecimal `json:"change_pct"`
	Source    provider.Source     `json:"source"`
}

// popularConcurrency caps parallel lookups for /api/popular.
const popularConcurrency = 4

// apiPopular resolves the popular codes and drops the ones that fail.
func (s *Server) apiPopular(w http.ResponseWriter, r *http.Request) {
	rows := make([]*popularRow, len(s.cfg.Popular))
	var g errgroup.Group
	g.SetLimit(popularConcurrency)
	for i, p := range s.cfg.Popular {
		g.Go(func() error {
			res := s.cfg.Resolver.ResolveQuote(r.Context(), p.Code)
			if !res.Success {
				return nil
			}
			name := res.Name
			if name == "" {
				name = p.Name
			}
			rows[i] = &popularRow{
				Code:      res.Code,
				Name:      name,
				Price:     res.Quote.Price(),
				ChangeAbs: res.Quote.ChangeAbs,
				ChangePct: res.Quote.ChangePct,
				Source:    res.Quote.Source,
			}
			return nil
		})
	}
	_ = g.Wait()
	out := make([]popularRow, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			out = append(out, *row)
		}
	}
	s.ok(w, http.StatusOK, out)
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatReply struct {
	Reply string `json:"reply"`
}

func (s *Server) apiChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.fail(w, http.StatusBadRequest, "請輸入訊息")
		return
	}
	s.ok(w, http.StatusOK, chatReply{Reply: s.cfg.Bot.Reply(r.Context(), req.Message)})
}
