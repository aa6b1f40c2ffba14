// Package watchlist values a user's saved codes against current quotes,
// checks price alerts and collapses search history to one row per code.
package watchlist

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"twquote/internal/provider"
	"twquote/internal/resolver"
	"twquote/internal/store"
)

// Quoter is satisfied by *resolver.Resolver.
type Quoter interface {
	ResolveQuote(ctx context.Context, code string) resolver.QuoteResult
}

// Row is one valued watchlist entry. Gain fields are unavailable when either
// price is missing.
type Row struct {
	Code       string              `json:"code"`
	Name       string              `json:"name"`
	AddedPrice decimal.NullDecimal `json:"added_price"`
	Price      decimal.NullDecimal `json:"price"`
	ChangePct  decimal.NullDecimal `json:"change_pct"`
	Gain       decimal.NullDecimal `json:"gain"`
	GainPct    decimal.NullDecimal `json:"gain_pct"`
	Source     provider.Source     `json:"source,omitempty"`
	Notes      string              `json:"notes,omitempty"`
	AddedAt    time.Time           `json:"added_at"`
	Error      string              `json:"error,omitempty"`
}

var hundred = decimal.NewFromInt(100)

// Build joins items with quotes keyed by code. Rows keep the items' order.
func Build(items []store.WatchItem, quotes map[string]provider.Quote, failures map[string]string) []Row {
	out := make([]Row, 0, len(items))
	for _, it := range items {
		r := Row{
			Code:       it.Code,
			Name:       it.Name,
			AddedPrice: it.AddedPrice,
			Notes:      it.Notes,
			AddedAt:    it.CreatedAt,
			Error:      failures[it.Code],
		}
		if q, ok := quotes[it.Code]; ok {
			r.Price = q.Price()
			r.ChangePct = q.ChangePct
			r.Source = q.Source
			if q.Name != "" {
				r.Name = q.Name
			}
		}
		if r.Price.Valid && r.AddedPrice.Valid && r.AddedPrice.Decimal.IsPositive() {
			g := r.Price.Decimal.Sub(r.AddedPrice.Decimal)
			r.Gain = decimal.NewNullDecimal(g.Round(2))
			r.GainPct = decimal.NewNullDecimal(g.Div(r.AddedPrice.Decimal).Mul(hundred).Round(2))
		}
		out = append(out, r)
	}
	return out
}

// Valuate resolves every item one after another and builds the rows.
func Valuate(ctx context.Context, q Quoter, items []store.WatchItem) []Row {
	codes := make([]string, len(items))
	for i, it := range items {
		codes[i] = it.Code
	}
	quotes, failures := resolveAll(ctx, q, codes)
	return Build(items, quotes, failures)
}

// resolveAll looks each distinct code up once, in order.
func resolveAll(ctx context.Context, q Quoter, codes []string) (map[string]provider.Quote, map[string]string) {
	quotes := make(map[string]provider.Quote, len(codes))
	failures := map[string]string{}
	for _, code := range codes {
		_, done := quotes[code]
		_, failed := failures[code]
		if done || failed {
			continue
		}
		res := q.ResolveQuote(ctx, code)
		if !res.Success {
			failures[code] = res.Error
			continue
		}
		quotes[code] = *res.Quote
	}
	return quotes, failures
}

// LatestSearches keeps the newest record per code, newest first. For equal
// timestamps the later input wins. Zero timestamps count as now.
func LatestSearches(recs []store.SearchRecord) []store.SearchRecord {
	now := time.Now().UTC()
	latest := make(map[string]store.SearchRecord, len(recs))
	for _, r := range recs {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if cur, ok := latest[r.Code]; ok && r.CreatedAt.Before(cur.CreatedAt) {
			continue
		}
		latest[r.Code] = r
	}

	out := make([]store.SearchRecord, 0, len(latest))
	for _, v := range latest {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Code < out[j].Code
	})
	return out
}
