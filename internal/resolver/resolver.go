// Package resolver turns a stock code into a quote by walking an ordered
// chain of providers behind a short-lived cache.
package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"twquote/internal/provider"
	"twquote/internal/provider/cache"
)

const DefaultTimeout = 15 * time.Second

// Attempt records one provider outcome.
type Attempt struct {
	Source provider.Source `json:"source"`
	Kind   string          `json:"kind"`
	Err    error           `json:"-"`
}

// QuoteResult is the outcome of ResolveQuote. On failure Quote is nil and
// Error holds a displayable message.
type QuoteResult struct {
	Success  bool            `json:"success"`
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Quote    *provider.Quote `json:"quote,omitempty"`
	Error    string          `json:"error,omitempty"`
	Cached   bool            `json:"cached"`
	Attempts []Attempt       `json:"attempts,omitempty"`
}

// Err returns ErrNoData for a failed result.
func (r QuoteResult) Err() error {
	if r.Success {
		return nil
	}
	return fmt.Errorf("%s: %w", r.Code, provider.ErrNoData)
}

// MarketSummaryResult always carries a summary; Summary.Status tells a live
// value from the placeholder.
type MarketSummaryResult struct {
	Success  bool                   `json:"success"`
	Summary  provider.MarketSummary `json:"summary"`
	Cached   bool                   `json:"cached"`
	Attempts []Attempt              `json:"attempts,omitempty"`
}

// Resolver tries Quotes and Markets strictly in order on every call.
// Concurrent misses for the same key each run the full chain unless
// Coalesce is set.
type Resolver struct {
	Quotes   []provider.QuoteProvider
	Markets  []provider.MarketProvider
	Names    *NameResolver
	Cache    cache.Store
	Timeout  time.Duration
	Coalesce bool
	Now      func() time.Time
	Log      zerolog.Logger

	group singleflight.Group
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// ResolveName delegates to the name chain.
func (r *Resolver) ResolveName(ctx context.Context, code string) string {
	code = provider.NormalizeCode(code)
	if code == "" {
		return ""
	}
	return r.Names.ResolveName(ctx, code)
}

// ResolveQuote normalizes raw, consults the cache and then each provider.
func (r *Resolver) ResolveQuote(ctx context.Context, raw string) QuoteResult {
	code := provider.NormalizeCode(raw)
	if code == "" {
		return QuoteResult{Code: code, Error: "請輸入有效的股票代碼"}
	}
	key := provider.QuoteCacheKey(code)

	var q provider.Quote
	if r.Cache != nil && r.Cache.Get(key, &q) && q.Usable() {
		r.Log.Debug().Str("key", key).Msg("cache hit")
		return QuoteResult{Success: true, Code: code, Name: q.Name, Quote: &q, Cached: true}
	}

	if !r.Coalesce {
		return r.resolveQuote(ctx, code, key)
	}
	v, _, _ := r.group.Do(key, func() (any, error) {
		return r.resolveQuote(ctx, code, key), nil
	})
	return v.(QuoteResult)
}

func (r *Resolver) resolveQuote(ctx context.Context, code, key string) QuoteResult {
	attempts := make([]Attempt, 0, len(r.Quotes))
	for _, p := range r.Quotes {
		q, err := r.fetchQuote(ctx, p, code)
		if err == nil && !q.Usable() {
			err = provider.Unknown(p.Name(), code)
		}
		attempts = append(attempts, Attempt{Source: p.Name(), Kind: provider.Kind(err), Err: err})
		if err != nil {
			r.Log.Warn().Err(err).Str("source", string(p.Name())).Str("kind", provider.Kind(err)).Str("code", code).Msg("provider failed")
			continue
		}

		q.Code = code
		if q.Source == "" {
			q.Source = p.Name()
		}
		if q.Name == "" {
			q.Name = r.Names.ResolveName(ctx, code)
		}
		if r.Cache != nil {
			r.Cache.Put(key, q)
		}
		r.Log.Debug().Str("source", string(q.Source)).Str("code", code).Msg("quote resolved")
		return QuoteResult{Success: true, Code: code, Name: q.Name, Quote: &q, Attempts: attempts}
	}

	return QuoteResult{
		Code:     code,
		Name:     r.Names.ResolveName(ctx, code),
		Error:    fmt.Sprintf("無法從任何資料來源獲取股票 %s 的資料", code),
		Attempts: attempts,
	}
}

func (r *Resolver) fetchQuote(ctx context.Context, p provider.QuoteProvider, code string) (q provider.Quote, err error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutOr(r.Timeout))
	defer cancel()
	defer recoverInto(&err)
	return p.FetchQuote(ctx, code)
}

// ResolveMarketSummary runs the market chain and falls back to a
// placeholder that is never cached.
func (r *Resolver) ResolveMarketSummary(ctx context.Context) MarketSummaryResult {
	var s provider.MarketSummary
	if r.Cache != nil && r.Cache.Get(provider.MarketCacheKey, &s) && s.Usable() {
		r.Log.Debug().Str("key", provider.MarketCacheKey).Msg("cache hit")
		return MarketSummaryResult{Success: true, Summary: s, Cached: true}
	}

	attempts := make([]Attempt, 0, len(r.Markets))
	for _, p := range r.Markets {
		s, err := r.fetchMarket(ctx, p)
		if err == nil && !s.Usable() {
			err = provider.Malformed(p.Name(), "index value unavailable")
		}
		attempts = append(attempts, Attempt{Source: p.Name(), Kind: provider.Kind(err), Err: err})
		if err != nil {
			r.Log.Warn().Err(err).Str("source", string(p.Name())).Str("kind", provider.Kind(err)).Msg("market provider failed")
			continue
		}
		if s.Source == "" {
			s.Source = p.Name()
		}
		if s.Status == "" {
			s.Status = provider.StatusLive
		}
		if r.Cache != nil {
			r.Cache.Put(provider.MarketCacheKey, s)
		}
		return MarketSummaryResult{Success: true, Summary: s, Attempts: attempts}
	}

	r.Log.Warn().Int("attempts", len(attempts)).Msg("all market providers failed, using placeholder")
	return MarketSummaryResult{Success: true, Summary: Simulated(r.now()), Attempts: attempts}
}

func (r *Resolver) fetchMarket(ctx context.Context, p provider.MarketProvider) (s provider.MarketSummary, err error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutOr(r.Timeout))
	defer cancel()
	defer recoverInto(&err)
	return p.FetchMarket(ctx)
}

// Simulated is the placeholder shown when no market provider answers.
func Simulated(now time.Time) provider.MarketSummary {
	s := provider.MarketSummary{
		IndexName:  "台股指數",
		IndexValue: decimal.NewNullDecimal(decimal.RequireFromString("18500.00")),
		ChangeAbs:  decimal.NewNullDecimal(decimal.RequireFromString("125.50")),
		Volume:     null.IntFrom(2156789000),
		UpdatedAt:  now,
		Source:     provider.SourceSimulated,
		Status:     provider.StatusSimulated,
	}
	s.Normalize()
	return s
}

func timeoutOr(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}

// recoverInto turns a provider panic into an unreachable error so the chain
// moves on.
func recoverInto(err *error) {
	if v := recover(); v != nil {
		*err = fmt.Errorf("provider panic: %v: %w", v, provider.ErrUnreachable)
	}
}
