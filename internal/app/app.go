// Package app wires configured providers, the cache and the resolver.
package app

import (
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"twquote/internal/config"
	"twquote/internal/httpx"
	"twquote/internal/provider"
	"twquote/internal/provider/cache"
	"twquote/internal/provider/fugle"
	"twquote/internal/provider/ratelimit"
	"twquote/internal/provider/twse"
	"twquote/internal/provider/twseday"
	"twquote/internal/provider/yahoo"
	"twquote/internal/resolver"
)

// Market index symbols tried on Yahoo, in order.
const (
	yahooIndexPrimary = "^TWII"
	yahooIndexAlt     = "^TWSE"
	indexName         = "台股指數"
)

// NewCache builds the configured cache backend.
func NewCache(cfg config.Config, log zerolog.Logger) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "memory":
		return cache.NewMemory(cfg.CacheTTL(), cfg.Cache.MaxItems, log), nil
	default:
		f, err := cache.NewFile(cfg.Cache.Dir, cfg.CacheTTL(), log)
		if err != nil {
			return nil, fmt.Errorf("file cache: %w", err)
		}
		return f, nil
	}
}

func limiter(s config.Source) *rate.Limiter {
	if s.MinInterval() <= 0 {
		return nil
	}
	return ratelimit.NewLimiter(s.MinInterval(), s.Burst)
}

// NewResolver builds the quote, market and name chains in their fixed order:
// TWSE realtime, Yahoo chart, TWSE daily, Fugle.
func NewResolver(cfg config.Config, store cache.Store, log zerolog.Logger) *resolver.Resolver {
	hc := httpx.New(cfg.ProviderTimeout())
	p := cfg.Providers

	var (
		quotes  []provider.QuoteProvider
		markets []provider.MarketProvider
		names   []provider.NameSource
	)

	if p.TWSE.Enabled {
		rt := twse.New(twse.Config{BaseURL: p.TWSE.BaseURL, IndexChannel: p.IndexChannel, IndexName: indexName}, hc)
		if l := limiter(p.TWSE); l != nil {
			quotes = append(quotes, &ratelimit.Quotes{P: rt, L: l})
			markets = append(markets, &ratelimit.Markets{P: rt, L: l})
			names = append(names, &ratelimit.Names{P: rt, L: l})
		} else {
			quotes, markets, names = append(quotes, rt), append(markets, rt), append(names, rt)
		}
	}

	if p.Yahoo.Enabled {
		yc := yahoo.NewClient(yahoo.WithBaseURL(p.Yahoo.BaseURL), yahoo.WithHTTPClient(hc.HTTP))
		chart := yahoo.NewChart(yahoo.Config{NameQuirks: cfg.Names.Quirks, FillFromQuote: p.FillFromQuote}, yc)
		ym := []provider.MarketProvider{
			yahoo.NewChartMarket(yahooIndexPrimary, indexName, yc),
			yahoo.NewChartMarket(yahooIndexAlt, indexName, yc),
			yahoo.NewQuoteMarket(yahooIndexPrimary, indexName, yc),
		}
		if l := limiter(p.Yahoo); l != nil {
			quotes = append(quotes, &ratelimit.Quotes{P: chart, L: l})
			names = append(names, &ratelimit.Names{P: chart, L: l})
			for _, m := range ym {
				markets = append(markets, &ratelimit.Markets{P: m, L: l})
			}
		} else {
			quotes, names = append(quotes, chart), append(names, chart)
			markets = append(markets, ym...)
		}
	}

	if p.TWSEDaily.Enabled {
		var q provider.QuoteProvider = twseday.New(twseday.Config{BaseURL: p.TWSEDaily.BaseURL}, hc)
		if l := limiter(p.TWSEDaily); l != nil {
			q = &ratelimit.Quotes{P: q, L: l}
		}
		quotes = append(quotes, q)
	}

	if p.Fugle.Enabled {
		var q provider.QuoteProvider = fugle.New(fugle.Config{BaseURL: p.Fugle.BaseURL}, hc)
		if l := limiter(p.Fugle); l != nil {
			q = &ratelimit.Quotes{P: q, L: l}
		}
		quotes = append(quotes, q)
	}

	return &resolver.Resolver{
		Quotes:  quotes,
		Markets: markets,
		Names: &resolver.NameResolver{
			Sources: names,
			Table:   cfg.Names.Table,
			Timeout: cfg.ProviderTimeout(),
			Log:     log.With().Str("component", "names").Logger(),
		},
		Cache:    store,
		Timeout:  cfg.ProviderTimeout(),
		Coalesce: p.Coalesce,
		Log:      log.With().Str("component", "resolver").Logger(),
	}
}
