package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"twquote/internal/app"
	"twquote/internal/config"
	"twquote/internal/logging"
	"twquote/internal/provider/cache"
	"twquote/internal/resolver"
)

type output struct {
	Quotes []resolver.QuoteResult       `json:"quotes,omitempty"`
	Market *resolver.MarketSummaryResult `json:"market,omitempty"`
}

func main() {
	var (
		codesCSV   string
		market     bool
		popular    bool
		useCache   bool
		timeoutSec int
		configPath string
	)
	flag.StringVar(&codesCSV, "codes", "", "comma-separated stock codes, e.g. 2330,0050")
	flag.BoolVar(&market, "market", false, "include the market summary")
	flag.BoolVar(&popular, "popular", false, "resolve the configured popular codes")
	flag.BoolVar(&useCache, "cache", false, "read and write the configured cache")
	flag.IntVar(&timeoutSec, "timeout", 60, "overall timeout seconds")
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json or config.yaml (optional)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}

	codes := splitCSV(codesCSV)
	codes = append(codes, flag.Args()...)
	if popular {
		codes = append(codes, cfg.Server.Popular...)
	}
	if len(codes) == 0 && !market {
		log.Fatal().Msg("nothing to fetch; pass -codes, -popular or -market")
	}

	var store cache.Store = cache.NewMemory(0, 0, log)
	if useCache {
		if store, err = app.NewCache(cfg, log); err != nil {
			log.Fatal().Err(err).Msg("cache")
		}
	}
	res := app.NewResolver(cfg, store, log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
	defer cancel()

	// fan out one goroutine per code; results keep the input order
	type result struct {
		idx int
		res resolver.QuoteResult
	}
	ch := make(chan result, len(codes))
	for i, code := range codes {
		go func() {
			ch <- result{i, res.ResolveQuote(ctx, code)}
		}()
	}
	var out output
	out.Quotes = make([]resolver.QuoteResult, len(codes))
	failed := 0
	for range codes {
		r := <-ch
		out.Quotes[r.idx] = r.res
		if !r.res.Success {
			failed++
			log.Warn().Str("code", r.res.Code).Str("error", r.res.Error).Msg("no data")
		}
	}
	if market {
		m := res.ResolveMarketSummary(ctx)
		out.Market = &m
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal().Err(err).Msg("encode")
	}
	if failed > 0 && failed == len(codes) {
		os.Exit(2)
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
