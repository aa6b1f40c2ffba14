// Package ratelimit gates calls to an upstream with a shared token bucket
// so one source is not hammered by quote, market and name lookups at once.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"twquote/internal/provider"
)

// NewLimiter allows one call per interval with the given burst. A
// non-positive interval means no limit.
func NewLimiter(interval time.Duration, burst int) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Every(interval), burst)
}

func wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	if err := l.Wait(ctx); err != nil {
		return &limitError{err: err}
	}
	return nil
}

// limitError is counted as an unreachable upstream by the resolver.
type limitError struct{ err error }

func (e *limitError) Error() string { return "rate limit wait: " + e.err.Error() }
func (e *limitError) Unwrap() []error {
	return []error{e.err, provider.ErrUnreachable}
}

// Quotes wraps a QuoteProvider.
type Quotes struct {
	P provider.QuoteProvider
	L *rate.Limiter
}

func (q *Quotes) Name() provider.Source { return q.P.Name() }

func (q *Quotes) FetchQuote(ctx context.Context, code string) (provider.Quote, error) {
	if err := wait(ctx, q.L); err != nil {
		return provider.Quote{}, err
	}
	return q.P.FetchQuote(ctx, code)
}

// Markets wraps a MarketProvider.
type Markets struct {
	P provider.MarketProvider
	L *rate.Limiter
}

func (m *Markets) Name() provider.Source { return m.P.Name() }

func (m *Markets) FetchMarket(ctx context.Context) (provider.MarketSummary, error) {
	if err := wait(ctx, m.L); err != nil {
		return provider.MarketSummary{}, err
	}
	return m.P.FetchMarket(ctx)
}

// Names wraps a NameSource.
type Names struct {
	P provider.NameSource
	L *rate.Limiter
}

func (n *Names) LookupName(ctx context.Context, code string) (string, error) {
	if err := wait(ctx, n.L); err != nil {
		return "", err
	}
	return n.P.LookupName(ctx, code)
}
