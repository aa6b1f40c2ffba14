package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"twquote/internal/provider"
)

type fake struct{ calls int }

func (f *fake) Name() provider.Source { return provider.SourceTWSERealtime }

func (f *fake) FetchQuote(ctx context.Context, code string) (provider.Quote, error) {
	f.calls++
	return provider.Quote{Code: code, LastPrice: decimal.NewNullDecimal(decimal.NewFromInt(1))}, nil
}

func (f *fake) FetchMarket(ctx context.Context) (provider.MarketSummary, error) {
	f.calls++
	return provider.MarketSummary{IndexName: "x"}, nil
}

func (f *fake) LookupName(ctx context.Context, code string) (string, error) {
	f.calls++
	return "台積電", nil
}

func TestSharedLimiter(t *testing.T) {
	f := &fake{}
	l := NewLimiter(time.Hour, 2)
	q := &Quotes{P: f, L: l}
	m := &Markets{P: f, L: l}
	n := &Names{P: f, L: l}

	require.Equal(t, provider.SourceTWSERealtime, q.Name())
	_, err := q.FetchQuote(t.Context(), "2330")
	require.NoError(t, err)
	name, err := n.LookupName(t.Context(), "2330")
	require.NoError(t, err)
	require.Equal(t, "台積電", name)

	// bucket is empty; the next wait cannot be satisfied before the deadline
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	_, err = m.FetchMarket(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, provider.ErrUnreachable)
	require.Equal(t, 2, f.calls)
}

func TestNoInterval(t *testing.T) {
	f := &fake{}
	q := &Quotes{P: f, L: NewLimiter(0, 0)}
	for range 10 {
		_, err := q.FetchQuote(t.Context(), "2330")
		require.NoError(t, err)
	}
	require.Equal(t, 10, f.calls)

	q.L = nil
	_, err := q.FetchQuote(t.Context(), "2330")
	require.NoError(t, err)
}
