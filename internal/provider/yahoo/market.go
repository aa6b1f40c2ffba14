package yahoo

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"twquote/internal/provider"
)

// ChartMarket reads an index from the chart endpoint, e.g. ^TWII.
type ChartMarket struct {
	Symbol    string
	IndexName string
	client    *Client
	now       func() time.Time
}

func NewChartMarket(symbol, indexName string, client *Client) *ChartMarket {
	return &ChartMarket{Symbol: symbol, IndexName: indexName, client: client, now: time.Now}
}

func (m *ChartMarket) Name() provider.Source { return provider.SourceYahooChart }

func (m *ChartMarket) FetchMarket(ctx context.Context) (provider.MarketSummary, error) {
	res, err := m.client.Chart(ctx, m.Symbol)
	if err != nil {
		return provider.MarketSummary{}, classify(m.Name(), m.Symbol, err)
	}
	cur := provider.FromFloat(res.Meta.RegularMarketPrice)
	prev := firstValid(res.Meta.RegularMarketPreviousClose, res.Meta.PreviousClose, res.Meta.ChartPreviousClose)
	if !cur.Valid || !prev.Valid {
		return provider.MarketSummary{}, provider.Malformed(m.Name(), "%s: missing price or previous close", m.Symbol)
	}
	s := provider.MarketSummary{
		IndexName:  m.IndexName,
		IndexValue: cur,
		Volume:     provider.CountFromFloat(res.Meta.RegularMarketVolume),
		UpdatedAt:  m.now(),
		Source:     m.Name(),
		Status:     provider.StatusLive,
	}
	s.ChangeAbs, s.ChangePct = provider.ChangeFromPrevious(cur, prev)
	return s, nil
}

// QuoteMarket reads an index from the v7 quote endpoint.
type QuoteMarket struct {
	Symbol    string
	IndexName string
	client    *Client
	now       func() time.Time
}

func NewQuoteMarket(symbol, indexName string, client *Client) *QuoteMarket {
	return &QuoteMarket{Symbol: symbol, IndexName: indexName, client: client, now: time.Now}
}

func (m *QuoteMarket) Name() provider.Source { return provider.SourceYahooQuote }

func (m *QuoteMarket) FetchMarket(ctx context.Context) (provider.MarketSummary, error) {
	rows, err := m.client.Quote(ctx, m.Symbol)
	if err != nil {
		return provider.MarketSummary{}, classify(m.Name(), m.Symbol, err)
	}
	r := rows[0]
	cur := provider.FromFloat(r.RegularMarketPrice)
	if !cur.Valid {
		return provider.MarketSummary{}, provider.Malformed(m.Name(), "%s: missing price", m.Symbol)
	}
	s := provider.MarketSummary{
		IndexName:  m.IndexName,
		IndexValue: cur,
		Volume:     provider.CountFromFloat(r.RegularMarketVolume),
		UpdatedAt:  m.now(),
		Source:     m.Name(),
		Status:     provider.StatusLive,
	}
	if r.RegularMarketChange != nil {
		s.ChangeAbs = decimal.NewNullDecimal(decimal.NewFromFloat(*r.RegularMarketChange))
		s.Normalize()
	}
	return s, nil
}

func classify(src provider.Source, symbol string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return provider.Unknown(src, symbol)
	}
	return provider.FromHTTP(src, err)
}
