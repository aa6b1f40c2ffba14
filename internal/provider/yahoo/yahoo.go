package yahoo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"twquote/internal/provider"
)

// Config controls the Yahoo adapters.
type Config struct {
	// Suffixes are tried in order until one is known to Yahoo.
	// Listed shares use .TW and OTC shares .TWO.
	Suffixes []string
	// NameQuirks rewrites long English corporate names to their short form.
	NameQuirks map[string]string
	// FillFromQuote fills open/change gaps from the v7 quote endpoint.
	FillFromQuote bool
	Now           func() time.Time
}

// Chart builds quotes from the v8 chart endpoint.
type Chart struct {
	cfg    Config
	client *Client
}

func NewChart(cfg Config, client *Client) *Chart {
	if len(cfg.Suffixes) == 0 {
		cfg.Suffixes = []string{".TW", ".TWO"}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Chart{cfg: cfg, client: client}
}

func (c *Chart) Name() provider.Source { return provider.SourceYahooChart }

func (c *Chart) FetchQuote(ctx context.Context, code string) (provider.Quote, error) {
	res, symbol, err := c.chart(ctx, code)
	if err != nil {
		return provider.Quote{}, err
	}
	q := fromChart(code, res, c.cfg.Now())
	if !q.Usable() {
		return provider.Quote{}, provider.Unknown(c.Name(), code)
	}
	if c.cfg.FillFromQuote && (!q.Open.Valid || !q.PreviousClose.Valid) {
		// best effort; a failure here keeps the chart values
		if rows, err := c.client.Quote(ctx, symbol); err == nil {
			fillFromQuote(&q, rows[0])
		}
	}
	q.Normalize()
	return q, nil
}

// LookupName tries longName, shortName and displayName in that order.
func (c *Chart) LookupName(ctx context.Context, code string) (string, error) {
	res, _, err := c.chart(ctx, code)
	if err != nil {
		return "", err
	}
	for _, n := range []string{res.Meta.LongName, res.Meta.ShortName, res.Meta.DisplayName} {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		for long, short := range c.cfg.NameQuirks {
			if strings.EqualFold(n, long) || strings.HasPrefix(strings.ToUpper(n), strings.ToUpper(long)) {
				return short, nil
			}
		}
		return n, nil
	}
	return "", provider.Unknown(c.Name(), code)
}

func (c *Chart) chart(ctx context.Context, code string) (*ChartResult, string, error) {
	var lastErr error
	for _, suf := range c.cfg.Suffixes {
		sym := code + suf
		res, err := c.client.Chart(ctx, sym)
		if err == nil {
			return res, sym, nil
		}
		lastErr = err
		if !errors.Is(err, ErrNotFound) {
			break
		}
	}
	if errors.Is(lastErr, ErrNotFound) {
		return nil, "", provider.Unknown(c.Name(), code)
	}
	return nil, "", provider.FromHTTP(c.Name(), lastErr)
}

// fromChart prefers the meta block and falls back to the newest bar when the
// meta price is missing or older than that bar.
func fromChart(code string, res *ChartResult, now time.Time) provider.Quote {
	m := res.Meta
	q := provider.Quote{
		Code:      code,
		LastPrice: provider.FromFloat(m.RegularMarketPrice),
		Open:      provider.FromFloat(m.RegularMarketOpen),
		High:      provider.FromFloat(m.RegularMarketDayHigh),
		Low:       provider.FromFloat(m.RegularMarketDayLow),
		Volume:    provider.CountFromFloat(m.RegularMarketVolume),
		Source:    provider.SourceYahooChart,
		FetchedAt: now,
	}
	q.PreviousClose = firstValid(m.RegularMarketPreviousClose, m.PreviousClose, m.ChartPreviousClose)

	idx, barTime := latestBar(res)
	if idx >= 0 && (!q.LastPrice.Valid || (m.RegularMarketTime > 0 && m.RegularMarketTime < barTime)) {
		bars := res.Indicators.Quote[0]
		q.LastPrice = provider.FromFloat(at(bars.Close, idx))
		q.Open = provider.FromFloat(at(bars.Open, idx))
		q.High = provider.FromFloat(at(bars.High, idx))
		q.Low = provider.FromFloat(at(bars.Low, idx))
		q.Volume = provider.CountFromFloat(at(bars.Volume, idx))
		// the meta previous close belongs to the stale session; use the bar before
		if prev := previousClose(bars.Close, idx); prev.Valid {
			q.PreviousClose = prev
		}
	}
	q.Close = q.LastPrice
	if barTime > 0 {
		q.TradeDate = time.Unix(barTime, 0).In(taipei).Format("20060102")
	}
	return q
}

func fillFromQuote(q *provider.Quote, r QuoteResult) {
	if !q.Open.Valid {
		q.Open = provider.FromFloat(r.RegularMarketOpen)
	}
	if !q.High.Valid {
		q.High = provider.FromFloat(r.RegularMarketDayHigh)
	}
	if !q.Low.Valid {
		q.Low = provider.FromFloat(r.RegularMarketDayLow)
	}
	if !q.PreviousClose.Valid {
		q.PreviousClose = provider.FromFloat(r.RegularMarketPreviousClose)
	}
	if !q.PreviousClose.Valid && r.RegularMarketChange != nil {
		q.ChangeAbs = decimal.NewNullDecimal(decimal.NewFromFloat(*r.RegularMarketChange))
	}
}

func latestBar(res *ChartResult) (int, int64) {
	if len(res.Indicators.Quote) == 0 {
		return -1, 0
	}
	closes := res.Indicators.Quote[0].Close
	for i := len(closes) - 1; i >= 0; i-- {
		if closes[i] != nil && *closes[i] > 0 {
			var ts int64
			if i < len(res.Timestamp) {
				ts = res.Timestamp[i]
			}
			return i, ts
		}
	}
	return -1, 0
}

func previousClose(closes []*float64, idx int) decimal.NullDecimal {
	for i := idx - 1; i >= 0; i-- {
		if v := provider.FromFloat(closes[i]); v.Valid {
			return v
		}
	}
	return decimal.NullDecimal{}
}

func at(s []*float64, i int) *float64 {
	if i < 0 || i >= len(s) {
		return nil
	}
	return s[i]
}

func firstValid(vals ...*float64) decimal.NullDecimal {
	for _, v := range vals {
		if d := provider.FromFloat(v); d.Valid {
			return d
		}
	}
	return decimal.NullDecimal{}
}

var taipei = time.FixedZone("CST", 8*60*60)
