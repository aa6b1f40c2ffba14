// Package twseday reads the exchange's monthly STOCK_DAY report and turns
// its newest row into an end-of-day quote.
package twseday

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"twquote/internal/httpx"
	"twquote/internal/provider"
)

const defaultBaseURL = "https://www.twse.com.tw"

// column offsets in a STOCK_DAY row
const (
	colDate = iota
	colShares
	colAmount
	colOpen
	colHigh
	colLow
	colClose
	colChange
	colTrades
)

type Config struct {
	BaseURL string
	Now     func() time.Time
}

// Daily is the end-of-day adapter. It has no live price, so quotes carry
// Close only.
type Daily struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Daily {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Daily{cfg: cfg, client: hc}
}

func (d *Daily) Name() provider.Source { return provider.SourceTWSEDaily }

type report struct {
	Stat   string     `json:"stat"`
	Title  string     `json:"title"`
	Fields []string   `json:"fields"`
	Data   [][]string `json:"data"`
}

// FetchQuote tries the current report path first and the legacy one second.
func (d *Daily) FetchQuote(ctx context.Context, code string) (provider.Quote, error) {
	now := d.cfg.Now()
	date := now.In(taipei).Format("20060102")
	urls := []string{
		fmt.Sprintf("%s/rwd/zh/afterTrading/STOCK_DAY?date=%s&stockNo=%s&response=json", d.cfg.BaseURL, date, url.QueryEscape(code)),
		fmt.Sprintf("%s/exchangeReport/STOCK_DAY?response=json&date=%s&stockNo=%s", d.cfg.BaseURL, date, url.QueryEscape(code)),
	}

	var lastErr error
	for _, u := range urls {
		var rep report
		if err := d.client.GetJSON(ctx, u, nil, &rep); err != nil {
			lastErr = provider.FromHTTP(d.Name(), err)
			continue
		}
		if rep.Stat != "OK" || len(rep.Data) == 0 {
			lastErr = provider.Unknown(d.Name(), code)
			continue
		}
		q, err := fromRow(code, rep.Data[len(rep.Data)-1], now)
		if err != nil {
			lastErr = err
			continue
		}
		return q, nil
	}
	return provider.Quote{}, lastErr
}

func fromRow(code string, row []string, now time.Time) (provider.Quote, error) {
	if len(row) <= colClose {
		return provider.Quote{}, provider.Malformed(provider.SourceTWSEDaily, "%s: short row of %d columns", code, len(row))
	}
	q := provider.Quote{
		Code:      code,
		Close:     provider.ParseDecimal(row[colClose]),
		Open:      provider.ParseDecimal(row[colOpen]),
		High:      provider.ParseDecimal(row[colHigh]),
		Low:       provider.ParseDecimal(row[colLow]),
		Volume:    provider.ParseCount(row[colShares]),
		Amount:    provider.ParseCount(row[colAmount]),
		TradeDate: rocDate(row[colDate]),
		Source:    provider.SourceTWSEDaily,
		FetchedAt: now,
	}
	if len(row) > colChange {
		q.ChangeAbs = provider.ParseChange(row[colChange])
	}
	if len(row) > colTrades {
		q.Trades = provider.ParseCount(row[colTrades])
	}
	if !q.Usable() {
		return provider.Quote{}, provider.Unknown(provider.SourceTWSEDaily, code)
	}
	q.Normalize()
	return q, nil
}

// rocDate turns "114/03/04" into "20250304". Anything else is returned as is.
func rocDate(s string) string {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return strings.TrimSpace(s)
	}
	y, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	d, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return strings.TrimSpace(s)
	}
	return fmt.Sprintf("%04d%02d%02d", y+1911, m, d)
}

var taipei = time.FixedZone("CST", 8*60*60)
