// Package fugle is a best-effort secondary intraday source.
package fugle

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"twquote/internal/httpx"
	"twquote/internal/provider"
)

const defaultBaseURL = "https://api.fugle.tw"

type Config struct {
	BaseURL string
	Now     func() time.Time
}

type Intraday struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Intraday {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Intraday{cfg: cfg, client: hc}
}

func (f *Intraday) Name() provider.Source { return provider.SourceFugle }

type quoteResponse struct {
	Data *struct {
		Price         *float64 `json:"price"`
		Open          *float64 `json:"open"`
		High          *float64 `json:"high"`
		Low           *float64 `json:"low"`
		Volume        *float64 `json:"volume"`
		Change        *float64 `json:"change"`
		ChangePercent *float64 `json:"changePercent"`
	} `json:"data"`
}

// FetchQuote ignores the upstream changePercent; the percentage is derived
// from price and change like every other source.
func (f *Intraday) FetchQuote(ctx context.Context, code string) (provider.Quote, error) {
	u := fmt.Sprintf("%s/realtime/v0.3/intraday/quote?symbolId=%s", f.cfg.BaseURL, url.QueryEscape(code))
	var body quoteResponse
	if err := f.client.GetJSON(ctx, u, nil, &body); err != nil {
		return provider.Quote{}, provider.FromHTTP(f.Name(), err)
	}
	if body.Data == nil {
		return provider.Quote{}, provider.Unknown(f.Name(), code)
	}
	d := body.Data
	price := provider.FromFloat(d.Price)
	q := provider.Quote{
		Code:      code,
		LastPrice: price,
		Close:     price,
		Open:      provider.FromFloat(d.Open),
		High:      provider.FromFloat(d.High),
		Low:       provider.FromFloat(d.Low),
		Volume:    provider.CountFromFloat(d.Volume),
		Source:    f.Name(),
		FetchedAt: f.cfg.Now(),
	}
	if !q.Usable() {
		return provider.Quote{}, provider.Unknown(f.Name(), code)
	}
	if d.Change != nil {
		q.ChangeAbs = decimal.NewNullDecimal(decimal.NewFromFloat(*d.Change))
	}
	q.Normalize()
	return q, nil
}
