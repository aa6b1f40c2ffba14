package twse

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"twquote/internal/httpx"
	"twquote/internal/provider"
)

const (
	defaultBaseURL      = "https://mis.twse.com.tw"
	defaultIndexChannel = "tse_FRMSA.tw|otc_FRMSA.tw"
)

// Config controls the TWSE MIS realtime provider.
type Config struct {
	BaseURL string
	// IndexChannel is the ex_ch value queried for the market summary; the
	// first entry in the reply is used.
	IndexChannel string
	IndexName    string
	Now          func() time.Time
}

// Realtime reads the exchange's live quote feed. It serves quotes, the
// market summary and display names.
type Realtime struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Realtime {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.IndexChannel == "" {
		cfg.IndexChannel = defaultIndexChannel
	}
	if cfg.IndexName == "" {
		cfg.IndexName = "台股指數"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Realtime{cfg: cfg, client: hc}
}

func (p *Realtime) Name() provider.Source { return provider.SourceTWSERealtime }

// FetchQuote asks for both the listed and the OTC channel; the first entry
// with a usable price wins.
func (p *Realtime) FetchQuote(ctx context.Context, code string) (provider.Quote, error) {
	rows, err := p.query(ctx, fmt.Sprintf("tse_%s.tw|otc_%s.tw", strings.ToLower(code), strings.ToLower(code)))
	if err != nil {
		return provider.Quote{}, err
	}
	for _, r := range rows {
		q := r.quote(code, p.cfg.Now())
		if q.Usable() {
			q.Normalize()
			return q, nil
		}
	}
	return provider.Quote{}, provider.Unknown(p.Name(), code)
}

// FetchMarket reads the configured index channel.
func (p *Realtime) FetchMarket(ctx context.Context) (provider.MarketSummary, error) {
	rows, err := p.query(ctx, p.cfg.IndexChannel)
	if err != nil {
		return provider.MarketSummary{}, err
	}
	r := rows[0]
	cur := provider.ParseDecimal(r.Z)
	prev := provider.ParseDecimal(r.Y)
	if !cur.Valid || !prev.Valid {
		return provider.MarketSummary{}, provider.Malformed(p.Name(), "index value %q / previous %q", r.Z, r.Y)
	}
	name := strings.TrimSpace(r.N)
	if name == "" {
		name = p.cfg.IndexName
	}
	m := provider.MarketSummary{
		IndexName:  name,
		IndexValue: cur,
		UpdatedAt:  p.cfg.Now(),
		Source:     p.Name(),
		Status:     provider.StatusLive,
	}
	m.ChangeAbs, m.ChangePct = provider.ChangeFromPrevious(cur, prev)
	return m, nil
}

// LookupName returns the exchange's short name for code.
func (p *Realtime) LookupName(ctx context.Context, code string) (string, error) {
	rows, err := p.query(ctx, fmt.Sprintf("tse_%s.tw|otc_%s.tw", strings.ToLower(code), strings.ToLower(code)))
	if err != nil {
		return "", err
	}
	for _, r := range rows {
		if n := strings.TrimSpace(r.N); n != "" {
			return n, nil
		}
	}
	return "", provider.Unknown(p.Name(), code)
}

func (p *Realtime) query(ctx context.Context, channel string) ([]row, error) {
	u := fmt.Sprintf("%s/stock/api/getStockInfo.jsp?ex_ch=%s&json=1&delay=0", p.cfg.BaseURL, url.QueryEscape(channel))
	var body response
	err := p.client.GetJSON(ctx, u, map[string]string{
		"Referer": p.cfg.BaseURL + "/",
		"Accept":  "application/json",
	}, &body)
	if err != nil {
		return nil, provider.FromHTTP(p.Name(), err)
	}
	if len(body.MsgArray) == 0 {
		return nil, provider.Unknown(p.Name(), channel)
	}
	return body.MsgArray, nil
}

type response struct {
	MsgArray []row  `json:"msgArray"`
	RtCode   string `json:"rtcode"`
	RtMsg    string `json:"rtmessage"`
}

// row keeps the feed's single-letter field names.
type row struct {
	C  string `json:"c"` // code
	N  string `json:"n"` // short name
	Z  string `json:"z"` // last trade
	O  string `json:"o"` // open
	H  string `json:"h"` // high
	L  string `json:"l"` // low
	V  string `json:"v"` // accumulated volume
	Y  string `json:"y"` // previous close
	D  string `json:"d"` // trade date yyyymmdd
	Ex string `json:"ex"`
}

func (r row) quote(code string, now time.Time) provider.Quote {
	last := provider.ParseDecimal(r.Z)
	return provider.Quote{
		Code:          code,
		Name:          strings.TrimSpace(r.N),
		LastPrice:     last,
		Close:         last,
		Open:          provider.ParseDecimal(r.O),
		High:          provider.ParseDecimal(r.H),
		Low:           provider.ParseDecimal(r.L),
		PreviousClose: provider.ParseDecimal(r.Y),
		Volume:        provider.ParseCount(r.V),
		TradeDate:     r.D,
		Source:        provider.SourceTWSERealtime,
		FetchedAt:     now,
	}
}
