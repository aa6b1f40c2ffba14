package provider

import (
	"context"
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// Source identifies the upstream a Quote or MarketSummary came from.
type Source string

const (
	SourceTWSERealtime Source = "twse_realtime"
	SourceYahooChart   Source = "yahoo_chart"
	SourceTWSEDaily    Source = "twse_daily"
	SourceFugle        Source = "fugle"
	SourceYahooQuote   Source = "yahoo_quote"
	SourceSimulated    Source = "simulated"
)

// Quote is the normalized snapshot every provider returns.
// Unavailable fields have Valid=false and render as null in JSON.
type Quote struct {
	Code          string              `json:"code"`
	Name          string              `json:"name"`
	LastPrice     decimal.NullDecimal `json:"last_price"`
	Close         decimal.NullDecimal `json:"close"`
	Open          decimal.NullDecimal `json:"open"`
	High          decimal.NullDecimal `json:"high"`
	Low           decimal.NullDecimal `json:"low"`
	PreviousClose decimal.NullDecimal `json:"previous_close"`
	ChangeAbs     decimal.NullDecimal `json:"change_abs"`
	ChangePct     decimal.NullDecimal `json:"change_pct"`
	Volume        null.Int            `json:"volume"`
	Amount        null.Int            `json:"amount"`
	Trades        null.Int            `json:"trades"`
	TradeDate     string              `json:"trade_date,omitempty"`
	Source        Source              `json:"source"`
	FetchedAt     time.Time           `json:"fetched_at"`
}

// Price is the live price when known, otherwise the close.
func (q Quote) Price() decimal.NullDecimal {
	if q.LastPrice.Valid {
		return q.LastPrice
	}
	return q.Close
}

// Usable reports whether the quote carries a concrete positive price.
func (q Quote) Usable() bool {
	return positive(q.LastPrice) || positive(q.Close)
}

const (
	StatusLive      = "live"
	StatusSimulated = "simulated"
)

// MarketSummary is the index-level counterpart of Quote.
type MarketSummary struct {
	IndexName  string              `json:"index_name"`
	IndexValue decimal.NullDecimal `json:"index_value"`
	ChangeAbs  decimal.NullDecimal `json:"change_abs"`
	ChangePct  decimal.NullDecimal `json:"change_pct"`
	Volume     null.Int            `json:"volume"`
	UpdatedAt  time.Time           `json:"updated_at"`
	Source     Source              `json:"source"`
	Status     string              `json:"status"`
}

func (m MarketSummary) Usable() bool { return positive(m.IndexValue) }

type QuoteProvider interface {
	Name() Source
	FetchQuote(ctx context.Context, code string) (Quote, error)
}

type MarketProvider interface {
	Name() Source
	FetchMarket(ctx context.Context) (MarketSummary, error)
}

// NameSource looks up a display name for a code. An empty name with a nil
// error is never returned; a miss is ErrUnknownInstrument.
type NameSource interface {
	LookupName(ctx context.Context, code string) (string, error)
}

func positive(d decimal.NullDecimal) bool {
	return d.Valid && d.Decimal.IsPositive()
}
