package watchlist

import (
	"context"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"twquote/internal/provider"
	"twquote/internal/store"
)

const (
	msgAlertCode   = "股票代號長度需在3-10字符之間"
	msgAlertKind   = "請選擇提醒類型"
	msgAlertTarget = "目標價格需大於0"
	msgAlertNotes  = "備註過長"
)

// AlertRequest is the body of a new price alert. Code is expected to be
// normalized already.
type AlertRequest struct {
	Code   string          `json:"code"`
	Kind   store.AlertKind `json:"alert_type"`
	Target decimal.Decimal `json:"target_price"`
	Notes  string          `json:"notes"`
}

func (r AlertRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Required.Error(msgAlertCode), validation.RuneLength(3, 10).Error(msgAlertCode)),
		validation.Field(&r.Kind, validation.Required.Error(msgAlertKind),
			validation.In(store.AlertAbove, store.AlertBelow, store.AlertChangePercent).Error(msgAlertKind)),
		validation.Field(&r.Target, validation.By(func(v any) error {
			if d, _ := v.(decimal.Decimal); !d.IsPositive() {
				return errors.New(msgAlertTarget)
			}
			return nil
		})),
		validation.Field(&r.Notes, validation.RuneLength(0, 500).Error(msgAlertNotes)),
	)
}

// Met reports whether q satisfies the alert's condition. Missing prices
// never satisfy it.
func Met(a store.PriceAlert, q provider.Quote) bool {
	switch a.Kind {
	case store.AlertAbove:
		p := q.Price()
		return p.Valid && p.Decimal.GreaterThanOrEqual(a.Target)
	case store.AlertBelow:
		p := q.Price()
		return p.Valid && p.Decimal.LessThanOrEqual(a.Target)
	case store.AlertChangePercent:
		return q.ChangePct.Valid && q.ChangePct.Decimal.Abs().GreaterThanOrEqual(a.Target)
	}
	return false
}

// AlertRow is an alert with the quote it was checked against. Fired is set
// only for alerts that met their condition on this check.
type AlertRow struct {
	store.PriceAlert
	Price     decimal.NullDecimal `json:"price"`
	ChangePct decimal.NullDecimal `json:"change_pct"`
	Fired     bool                `json:"fired"`
	Error     string              `json:"error,omitempty"`
}

// CheckAlerts evaluates every active alert against a fresh quote, looking
// each code up once. Fired rows come back already marked triggered at now;
// the caller persists that. Inactive alerts are returned without a lookup.
func CheckAlerts(ctx context.Context, q Quoter, alerts []store.PriceAlert, now time.Time) []AlertRow {
	var codes []string
	for _, a := range alerts {
		if a.Active {
			codes = append(codes, a.Code)
		}
	}
	quotes, failures := resolveAll(ctx, q, codes)

	out := make([]AlertRow, 0, len(alerts))
	for _, a := range alerts {
		r := AlertRow{PriceAlert: a}
		if !a.Active {
			out = append(out, r)
			continue
		}
		r.Error = failures[a.Code]
		if quote, ok := quotes[a.Code]; ok {
			r.Price = quote.Price()
			r.ChangePct = quote.ChangePct
			if Met(a, quote) {
				r.Fired = true
				r.Active, r.Triggered = false, true
				r.TriggeredAt.SetValid(now)
				r.UpdatedAt = now
			}
		}
		out = append(out, r)
	}
	return out
}
