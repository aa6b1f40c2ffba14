package provider

import (
	"strconv"
	"strings"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// sentinels are upstream placeholders meaning "not available". A literal
// zero price is also treated as missing: no listed instrument trades at 0.
var sentinels = map[string]struct{}{
	"":     {},
	"0":    {},
	"-":    {},
	"--":   {},
	"n/a":  {},
	"null": {},
	"none": {},
}

// IsSentinel reports whether s is a placeholder rather than a number.
func IsSentinel(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if _, ok := sentinels[s]; ok {
		return true
	}
	// "0.0000" style zeros from the exchange feeds
	if d, err := decimal.NewFromString(s); err == nil && d.IsZero() {
		return true
	}
	return false
}

// ParseDecimal turns a provider string into a decimal, mapping sentinels and
// garbage to unavailable. Thousands separators are removed.
func ParseDecimal(s string) decimal.NullDecimal {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if IsSentinel(s) {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// ParseChange parses a signed change such as "+1.50". Zero is a real value
// here, and the TWSE daily report prefixes "X" on ex-dividend days.
func ParseChange(s string) decimal.NullDecimal {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "X"), "x")
	s = strings.TrimPrefix(s, "+")
	switch strings.ToLower(s) {
	case "", "-", "--", "n/a", "null":
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// FromFloat maps an optional JSON number; nil and zero are unavailable.
func FromFloat(f *float64) decimal.NullDecimal {
	if f == nil || *f == 0 {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*f))
}

// ParseCount parses an integer count such as volume. Zero counts as missing.
func ParseCount(s string) null.Int {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if IsSentinel(s) {
		return null.Int{}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return null.IntFrom(n)
	}
	// some feeds send "1234.0"
	if d, err := decimal.NewFromString(s); err == nil && !d.IsZero() {
		return null.IntFrom(d.IntPart())
	}
	return null.Int{}
}

// CountFromFloat maps an optional JSON count.
func CountFromFloat(f *float64) null.Int {
	if f == nil || *f <= 0 {
		return null.Int{}
	}
	return null.IntFrom(int64(*f))
}

var hundred = decimal.NewFromInt(100)

// ChangeFromPrevious derives change_abs from a reference price and a
// previous close, then the percentage through ChangeFromAbs.
func ChangeFromPrevious(ref, prev decimal.NullDecimal) (abs, pct decimal.NullDecimal) {
	if !ref.Valid || !prev.Valid || !prev.Decimal.IsPositive() {
		return decimal.NullDecimal{}, decimal.NullDecimal{}
	}
	return ChangeFromAbs(ref, decimal.NewNullDecimal(ref.Decimal.Sub(prev.Decimal)))
}

// ChangeFromAbs applies the one normalization rule used for every provider:
// previous_close = ref - change_abs, change_pct = change_abs / previous_close * 100,
// rounded to two places. A non-positive previous close makes both unavailable.
func ChangeFromAbs(ref, change decimal.NullDecimal) (abs, pct decimal.NullDecimal) {
	if !ref.Valid || !change.Valid {
		return decimal.NullDecimal{}, decimal.NullDecimal{}
	}
	prev := ref.Decimal.Sub(change.Decimal)
	if !prev.IsPositive() {
		return decimal.NullDecimal{}, decimal.NullDecimal{}
	}
	p := change.Decimal.Div(prev).Mul(hundred).Round(2)
	return decimal.NewNullDecimal(change.Decimal.Round(2)), decimal.NewNullDecimal(p)
}

// Normalize fills the change fields of q from whatever the provider gave:
// an explicit change wins, otherwise the previous close is used.
func (q *Quote) Normalize() {
	ref := q.Price()
	if q.ChangeAbs.Valid {
		q.ChangeAbs, q.ChangePct = ChangeFromAbs(ref, q.ChangeAbs)
	} else {
		q.ChangeAbs, q.ChangePct = ChangeFromPrevious(ref, q.PreviousClose)
	}
	if q.ChangeAbs.Valid && !q.PreviousClose.Valid {
		q.PreviousClose = decimal.NewNullDecimal(ref.Decimal.Sub(q.ChangeAbs.Decimal))
	}
}

// Normalize applies the same rule to an index summary.
func (m *MarketSummary) Normalize() {
	m.ChangeAbs, m.ChangePct = ChangeFromAbs(m.IndexValue, m.ChangeAbs)
}
