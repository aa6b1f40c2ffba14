// Package format renders quote values for pages and chat replies.
package format

import (
	"github.com/dustin/go-humanize"
	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

const NA = "N/A"

// Price renders a price with two decimals and thousands separators.
func Price(d decimal.NullDecimal) string {
	if !d.Valid {
		return NA
	}
	f, _ := d.Decimal.Round(2).Float64()
	return humanize.FormatFloat("#,###.##", f)
}

// Number renders a count with thousands separators.
func Number(n null.Int) string {
	if !n.Valid {
		return NA
	}
	return humanize.Comma(n.Int64)
}

// Change renders a signed change, "+5.00" or "-1.20".
func Change(d decimal.NullDecimal) string {
	if !d.Valid {
		return NA
	}
	s := Price(d)
	if d.Decimal.IsPositive() {
		return "+" + s
	}
	return s
}

// Percent renders a signed percentage, "+4.76%".
func Percent(d decimal.NullDecimal) string {
	if !d.Valid {
		return NA
	}
	return Change(d) + "%"
}

// ChangeClass maps the direction of a change to a CSS class.
func ChangeClass(d decimal.NullDecimal) string {
	switch {
	case !d.Valid || d.Decimal.IsZero():
		return "text-muted"
	case d.Decimal.IsPositive():
		return "text-success"
	default:
		return "text-danger"
	}
}
