package watchlist

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"twquote/internal/provider"
	"twquote/internal/resolver"
	"twquote/internal/store"
)

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

type fakeQuoter struct {
	quotes map[string]provider.Quote
	calls  map[string]int
}

func (f *fakeQuoter) ResolveQuote(ctx context.Context, code string) resolver.QuoteResult {
	f.calls[code]++
	q, ok := f.quotes[code]
	if !ok {
		return resolver.QuoteResult{Code: code, Error: "無法從任何資料來源獲取股票 " + code + " 的資料"}
	}
	return resolver.QuoteResult{Success: true, Code: code, Name: q.Name, Quote: &q}
}

func TestValuate_GainAgainstAddedPrice(t *testing.T) {
	f := &fakeQuoter{
		quotes: map[string]provider.Quote{
			"2330": {Name: "台積電", LastPrice: dec("110"), ChangePct: dec("4.76"), Source: provider.SourceTWSERealtime},
			"0050": {Close: dec("150"), Source: provider.SourceTWSEDaily},
		},
		calls: map[string]int{},
	}
	items := []store.WatchItem{
		{Code: "2330", Name: "old name", AddedPrice: dec("100")},
		{Code: "0050", Name: "元大台灣50"},
		{Code: "9999", AddedPrice: dec("10")},
		{Code: "2330", AddedPrice: dec("120")},
	}

	rows := Valuate(t.Context(), f, items)
	if len(rows) != 4 {
		t.Fatalf("want 4 rows, got %d: %+v", len(rows), rows)
	}
	if f.calls["2330"] != 1 {
		t.Fatalf("want one lookup per code, got %d", f.calls["2330"])
	}

	r := rows[0]
	if r.Name != "台積電" || r.Price.Decimal.String() != "110" || r.Gain.Decimal.String() != "10" || r.GainPct.Decimal.String() != "10" {
		t.Fatalf("unexpected row: %+v", r)
	}
	if r.Source != provider.SourceTWSERealtime || r.ChangePct.Decimal.String() != "4.76" {
		t.Fatalf("unexpected quote fields: %+v", r)
	}

	r = rows[1]
	if r.Price.Decimal.String() != "150" || r.Gain.Valid || r.Name != "元大台灣50" {
		t.Fatalf("row without added price: %+v", r)
	}

	r = rows[2]
	if r.Price.Valid || r.Gain.Valid || r.Error == "" {
		t.Fatalf("failed lookup should carry an error: %+v", r)
	}

	r = rows[3]
	if r.Gain.Decimal.String() != "-10" || r.GainPct.Decimal.String() != "-8.33" {
		t.Fatalf("loss row: %+v", r)
	}
}

func TestLatestSearches_NewestWinsPerCode(t *testing.T) {
	t1 := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	in := []store.SearchRecord{
		{Code: "2330", Price: dec("100"), CreatedAt: t1},
		{Code: "2317", CreatedAt: t1},
		{Code: "2330", Price: dec("110"), CreatedAt: t2},
		{Code: "2317", Name: "later input", CreatedAt: t1},
	}

	out := LatestSearches(in)
	if len(out) != 2 {
		t.Fatalf("want 2, got %d: %+v", len(out), out)
	}
	if out[0].Code != "2330" || out[0].Price.Decimal.String() != "110" {
		t.Fatalf("newest first: %+v", out)
	}
	if out[1].Name != "later input" {
		t.Fatalf("equal timestamps should keep later input: %+v", out[1])
	}
}

func TestLatestSearches_ZeroTimestamp(t *testing.T) {
	t1 := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	out := LatestSearches([]store.SearchRecord{{Code: "2330", CreatedAt: t1}, {Code: "2330", Name: "now"}})
	if len(out) != 1 || out[0].Name != "now" || out[0].CreatedAt.IsZero() {
		t.Fatalf("zero timestamp counts as now: %+v", out)
	}
}
