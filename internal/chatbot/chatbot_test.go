package chatbot

import (
	"context"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"twquote/internal/provider"
	"twquote/internal/resolver"
)

type fakeResolver struct {
	quotes map[string]provider.Quote
	market *provider.MarketSummary
	asked  []string
}

func (f *fakeResolver) ResolveQuote(_ context.Context, code string) resolver.QuoteResult {
	f.asked = append(f.asked, code)
	q, ok := f.quotes[code]
	if !ok {
		return resolver.QuoteResult{Code: code, Name: code, Error: "no data"}
	}
	return resolver.QuoteResult{Success: true, Code: code, Name: q.Name, Quote: &q}
}

func (f *fakeResolver) ResolveMarketSummary(context.Context) resolver.MarketSummaryResult {
	if f.market == nil {
		return resolver.MarketSummaryResult{}
	}
	return resolver.MarketSummaryResult{Success: true, Summary: *f.market}
}

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func tsmc() provider.Quote {
	return provider.Quote{
		Code: "2330", Name: "台積電",
		LastPrice: dec("110"), Open: dec("106"), High: dec("111.5"), Low: dec("105.5"),
		ChangeAbs: dec("5"), ChangePct: dec("4.76"),
		Volume: null.IntFrom(34567000),
	}
}

func newBot(f *fakeResolver) *Bot {
	b := New(f, DefaultKeywords())
	b.Pick = func(int) int { return 1 }
	return b
}

func TestParse(t *testing.T) {
	b := newBot(&fakeResolver{})
	cases := []struct {
		msg  string
		code string
		qt   QueryType
	}{
		{"台積電今天收盤多少？", "2330", QueryPrice},
		{"2330股價多少？", "2330", QueryPrice},
		{"鴻海漲跌幅如何？", "2317", QueryChange},
		{"0050成交量多少？", "0050", QueryVolume},
		{"國泰永續高股息的資料", "00878", QueryBasic},
		{"富邦台50", "006208", QueryBasic},
		{"6488", "6488", QueryBasic},
		{"123", "", ""},
		{"股票 1234567", "", ""},
	}
	for _, c := range cases {
		code, qt := b.Parse(c.msg)
		require.Equal(t, c.code, code, c.msg)
		require.Equal(t, c.qt, qt, c.msg)
	}
}

func TestParse_LongestNameFirst(t *testing.T) {
	kw := DefaultKeywords()
	kw.Stocks["台積"] = "9999"
	b := New(&fakeResolver{}, kw)
	code, _ := b.Parse("台積電")
	require.Equal(t, "2330", code)
}

func TestReply_Greeting(t *testing.T) {
	f := &fakeResolver{}
	b := newBot(f)
	require.Equal(t, DefaultKeywords().Replies[1], b.Reply(t.Context(), "  Hello  "))
	require.Empty(t, f.asked)
}

func TestReply_Market(t *testing.T) {
	m := resolver.Simulated(time.Date(2025, 3, 4, 13, 30, 0, 0, time.UTC))
	b := newBot(&fakeResolver{market: &m})

	out := b.Reply(t.Context(), "大盤怎麼樣？")
	require.Contains(t, out, "加權指數：18,500.00")
	require.Contains(t, out, "漲跌：+125.50")
	require.Contains(t, out, "漲跌幅：+0.68%")
	require.Contains(t, out, "成交量：2,156,789,000")
	require.Contains(t, out, "2025-03-04 13:30:00")

	b = newBot(&fakeResolver{})
	require.Equal(t, "抱歉，目前無法獲取大盤資訊，請稍後再試。", b.Reply(t.Context(), "加權指數多少"))
}

func TestReply_Stock(t *testing.T) {
	f := &fakeResolver{quotes: map[string]provider.Quote{"2330": tsmc()}}
	b := newBot(f)

	out := b.Reply(t.Context(), "2330股價多少？")
	require.Equal(t, "📈 台積電 (2330) 價格資訊：\n• 收盤價：110.00\n• 漲跌：+5.00\n• 漲跌幅：+4.76%", out)

	out = b.Reply(t.Context(), "台積電成交量")
	require.Contains(t, out, "成交量：34,567,000")
	require.Contains(t, out, "成交金額：N/A")

	out = b.Reply(t.Context(), "台積電")
	require.Contains(t, out, "基本資訊")
	require.Contains(t, out, "最高價：111.50")
	require.Equal(t, []string{"2330", "2330", "2330"}, f.asked)
}

func TestReply_UnknownStockAndHelp(t *testing.T) {
	b := newBot(&fakeResolver{})
	require.Equal(t, "抱歉，無法找到股票代碼 9999 的資訊。請確認代碼是否正確。", b.Reply(t.Context(), "9999"))
	require.Equal(t, helpText, b.Reply(t.Context(), "天氣如何"))
}
