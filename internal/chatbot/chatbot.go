// Package chatbot answers short Chinese questions about quotes and the market.
package chatbot

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"sort"
	"strings"

	"twquote/internal/format"
	"twquote/internal/resolver"
)

type QueryType string

const (
	QueryPrice  QueryType = "price"
	QueryChange QueryType = "change"
	QueryVolume QueryType = "volume"
	QueryBasic  QueryType = "basic"
)

// Resolver is the part of the quote resolver the bot needs.
type Resolver interface {
	ResolveQuote(ctx context.Context, code string) resolver.QuoteResult
	ResolveMarketSummary(ctx context.Context) resolver.MarketSummaryResult
}

var codePattern = regexp.MustCompile(`\b(\d{4,6})\b`)

type Bot struct {
	resolver Resolver
	kw       Keywords
	names    []string
	// Pick selects a greeting reply from n choices.
	Pick func(n int) int
}

func New(r Resolver, kw Keywords) *Bot {
	names := make([]string, 0, len(kw.Stocks))
	for n := range kw.Stocks {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return &Bot{resolver: r, kw: kw, names: names, Pick: rand.IntN}
}

// Reply answers one message. It never fails; problems become a reply.
func (b *Bot) Reply(ctx context.Context, msg string) string {
	msg = strings.TrimSpace(msg)
	switch {
	case b.isGreeting(msg):
		if len(b.kw.Replies) == 0 {
			return helpText
		}
		return b.kw.Replies[b.Pick(len(b.kw.Replies))]
	case containsAny(msg, b.kw.Market):
		return b.market(ctx)
	}
	if code, qt := b.Parse(msg); code != "" {
		return b.stock(ctx, code, qt)
	}
	return helpText
}

// Parse extracts a stock code and query type. Names win over digits.
func (b *Bot) Parse(msg string) (string, QueryType) {
	code := ""
	for _, n := range b.names {
		if strings.Contains(msg, n) {
			code = b.kw.Stocks[n]
			break
		}
	}
	if code == "" {
		if m := codePattern.FindStringSubmatch(msg); m != nil {
			code = m[1]
		}
	}
	if code == "" {
		return "", ""
	}
	for _, r := range b.kw.Queries {
		if containsAny(msg, r.Words) {
			return code, r.Type
		}
	}
	return code, QueryBasic
}

func (b *Bot) isGreeting(msg string) bool {
	return containsAny(strings.ToLower(msg), b.kw.Greetings)
}

func (b *Bot) market(ctx context.Context) string {
	res := b.resolver.ResolveMarketSummary(ctx)
	if !res.Success {
		return "抱歉，目前無法獲取大盤資訊，請稍後再試。"
	}
	m := res.Summary
	var sb strings.Builder
	sb.WriteString("📊 大盤資訊：\n")
	fmt.Fprintf(&sb, "• 加權指數：%s\n", format.Price(m.IndexValue))
	fmt.Fprintf(&sb, "• 漲跌：%s\n", format.Change(m.ChangeAbs))
	fmt.Fprintf(&sb, "• 漲跌幅：%s\n", format.Percent(m.ChangePct))
	fmt.Fprintf(&sb, "• 成交量：%s\n", format.Number(m.Volume))
	fmt.Fprintf(&sb, "• 更新時間：%s", m.UpdatedAt.Format("2006-01-02 15:04:05"))
	return sb.String()
}

func (b *Bot) stock(ctx context.Context, code string, qt QueryType) string {
	res := b.resolver.ResolveQuote(ctx, code)
	if !res.Success || res.Quote == nil {
		return fmt.Sprintf("抱歉，無法找到股票代碼 %s 的資訊。請確認代碼是否正確。", code)
	}
	q := res.Quote
	name := res.Name
	if name == "" {
		name = code
	}
	var sb strings.Builder
	line := func(label, v string) { fmt.Fprintf(&sb, "\n• %s：%s", label, v) }
	switch qt {
	case QueryPrice:
		fmt.Fprintf(&sb, "📈 %s (%s) 價格資訊：", name, res.Code)
		line("收盤價", format.Price(q.Price()))
		line("漲跌", format.Change(q.ChangeAbs))
		line("漲跌幅", format.Percent(q.ChangePct))
	case QueryChange:
		fmt.Fprintf(&sb, "📊 %s (%s) 漲跌資訊：", name, res.Code)
		line("漲跌", format.Change(q.ChangeAbs))
		line("漲跌幅", format.Percent(q.ChangePct))
	case QueryVolume:
		fmt.Fprintf(&sb, "💰 %s (%s) 成交資訊：", name, res.Code)
		line("成交量", format.Number(q.Volume))
		line("成交金額", format.Number(q.Amount))
	default:
		fmt.Fprintf(&sb, "📋 %s (%s) 基本資訊：", name, res.Code)
		line("收盤價", format.Price(q.Price()))
		line("漲跌", format.Change(q.ChangeAbs))
		line("漲跌幅", format.Percent(q.ChangePct))
		line("開盤價", format.Price(q.Open))
		line("最高價", format.Price(q.High))
		line("最低價", format.Price(q.Low))
		line("成交量", format.Number(q.Volume))
	}
	return sb.String()
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(s, w) {
			return true
		}
	}
	return false
}

const helpText = `🤖 我可以幫您查詢以下資訊：

📊 **大盤查詢**
• "大盤怎麼樣？"
• "加權指數多少？"

📈 **股票查詢**
• "台積電今天收盤多少？"
• "2330股價多少？"
• "鴻海漲跌幅如何？"
• "0050成交量多少？"

💡 **支援的股票**
台積電、鴻海、聯發科、台塑、中華電、富邦金、國泰金、台達電、廣達、元大台灣50、元大高股息等

您也可以直接輸入4-6位數的股票代碼進行查詢。`
