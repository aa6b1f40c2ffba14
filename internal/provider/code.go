package provider

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// exchangeSuffixes are stripped so "2330.TW" and "2330" share a cache key.
var exchangeSuffixes = []string{".TWO", ".TW"}

// NormalizeCode cleans user input into an exchange-local code. Full-width
// input from CJK keyboards is folded to ASCII first.
func NormalizeCode(raw string) string {
	s := strings.TrimSpace(width.Narrow.String(raw))
	up := strings.ToUpper(s)
	for _, suf := range exchangeSuffixes {
		if strings.HasSuffix(up, suf) {
			s = s[:len(s)-len(suf)]
			break
		}
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// QuoteCacheKey and MarketCacheKey namespace the two caches.
func QuoteCacheKey(code string) string { return "stock_basic_" + code }

const MarketCacheKey = "market_summary"
