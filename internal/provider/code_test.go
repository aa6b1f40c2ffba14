package provider

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2330", "2330"},
		{"  2330 ", "2330"},
		{"2330.TW", "2330"},
		{"6488.TWO", "6488"},
		{"2330.tw", "2330"},
		{"6488.two", "6488"},
		{"00878", "00878"},
		{"2881a", "2881A"},
		{"23-30", "2330"},
		{"２３３０", "2330"},
		{"２３３０．ＴＷ", "2330"},
		{"　２３３０　", "2330"},
		{"台積電", ""},
		{"", ""},
		{"   ", ""},
		{".TW", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, NormalizeCode(tt.in))
		})
	}
}

func TestCacheKeys(t *testing.T) {
	require.Equal(t, "stock_basic_2330", QuoteCacheKey("2330"))
	require.Equal(t, "market_summary", MarketCacheKey)
}
