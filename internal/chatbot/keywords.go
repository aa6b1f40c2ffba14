package chatbot

// Rule maps a query type to the words that select it.
type Rule struct {
	Type  QueryType
	Words []string
}

// Keywords is the data the bot matches messages against.
type Keywords struct {
	// Stocks maps display names to codes. Longer names are matched first.
	Stocks    map[string]string
	Greetings []string
	Replies   []string
	Market    []string
	// Queries are checked in order; the first rule with a matching word wins.
	Queries []Rule
}

// DefaultKeywords returns the built-in Traditional Chinese tables.
func DefaultKeywords() Keywords {
	return Keywords{
		Stocks: map[string]string{
			"台積電":      "2330",
			"鴻海":       "2317",
			"聯發科":      "2454",
			"台塑":       "1301",
			"中華電":      "2412",
			"富邦金":      "2881",
			"國泰金":      "2882",
			"台達電":      "2308",
			"廣達":       "2382",
			"元大台灣50":   "0050",
			"元大高股息":    "0056",
			"國泰永續高股息":  "00878",
			"群益台灣精選高息": "00919",
			"富邦台50":    "006208",
		},
		Greetings: []string{"你好", "您好", "hi", "hello", "哈囉", "嗨", "早安", "午安", "晚安"},
		Replies: []string{
			"您好！我是股票助手，可以幫您查詢股票資訊。",
			"歡迎使用股票查詢服務！請問有什麼可以幫您的嗎？",
			"Hi！我可以幫您查詢台股資訊，請告訴我您想了解的股票。",
		},
		Market: []string{"大盤", "加權指數", "台股指數", "市場", "整體"},
		Queries: []Rule{
			{QueryChange, []string{"漲跌", "漲幅", "跌幅", "變化"}},
			{QueryVolume, []string{"成交量", "交易量", "成交額"}},
			{QueryPrice, []string{"收盤價", "股價", "價格", "多少錢", "多少", "現價"}},
			{QueryBasic, []string{"資訊", "資料", "基本資料", "詳細"}},
		},
	}
}
