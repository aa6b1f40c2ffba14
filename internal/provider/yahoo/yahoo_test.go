package yahoo_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"twquote/internal/provider"
	"twquote/internal/provider/yahoo"
)

var fixedNow = time.Date(2025, 3, 4, 6, 0, 0, 0, time.UTC)

func newChart(t *testing.T, cfg yahoo.Config, responses ...func(req *http.Request) (*http.Response, error)) *yahoo.Chart {
	t.Helper()
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	calls := make([]any, 0, len(responses))
	for _, r := range responses {
		calls = append(calls, httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(r).Times(1))
	}
	gomock.InOrder(calls...)
	cfg.Now = func() time.Time { return fixedNow }
	return yahoo.NewChart(cfg, yahoo.NewClient(yahoo.WithHTTPClient(httpClient)))
}

func reply(t *testing.T, path string, status int, body string) func(req *http.Request) (*http.Response, error) {
	return func(req *http.Request) (*http.Response, error) {
		require.Equal(t, path, req.URL.Path)
		return jsonResponse(status, body), nil
	}
}

func TestChartQuote_MetaFields(t *testing.T) {
	t.Parallel()

	c := newChart(t, yahoo.Config{},
		reply(t, "/v8/finance/chart/2330.TW", http.StatusOK, `{"chart":{"result":[{"meta":{
			"regularMarketPrice":110,"regularMarketPreviousClose":105,"regularMarketOpen":106,
			"regularMarketDayHigh":111,"regularMarketDayLow":104.5,"regularMarketVolume":23400000,
			"regularMarketTime":1741068000},
			"timestamp":[1740960000,1741046400],
			"indicators":{"quote":[{"close":[104,105],"open":[103,104],"high":[105,106],"low":[102,103],"volume":[1,2]}]}}]}}`),
	)

	q, err := c.FetchQuote(t.Context(), "2330")
	require.NoError(t, err)
	require.Equal(t, provider.SourceYahooChart, q.Source)
	require.Equal(t, "110", q.LastPrice.Decimal.String())
	require.Equal(t, "106", q.Open.Decimal.String())
	require.Equal(t, int64(23400000), q.Volume.Int64)
	require.Equal(t, "5", q.ChangeAbs.Decimal.String())
	require.Equal(t, "4.76", q.ChangePct.Decimal.String())
	require.Equal(t, fixedNow, q.FetchedAt)
}

func TestChartQuote_StaleMetaUsesLatestBar(t *testing.T) {
	t.Parallel()

	c := newChart(t, yahoo.Config{},
		reply(t, "/v8/finance/chart/2330.TW", http.StatusOK, `{"chart":{"result":[{"meta":{
			"regularMarketPrice":100,"chartPreviousClose":90,"regularMarketTime":1000},
			"timestamp":[500,2000,3000],
			"indicators":{"quote":[{"close":[95,102,null],"open":[94,96,null],"high":[96,103,null],"low":[93,95,null],"volume":[10,20,null]}]}}]}}`),
	)

	q, err := c.FetchQuote(t.Context(), "2330")
	require.NoError(t, err)
	require.Equal(t, "102", q.LastPrice.Decimal.String())
	require.Equal(t, "95", q.PreviousClose.Decimal.String())
	require.Equal(t, "7", q.ChangeAbs.Decimal.String())
	require.Equal(t, "7.37", q.ChangePct.Decimal.String())
	require.Equal(t, int64(20), q.Volume.Int64)
}

func TestChartQuote_FallsBackToOTCSuffix(t *testing.T) {
	t.Parallel()

	c := newChart(t, yahoo.Config{},
		reply(t, "/v8/finance/chart/6488.TW", http.StatusNotFound, `{"chart":{"result":null}}`),
		reply(t, "/v8/finance/chart/6488.TWO", http.StatusOK, `{"chart":{"result":[{"meta":{"regularMarketPrice":450,"previousClose":440}}]}}`),
	)

	q, err := c.FetchQuote(t.Context(), "6488")
	require.NoError(t, err)
	require.Equal(t, "450", q.Price().Decimal.String())
	require.Equal(t, "10", q.ChangeAbs.Decimal.String())
}

func TestChartQuote_FillsGapsFromQuoteEndpoint(t *testing.T) {
	t.Parallel()

	c := newChart(t, yahoo.Config{FillFromQuote: true},
		reply(t, "/v8/finance/chart/2330.TW", http.StatusOK, `{"chart":{"result":[{"meta":{"regularMarketPrice":110}}]}}`),
		reply(t, "/v7/finance/quote", http.StatusOK, `{"quoteResponse":{"result":[{"symbol":"2330.TW","regularMarketOpen":106,"regularMarketChange":5,"regularMarketChangePercent":9.99}]}}`),
	)

	q, err := c.FetchQuote(t.Context(), "2330")
	require.NoError(t, err)
	require.Equal(t, "106", q.Open.Decimal.String())
	require.Equal(t, "5", q.ChangeAbs.Decimal.String())
	// the provider's own percentage is ignored in favour of the shared rule
	require.Equal(t, "4.76", q.ChangePct.Decimal.String())
	require.Equal(t, "105", q.PreviousClose.Decimal.String())
}

func TestChartQuote_NoPriceIsUnknown(t *testing.T) {
	t.Parallel()

	c := newChart(t, yahoo.Config{},
		reply(t, "/v8/finance/chart/2330.TW", http.StatusOK, `{"chart":{"result":[{"meta":{"regularMarketPrice":0}}]}}`),
	)

	_, err := c.FetchQuote(t.Context(), "2330")
	require.ErrorIs(t, err, provider.ErrUnknownInstrument)
}

func TestChartQuote_ServerErrorIsUnreachable(t *testing.T) {
	t.Parallel()

	c := newChart(t, yahoo.Config{},
		reply(t, "/v8/finance/chart/2330.TW", http.StatusInternalServerError, `oops`),
	)

	_, err := c.FetchQuote(t.Context(), "2330")
	require.ErrorIs(t, err, provider.ErrUnreachable)
}

func TestLookupName_AppliesQuirks(t *testing.T) {
	t.Parallel()

	c := newChart(t, yahoo.Config{NameQuirks: map[string]string{"TAIWAN SEMICONDUCTOR MANUFACTUR": "台積電"}},
		reply(t, "/v8/finance/chart/2330.TW", http.StatusOK, `{"chart":{"result":[{"meta":{"shortName":"TAIWAN SEMICONDUCTOR MANUFACTUR"}}]}}`),
	)

	name, err := c.LookupName(t.Context(), "2330")
	require.NoError(t, err)
	require.Equal(t, "台積電", name)
}

func TestLookupName_PrefersLongName(t *testing.T) {
	t.Parallel()

	c := newChart(t, yahoo.Config{},
		reply(t, "/v8/finance/chart/2317.TW", http.StatusOK, `{"chart":{"result":[{"meta":{"longName":"Hon Hai Precision Industry Co., Ltd.","shortName":"HON HAI PRECISION INDUSTRY"}}]}}`),
	)

	name, err := c.LookupName(t.Context(), "2317")
	require.NoError(t, err)
	require.Equal(t, "Hon Hai Precision Industry Co., Ltd.", name)
}
