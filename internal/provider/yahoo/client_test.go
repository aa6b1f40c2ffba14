package yahoo_test

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"twquote/internal/httpx"
	"twquote/internal/provider/yahoo"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestWithBaseURL(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock http client
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	baseURL := "http://localhost:8080"

	// Assert: the request goes to the overridden host
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Truef(t, strings.HasPrefix(req.URL.String(), baseURL), "expected url to start with base url, received: %s", req.URL.String())
			require.Equal(t, "/v8/finance/chart/2330.TW", req.URL.Path)
			return jsonResponse(http.StatusOK, `{"chart":{"result":[{"meta":{"symbol":"2330.TW"}}]}}`), nil
		}).
		Times(1)

	// Act
	client := yahoo.NewClient(yahoo.WithHTTPClient(httpClient), yahoo.WithBaseURL(baseURL+"/"))
	res, err := client.Chart(t.Context(), "2330.TW")
	require.NoError(t, err)
	require.Equal(t, "2330.TW", res.Meta.Symbol)
}

func TestWithHeader(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "bar", req.Header.Get("foo"))
			require.NotEmpty(t, req.Header.Get("User-Agent"))
			require.Equal(t, "^TWII", req.URL.Query().Get("symbols"))
			return jsonResponse(http.StatusOK, `{"quoteResponse":{"result":[{"symbol":"^TWII","regularMarketPrice":20000}]}}`), nil
		}).
		Times(1)

	client := yahoo.NewClient(yahoo.WithHTTPClient(httpClient), yahoo.WithHeader(http.Header{
		"foo": []string{"bar"},
	}))
	rows, err := client.Quote(t.Context(), "^TWII")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.InEpsilon(t, 20000.0, *rows[0].RegularMarketPrice, 0.0001)
}

func TestChart_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		res   *http.Response
		err   error
		check func(t *testing.T, err error)
	}{
		{
			name: "not found status",
			res:  jsonResponse(http.StatusNotFound, `{"chart":{"result":null,"error":{"code":"Not Found"}}}`),
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, yahoo.ErrNotFound)
			},
		},
		{
			name: "empty result",
			res:  jsonResponse(http.StatusOK, `{"chart":{"result":[]}}`),
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, yahoo.ErrNotFound)
			},
		},
		{
			name: "bad body",
			res:  jsonResponse(http.StatusOK, `<html>`),
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, httpx.ErrDecode)
			},
		},
		{
			name: "server error",
			res:  jsonResponse(http.StatusBadGateway, `bad gateway`),
			check: func(t *testing.T, err error) {
				var se *httpx.StatusError
				require.True(t, errors.As(err, &se))
				require.Equal(t, http.StatusBadGateway, se.StatusCode)
			},
		},
		{
			name: "transport",
			err:  errors.New("connection reset"),
			check: func(t *testing.T, err error) {
				require.ErrorContains(t, err, "performing request")
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			httpClient := NewMockHTTPClient(ctrl)
			httpClient.EXPECT().Do(gomock.Any()).Return(tc.res, tc.err).Times(1)

			res, err := yahoo.NewClient(yahoo.WithHTTPClient(httpClient)).Chart(t.Context(), "9999.TW")
			require.Error(t, err)
			require.Nil(t, res)
			tc.check(t, err)
		})
	}
}

func TestChart_ErrCreatingRequest(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).Times(0)

	client := yahoo.NewClient(yahoo.WithHTTPClient(httpClient), yahoo.WithBaseURL(string([]rune{0x7f})))
	res, err := client.Chart(t.Context(), "2330.TW")
	require.ErrorContains(t, err, "creating request")
	require.Nil(t, res)
}
