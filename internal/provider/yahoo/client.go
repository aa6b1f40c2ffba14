package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"twquote/internal/httpx"
)

const baseURL = "https://query1.finance.yahoo.com"

// ErrNotFound is returned when Yahoo has no such symbol.
var ErrNotFound = errors.New("symbol not found")

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=yahoo_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for the public Yahoo Finance chart and quote endpoints.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient is the HTTP client.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
}

// Option is a configuration option for the Yahoo client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// NewClient creates a new Yahoo client.
func NewClient(options ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		header: http.Header{
			"User-Agent": []string{httpx.DefaultUserAgent},
			"Accept":     []string{"application/json"},
		},
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Meta is the chart metadata block. Every number is optional upstream.
type Meta struct {
	Symbol                     string   `json:"symbol"`
	Currency                   string   `json:"currency"`
	LongName                   string   `json:"longName"`
	ShortName                  string   `json:"shortName"`
	DisplayName                string   `json:"displayName"`
	RegularMarketPrice         *float64 `json:"regularMarketPrice"`
	RegularMarketPreviousClose *float64 `json:"regularMarketPreviousClose"`
	PreviousClose              *float64 `json:"previousClose"`
	ChartPreviousClose         *float64 `json:"chartPreviousClose"`
	RegularMarketOpen          *float64 `json:"regularMarketOpen"`
	RegularMarketDayHigh       *float64 `json:"regularMarketDayHigh"`
	RegularMarketDayLow        *float64 `json:"regularMarketDayLow"`
	RegularMarketVolume        *float64 `json:"regularMarketVolume"`
	RegularMarketTime          int64    `json:"regularMarketTime"`
}

// Bars holds the OHLCV series; entries are null on halted intervals.
type Bars struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*float64 `json:"volume"`
}

type ChartResult struct {
	Meta       Meta    `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []Bars `json:"quote"`
	} `json:"indicators"`
}

type chartResponse struct {
	Chart struct {
		Result []ChartResult `json:"result"`
		Error  any           `json:"error"`
	} `json:"chart"`
}

// QuoteResult is one row of the v7 quote endpoint.
type QuoteResult struct {
	Symbol                     string   `json:"symbol"`
	LongName                   string   `json:"longName"`
	ShortName                  string   `json:"shortName"`
	RegularMarketPrice         *float64 `json:"regularMarketPrice"`
	RegularMarketChange        *float64 `json:"regularMarketChange"`
	RegularMarketChangePercent *float64 `json:"regularMarketChangePercent"`
	RegularMarketOpen          *float64 `json:"regularMarketOpen"`
	RegularMarketDayHigh       *float64 `json:"regularMarketDayHigh"`
	RegularMarketDayLow        *float64 `json:"regularMarketDayLow"`
	RegularMarketVolume        *float64 `json:"regularMarketVolume"`
	RegularMarketPreviousClose *float64 `json:"regularMarketPreviousClose"`
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []QuoteResult `json:"result"`
		Error  any           `json:"error"`
	} `json:"quoteResponse"`
}

// Chart retrieves the daily chart for symbol over the last five sessions.
func (c *Client) Chart(ctx context.Context, symbol string) (*ChartResult, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?range=5d&interval=1d", c.baseURL, url.PathEscape(symbol))
	var body chartResponse
	if err := c.get(ctx, u, &body); err != nil {
		return nil, err
	}
	if len(body.Chart.Result) == 0 {
		return nil, fmt.Errorf("chart %s: %w", symbol, ErrNotFound)
	}
	return &body.Chart.Result[0], nil
}

// Quote retrieves v7 quote rows for the given symbols.
func (c *Client) Quote(ctx context.Context, symbols ...string) ([]QuoteResult, error) {
	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))
	u := fmt.Sprintf("%s/v7/finance/quote?%s", c.baseURL, q.Encode())
	var body quoteResponse
	if err := c.get(ctx, u, &body); err != nil {
		return nil, err
	}
	if len(body.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("quote %s: %w", strings.Join(symbols, ","), ErrNotFound)
	}
	return body.QuoteResponse.Result, nil
}

func (c *Client) get(ctx context.Context, u string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break

	case http.StatusNotFound:
		return ErrNotFound

	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited")

	default:
		b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return &httpx.StatusError{URL: u, StatusCode: res.StatusCode, Body: string(b)}
	}

	if err := json.NewDecoder(res.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", httpx.ErrDecode, err)
	}
	return nil
}
