package coingecko

import (
	"errors"
	"net/http"
	"net/url"
)

const (
	baseURL    = "https://api.coingecko.com/api/v3"
	proBaseURL = "https://pro-api.coingecko.com/api/v3"
)

// ErrRateLimited is returned when the API answers 429.
var ErrRateLimited = errors.New("rate limited")

// HTTPClient is the subset of *http.Client the API client needs.
//
//go:generate mockgen -package=coingecko_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// CoinGeckoAPIClient talks to the public or pro CoinGecko v3 API. It is
// immutable after construction; a key change builds a new client.
type CoinGeckoAPIClient struct {
	baseURL    string
	httpClient HTTPClient
	header     http.Header
	// query carries the pro API key, sent on every request
	query url.Values
}

// CoinGeckoAPIClientOption is a configuration option for the CoinGecko API client.
type CoinGeckoAPIClientOption func(*CoinGeckoAPIClient)

// WithBaseURL points the client at another host, e.g. a test server.
func WithBaseURL(baseURL string) CoinGeckoAPIClientOption {
	return func(c *CoinGeckoAPIClient) {
		c.baseURL = baseURL
	}
}

func WithHTTPClient(httpClient HTTPClient) CoinGeckoAPIClientOption {
	return func(c *CoinGeckoAPIClient) {
		c.httpClient = httpClient
	}
}

// WithHeader adds headers to every request.
func WithHeader(header http.Header) CoinGeckoAPIClientOption {
	return func(c *CoinGeckoAPIClient) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// NewCoinGeckoAPIClient creates a new CoinGecko API client. A non-empty key
// switches to the pro API.
func NewCoinGeckoAPIClient(key string, options ...CoinGeckoAPIClientOption) (*CoinGeckoAPIClient, error) {
	var client = &CoinGeckoAPIClient{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{"Accept": {"application/json"}},
		query:      url.Values{},
	}
	if key != "" {
		// https://docs.coingecko.com/reference/authentication
		client.baseURL = proBaseURL
		client.query.Add("x_cg_pro_api_key", key)
	}
	for _, option := range options {
		option(client)
	}
	return client, nil
}

// clone applies per-call options on a copy of c.
func (c *CoinGeckoAPIClient) clone(opts []CoinGeckoAPIClientOption) *CoinGeckoAPIClient {
	var override = &CoinGeckoAPIClient{
		baseURL:    c.baseURL,
		httpClient: c.httpClient,
		header:     c.header.Clone(),
		query:      c.query,
	}
	for _, opt := range opts {
		opt(override)
	}
	return override
}
