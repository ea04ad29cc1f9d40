package coingecko_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	coingecko "github.com/KerimSelki/crypto-vault/internal/provider/coingecko"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func jsonResponse(t *testing.T, status int, v any) *http.Response {
	t.Helper()
	buffer := &bytes.Buffer{}
	require.NoError(t, json.NewEncoder(buffer).Encode(v))
	return &http.Response{StatusCode: status, Body: io.NopCloser(buffer)}
}

func TestNewCoinGeckoAPIClient(t *testing.T) {
	t.Parallel()

	// Assert: a client is returned with or without a key.
	client, err := coingecko.NewCoinGeckoAPIClient("")
	require.NoError(t, err)
	require.NotNil(t, client)

	client, err = coingecko.NewCoinGeckoAPIClient("test")
	require.NoError(t, err)
	require.NotNil(t, client)
}

func TestProKeySwitchesBaseURL(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock http client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: the pro host and key are used
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "pro-api.coingecko.com", req.URL.Host)
			require.Equal(t, "secret", req.URL.Query().Get("x_cg_pro_api_key"))
			return jsonResponse(t, http.StatusOK, []any{}), nil
		}).
		Times(1)

	client, err := coingecko.NewCoinGeckoAPIClient("secret", coingecko.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act
	_, err = client.GetMarkets(t.Context(), "usd", 250, 1)
	require.NoError(t, err)
}

func TestWithBaseURLAndHeader(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock http client
	httpClient := NewMockHTTPClient(ctrl)

	// Arrange: define a base url
	baseURL := "http://localhost:8080"

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Truef(t, strings.HasPrefix(req.URL.String(), baseURL), "expected url to start with base url, received: %s", req.URL.String())
			require.Equal(t, "yes", req.Header.Get("X-Test"))
			require.Empty(t, req.URL.Query().Get("x_cg_pro_api_key"))
			return jsonResponse(t, http.StatusOK, map[string]any{}), nil
		}).
		Times(1)

	client, err := coingecko.NewCoinGeckoAPIClient("",
		coingecko.WithHTTPClient(httpClient),
		coingecko.WithBaseURL(baseURL),
		coingecko.WithHeader(http.Header{"X-Test": {"yes"}}),
	)
	require.NoError(t, err)

	// Act
	_, err = client.GetSimplePrice(t.Context(), []string{"bitcoin"}, "usd")
	require.NoError(t, err)
}

func TestGetMarkets_Parses(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock http client
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodGet, req.Method)
			require.Equal(t, "/api/v3/coins/markets", req.URL.Path)
			require.Equal(t, "250", req.URL.Query().Get("per_page"))
			require.Equal(t, "24h,7d", req.URL.Query().Get("price_change_percentage"))

			return jsonResponse(t, http.StatusOK, []map[string]any{
				{"id": "bitcoin", "symbol": "btc", "name": "Bitcoin", "current_price": 97000.0, "market_cap": 1.9e12, "price_change_percentage_24h": 1.2, "price_change_percentage_7d_in_currency": 4.1},
				{"id": "ghost", "symbol": "gho", "name": "Ghost", "current_price": nil},
				{"id": "weird", "symbol": "wrd", "name": "Weird", "current_price": "1.0"},
				{"symbol": "noid"},
			}), nil
		}).
		Times(1)

	client, err := coingecko.NewCoinGeckoAPIClient("", coingecko.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act: per_page is clamped to 250
	markets, err := client.GetMarkets(t.Context(), "usd", 1000, 1)

	// Assert: the mistyped row and the id-less row are skipped
	require.NoError(t, err)
	require.Len(t, markets, 2)
	require.Equal(t, "bitcoin", markets[0].ID)
	require.Equal(t, 97000.0, *markets[0].CurrentPrice)
	require.Equal(t, 4.1, *markets[0].PriceChange7d)
	require.Nil(t, markets[1].CurrentPrice)
}

func TestGetMarkets_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		res     func(t *testing.T) (*http.Response, error)
		limited bool
	}{
		{
			name: "performing request",
			res:  func(t *testing.T) (*http.Response, error) { return nil, fmt.Errorf("error") },
		},
		{
			name:    "rate limited",
			res:     func(t *testing.T) (*http.Response, error) { return jsonResponse(t, http.StatusTooManyRequests, map[string]any{}), nil },
			limited: true,
		},
		{
			name: "unexpected status",
			res:  func(t *testing.T) (*http.Response, error) { return jsonResponse(t, http.StatusInternalServerError, map[string]any{}), nil },
		},
		{
			name: "malformed top level",
			res:  func(t *testing.T) (*http.Response, error) { return jsonResponse(t, http.StatusOK, map[string]any{"error": "x"}), nil },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			httpClient := NewMockHTTPClient(ctrl)
			httpClient.EXPECT().
				Do(gomock.Any()).
				DoAndReturn(func(req *http.Request) (*http.Response, error) { return tt.res(t) }).
				Times(1)

			client, err := coingecko.NewCoinGeckoAPIClient("", coingecko.WithHTTPClient(httpClient))
			require.NoError(t, err)

			markets, err := client.GetMarkets(t.Context(), "usd", 250, 1)
			require.Error(t, err)
			require.Nil(t, markets)
			require.Equal(t, tt.limited, errors.Is(err, coingecko.ErrRateLimited))
		})
	}
}

func TestGetMarkets_ErrCreatingRequest(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	client, err := coingecko.NewCoinGeckoAPIClient("", coingecko.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act: an invalid base url fails before any request is made
	markets, err := client.GetMarkets(t.Context(), "usd", 250, 1, coingecko.WithBaseURL(string([]rune{0x7f})))
	require.Error(t, err)
	require.Nil(t, markets)
}

func TestGetSimplePrice_Parses(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "/api/v3/simple/price", req.URL.Path)
			require.Equal(t, "bitcoin,pepe", req.URL.Query().Get("ids"))
			require.Equal(t, "true", req.URL.Query().Get("include_7d_change"))

			buffer := bytes.NewBufferString(`{
				"bitcoin": {"usd": 97000, "usd_24h_change": 1.5, "usd_7d_change": 3, "usd_market_cap": 1.9e12},
				"pepe": {"usd": null},
				"broken": [1,2]
			}`)
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(buffer)}, nil
		}).
		Times(1)

	client, err := coingecko.NewCoinGeckoAPIClient("", coingecko.WithHTTPClient(httpClient))
	require.NoError(t, err)

	prices, err := client.GetSimplePrice(t.Context(), []string{"bitcoin", "pepe"}, "USD")
	require.NoError(t, err)
	require.Len(t, prices, 1)
	require.Equal(t, 97000.0, *prices["bitcoin"].Price)
	require.Equal(t, 3.0, *prices["bitcoin"].Change7d)
}

func TestGetSimplePrice_NoIDs(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client, err := coingecko.NewCoinGeckoAPIClient("", coingecko.WithHTTPClient(NewMockHTTPClient(ctrl)))
	require.NoError(t, err)

	prices, err := client.GetSimplePrice(t.Context(), nil, "usd")
	require.NoError(t, err)
	require.Empty(t, prices)
}
