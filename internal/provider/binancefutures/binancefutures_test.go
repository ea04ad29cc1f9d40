package binancefutures_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/KerimSelki/crypto-vault/internal/asset"
	"github.com/KerimSelki/crypto-vault/internal/httpx"
	"github.com/KerimSelki/crypto-vault/internal/logger"
	"github.com/KerimSelki/crypto-vault/internal/provider"
	"github.com/KerimSelki/crypto-vault/internal/provider/binancefutures"
	"github.com/KerimSelki/crypto-vault/internal/symbol"
	"github.com/stretchr/testify/require"
)

const perpTicker = `[
  {"symbol":"BTCUSDT","priceChangePercent":"2.5","lastPrice":"50020","quoteVolume":"2000"},
  {"symbol":"ETHUSDT","priceChangePercent":"1","lastPrice":"3400","quoteVolume":"10"}
]`

const premium = `[
  {"symbol":"BTCUSDT","markPrice":"50015.5","indexPrice":"50001","lastFundingRate":"0.0001","nextFundingTime":1735790400000,"interestRate":"0.0001","time":1735786800000}
]`

func newProvider(t *testing.T, premiumStatus int) *binancefutures.Provider {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/ticker/24hr", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(perpTicker))
	})
	mux.HandleFunc("/fapi/v1/premiumIndex", func(w http.ResponseWriter, r *http.Request) {
		if premiumStatus != http.StatusOK {
			w.WriteHeader(premiumStatus)
			_, _ = w.Write([]byte(`{"code":-1003,"msg":"too many requests"}`))
			return
		}
		_, _ = w.Write([]byte(premium))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	r := symbol.NewResolver(asset.DefaultCatalog())
	return binancefutures.New(binancefutures.Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, httpx.New(5*time.Second), r, logger.Discard())
}

func TestFetch_JoinsFunding(t *testing.T) {
	t.Parallel()

	p := newProvider(t, http.StatusOK)

	got, err := p.Fetch(t.Context(), []asset.ID{"bitcoin", "ethereum"})
	require.NoError(t, err)
	require.Equal(t, provider.TierDerivatives, p.Tier())

	btc := got["bitcoin"]
	require.NotNil(t, btc.Derivatives)
	require.Equal(t, 50020.0, btc.Derivatives.PerpPrice)
	require.Equal(t, 50015.5, btc.Derivatives.MarkPrice)
	require.Equal(t, 50001.0, btc.Derivatives.IndexPrice)
	require.Equal(t, 0.0001, btc.Derivatives.FundingRate)
	require.Equal(t, time.UnixMilli(1735790400000).UTC(), btc.Derivatives.NextFundingTime)

	// Assert: no funding row, mark defaults to last price
	eth := got["ethereum"]
	require.Equal(t, 3400.0, eth.Derivatives.MarkPrice)
	require.Zero(t, eth.Derivatives.FundingRate)
}

func TestFetch_FundingFailureDegrades(t *testing.T) {
	t.Parallel()

	p := newProvider(t, http.StatusTooManyRequests)

	got, err := p.Fetch(t.Context(), []asset.ID{"bitcoin"})
	require.NoError(t, err)
	require.Equal(t, 50020.0, got["bitcoin"].Price)
	require.Equal(t, 50020.0, got["bitcoin"].Derivatives.MarkPrice)
	require.Zero(t, got["bitcoin"].Derivatives.FundingRate)
}

func TestFetch_TickerFailureFails(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/ticker/24hr", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":-1000,"msg":"internal error"}`))
	})
	mux.HandleFunc("/fapi/v1/premiumIndex", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(premium))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	r := symbol.NewResolver(asset.DefaultCatalog())
	p := binancefutures.New(binancefutures.Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, httpx.New(5*time.Second), r, logger.Discard())

	got, err := p.Fetch(t.Context(), []asset.ID{"bitcoin"})
	require.ErrorContains(t, err, "ticker/24hr")
	require.Empty(t, got)
}
