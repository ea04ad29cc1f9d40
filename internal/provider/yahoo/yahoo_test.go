package yahoo_test

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KerimSelki/crypto-vault/internal/asset"
	"github.com/KerimSelki/crypto-vault/internal/httpx"
	"github.com/KerimSelki/crypto-vault/internal/logger"
	"github.com/KerimSelki/crypto-vault/internal/provider/yahoo"
	"github.com/KerimSelki/crypto-vault/internal/symbol"
	"github.com/stretchr/testify/require"
)

type fakeYahoo struct {
	v7Status   int
	v8Status   int
	v7Calls    atomic.Int32
	chartCalls atomic.Int32
	v6Calls    atomic.Int32
}

func batchBody(symbols string, price float64) string {
	var rows []string
	for _, s := range strings.Split(symbols, ",") {
		rows = append(rows, `{"symbol":"`+s+`","regularMarketPrice":`+strconv.FormatFloat(price, 'f', -1, 64)+`,"regularMarketChangePercent":1.25,"currency":"USD","shortName":"`+s+` Inc"}`)
	}
	return `{"quoteResponse":{"result":[` + strings.Join(rows, ",") + `],"error":null}}`
}

func (f *fakeYahoo) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/v7/finance/quote":
		f.v7Calls.Add(1)
		if f.v7Status != 0 {
			w.WriteHeader(f.v7Status)
			return
		}
		_, _ = w.Write([]byte(batchBody(r.URL.Query().Get("symbols"), 10)))
	case strings.HasPrefix(r.URL.Path, "/v8/finance/chart/"):
		f.chartCalls.Add(1)
		if f.v8Status != 0 {
			w.WriteHeader(f.v8Status)
			return
		}
		sym := strings.TrimPrefix(r.URL.Path, "/v8/finance/chart/")
		_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"symbol":"` + sym + `","currency":"TRY","regularMarketPrice":110,"chartPreviousClose":100}}],"error":null}}`))
	case r.URL.Path == "/v6/finance/quote":
		f.v6Calls.Add(1)
		_, _ = w.Write([]byte(batchBody(r.URL.Query().Get("symbols"), 20)))
	default:
		http.NotFound(w, r)
	}
}

func newClient(t *testing.T, f *fakeYahoo) *yahoo.Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	cfg := yahoo.Config{
		V7URL: srv.URL + "/v7/finance/quote",
		V8URL: srv.URL + "/v8/finance/chart",
		V6URL: srv.URL + "/v6/finance/quote",
	}
	r := symbol.NewResolver(asset.DefaultCatalog())
	return yahoo.New(cfg, httpx.New(5*time.Second), r, logger.Discard())
}

func TestQuotes_V7(t *testing.T) {
	t.Parallel()

	f := &fakeYahoo{}
	c := newClient(t, f)

	got, src, err := c.Quotes(t.Context(), []string{"aapl", "MSFT", "AAPL", " "})

	require.NoError(t, err)
	require.Equal(t, "v7", src)
	require.Len(t, got, 2)
	require.Equal(t, "AAPL", got[0].Symbol)
	require.Equal(t, 10.0, got[0].RegularMarketPrice)
	require.Equal(t, 1.25, got[0].RegularMarketChangePercent)
	require.Zero(t, f.chartCalls.Load())
}

func TestQuotes_FallsBackToCharts(t *testing.T) {
	t.Parallel()

	// Arrange: the batch endpoint is throttled
	f := &fakeYahoo{v7Status: http.StatusTooManyRequests}
	c := newClient(t, f)

	// Act
	got, src, err := c.Quotes(t.Context(), []string{"THYAO.IS", "GARAN.IS"})

	// Assert: change derived from the previous close
	require.NoError(t, err)
	require.Equal(t, "v8", src)
	require.Len(t, got, 2)
	require.InDelta(t, 10.0, got[0].RegularMarketChangePercent, 1e-9)
	require.Equal(t, "TRY", got[0].Currency)
	require.EqualValues(t, 2, f.chartCalls.Load())
	require.Zero(t, f.v6Calls.Load())
}

func TestQuotes_FallsBackToV6(t *testing.T) {
	t.Parallel()

	f := &fakeYahoo{v7Status: http.StatusForbidden, v8Status: http.StatusNotFound}
	c := newClient(t, f)

	got, src, err := c.Quotes(t.Context(), []string{"SPY"})
	require.NoError(t, err)
	require.Equal(t, "v6", src)
	require.Equal(t, 20.0, got[0].RegularMarketPrice)
}

func TestQuotes_ChartFallbackIsCapped(t *testing.T) {
	t.Parallel()

	f := &fakeYahoo{v7Status: http.StatusInternalServerError}
	c := newClient(t, f)

	symbols := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		symbols = append(symbols, "S"+strconv.Itoa(i))
	}
	got, _, err := c.Quotes(t.Context(), symbols)
	require.NoError(t, err)
	require.Len(t, got, 30)
	require.EqualValues(t, 30, f.chartCalls.Load())
}

func TestFetch_MapsEquityIDs(t *testing.T) {
	t.Parallel()

	c := newClient(t, &fakeYahoo{})

	got, err := c.Fetch(t.Context(), []asset.ID{"AAPL", "bitcoin", "IPB.TEFAS"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "yahoo", got["AAPL"].Source)
	require.Equal(t, asset.US, got["AAPL"].Market)
}
