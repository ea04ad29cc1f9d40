package main

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "strings"
    "time"

    "github.com/KerimSelki/crypto-vault/internal/aggregate"
    "github.com/KerimSelki/crypto-vault/internal/app"
    "github.com/KerimSelki/crypto-vault/internal/asset"
    "github.com/KerimSelki/crypto-vault/internal/config"
    "github.com/KerimSelki/crypto-vault/internal/logger"
    "github.com/KerimSelki/crypto-vault/internal/portfolio"
    "github.com/KerimSelki/crypto-vault/internal/provider"
    "github.com/KerimSelki/crypto-vault/internal/provider/tefas"
    "github.com/KerimSelki/crypto-vault/internal/provider/yahoo"
    "github.com/KerimSelki/crypto-vault/internal/refresh"
    "github.com/KerimSelki/crypto-vault/internal/scheduler"
    "github.com/KerimSelki/crypto-vault/internal/store"
)

const maxProxySymbols = 200

type server struct {
    // ctx outlives requests; the refresh ticker runs on it
    ctx context.Context
    app *app.App
    log *logger.Entry
}

type pricesResponse struct {
    Status scheduler.Status  `json:"status"`
    Prices provider.PriceMap `json:"prices"`
}

type errorResponse struct {
    Error  string            `json:"error"`
    Status *scheduler.Status `json:"status,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
    w.WriteHeader(code)
    enc := json.NewEncoder(w)
    enc.SetEscapeHTML(false)
    _ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
    writeJSON(w, code, errorResponse{Error: msg})
}

func decodeBody(r *http.Request, v any) error {
    dec := json.NewDecoder(r.Body)
    dec.DisallowUnknownFields()
    return dec.Decode(v)
}

// filterPrices keeps the requested ids; an empty list keeps everything.
func filterPrices(m provider.PriceMap, ids []string) provider.PriceMap {
    if len(ids) == 0 { return m }
    out := make(provider.PriceMap, len(ids))
    for _, id := range ids {
        if r, ok := m[asset.ID(id)]; ok { out[asset.ID(id)] = r }
    }
    return out
}

func (s *server) handlePrices(w http.ResponseWriter, r *http.Request) {
    ids := config.SplitCSV(r.URL.Query().Get("ids"))
    writeJSON(w, http.StatusOK, pricesResponse{
        Status: s.app.Scheduler.Status(),
        Prices: filterPrices(s.app.Scheduler.Prices(), ids),
    })
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, s.app.Scheduler.Status())
}

func (s *server) handleRetry(w http.ResponseWriter, r *http.Request) {
    err := s.app.Scheduler.Retry(r.Context())
    st := s.app.Scheduler.Status()
    if err != nil {
        s.log.WithError(err).Warn("manual retry failed")
        writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Status: &st})
        return
    }
    writeJSON(w, http.StatusOK, st)
}

type intervalBody struct {
    Interval string `json:"interval"`
}

func (s *server) handleInterval(w http.ResponseWriter, r *http.Request) {
    var b intervalBody
    if err := decodeBody(r, &b); err != nil {
        writeError(w, http.StatusBadRequest, "invalid JSON body")
        return
    }
    iv, err := refresh.Parse(strings.TrimSpace(b.Interval))
    if err == nil { err = s.app.Refresh.SetInterval(s.ctx, iv) }
    if err != nil {
        writeError(w, http.StatusBadRequest, err.Error())
        return
    }
    writeJSON(w, http.StatusOK, s.app.Scheduler.Status())
}

type credentialsBody struct {
    CoinGeckoAPIKey string `json:"coingecko_api_key"`
}

func (s *server) handleCredentials(w http.ResponseWriter, r *http.Request) {
    var b credentialsBody
    if err := decodeBody(r, &b); err != nil {
        writeError(w, http.StatusBadRequest, "invalid JSON body")
        return
    }
    err := s.app.SetCoinGeckoKey(r.Context(), b.CoinGeckoAPIKey)
    st := s.app.Scheduler.Status()
    if err != nil {
        writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Status: &st})
        return
    }
    writeJSON(w, http.StatusOK, st)
}

type portfolioResponse struct {
    Summaries []portfolio.Summary `json:"summaries"`
    Currency  string              `json:"currency"`
}

func (s *server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
    sums, err := s.app.Valuation(r.URL.Query().Get("name"))
    switch {
    case errors.Is(err, store.ErrNotFound):
        writeError(w, http.StatusNotFound, err.Error())
        return
    case err != nil:
        writeError(w, http.StatusInternalServerError, err.Error())
        return
    }
    writeJSON(w, http.StatusOK, portfolioResponse{Summaries: sums, Currency: s.app.Rates.Base})
}

func (s *server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
    rep, err := s.app.Snapshot()
    if err != nil {
        writeError(w, http.StatusInternalServerError, err.Error())
        return
    }
    writeJSON(w, http.StatusCreated, rep)
}

func (s *server) handleReports(w http.ResponseWriter, r *http.Request) {
    reps, err := s.app.Store.Reports()
    if err != nil {
        writeError(w, http.StatusInternalServerError, err.Error())
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"reports": reps, "count": len(reps)})
}

func (s *server) handleAddAsset(w http.ResponseWriter, r *http.Request) {
    var a asset.Asset
    if err := decodeBody(r, &a); err != nil {
        writeError(w, http.StatusBadRequest, "invalid JSON body")
        return
    }
    rec, err := s.app.AddAsset(r.Context(), a)
    switch {
    case errors.Is(err, asset.ErrOverlap):
        writeError(w, http.StatusConflict, err.Error())
        return
    case err != nil && a.ID == "":
        writeError(w, http.StatusBadRequest, err.Error())
        return
    case errors.Is(err, app.ErrNotPriced):
        writeJSON(w, http.StatusAccepted, map[string]any{"asset": a, "error": err.Error()})
        return
    case err != nil:
        s.log.WithField("asset", a.ID).WithError(err).Error("add asset")
        writeError(w, http.StatusInternalServerError, err.Error())
        return
    }
    writeJSON(w, http.StatusCreated, map[string]any{"asset": a, "price": rec})
}

type quoteResponse struct {
    QuoteResponse quoteResult `json:"quoteResponse"`
    Source        string      `json:"source,omitempty"`
}

type quoteResult struct {
    Result []yahoo.Quote `json:"result"`
    Error  *string       `json:"error"`
}

func proxySymbols(w http.ResponseWriter, r *http.Request) ([]string, bool) {
    q := r.URL.Query().Get("symbols")
    if strings.TrimSpace(q) == "" {
        writeError(w, http.StatusBadRequest, "missing symbols query param")
        return nil, false
    }
    symbols := config.SplitCSV(q)
    if len(symbols) > maxProxySymbols {
        writeError(w, http.StatusBadRequest, "too many symbols (max 200)")
        return nil, false
    }
    return symbols, true
}

func (s *server) handleStocks(w http.ResponseWriter, r *http.Request) {
    symbols, ok := proxySymbols(w, r)
    if !ok { return }
    ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
    defer cancel()
    qs, src, err := s.app.Yahoo.Quotes(ctx, symbols)
    if err != nil {
        s.log.WithError(err).WithField("symbols", len(symbols)).Warn("stock proxy failed")
        msg := err.Error()
        writeJSON(w, http.StatusBadGateway, quoteResponse{QuoteResponse: quoteResult{Result: []yahoo.Quote{}, Error: &msg}})
        return
    }
    writeJSON(w, http.StatusOK, quoteResponse{QuoteResponse: quoteResult{Result: qs}, Source: src})
}

type fundsResponse struct {
    Results []tefas.Fund `json:"results"`
    Count   int          `json:"count"`
}

func (s *server) handleTEFAS(w http.ResponseWriter, r *http.Request) {
    codes, ok := proxySymbols(w, r)
    if !ok { return }
    ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
    defer cancel()
    funds, err := s.app.TEFAS.Funds(ctx, codes)
    if err != nil {
        s.log.WithError(err).WithField("funds", len(codes)).Warn("fund proxy failed")
        writeError(w, http.StatusBadGateway, err.Error())
        return
    }
    writeJSON(w, http.StatusOK, fundsResponse{Results: funds, Count: len(funds)})
}

type sourcesResponse struct {
    CycleID string             `json:"cycle_id,omitempty"`
    Sources []aggregate.Latest `json:"sources"`
    Spread  map[string]float64 `json:"spread_pct,omitempty"`
}

// handleSources lists every source's record from the last cycle, so feeds
// can be compared per asset.
func (s *server) handleSources(w http.ResponseWriter, r *http.Request) {
    res := s.app.LastCycle()
    if res == nil {
        writeError(w, http.StatusServiceUnavailable, "no completed cycle yet")
        return
    }
    writeSources(w, res.CycleID, res.Partials, config.SplitCSV(r.URL.Query().Get("ids")))
}

func writeSources(w http.ResponseWriter, cycleID string, partials []provider.Partial, ids []string) {
    want := make([]asset.ID, 0, len(ids))
    for _, id := range ids { want = append(want, asset.ID(id)) }
    rows := aggregate.LatestBySource(partials, want...)

    spread := map[string]float64{}
    byAsset := map[asset.ID][]aggregate.Latest{}
    for _, row := range rows { byAsset[row.Asset] = append(byAsset[row.Asset], row) }
    for id, rs := range byAsset {
        if len(rs) > 1 { spread[string(id)] = aggregate.Spread(rs) }
    }
    if rows == nil { rows = []aggregate.Latest{} }
    writeJSON(w, http.StatusOK, sourcesResponse{CycleID: cycleID, Sources: rows, Spread: spread})
}
