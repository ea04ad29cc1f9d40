// Package yahoo reads equity quotes from the public Yahoo Finance endpoints.
// It backs the local /api/stocks proxy and can run as a market-tier provider.
package yahoo

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/url"
    "strings"
    "sync"
    "time"

    "github.com/PaesslerAG/jsonpath"
    "golang.org/x/sync/errgroup"

    "github.com/KerimSelki/crypto-vault/internal/asset"
    "github.com/KerimSelki/crypto-vault/internal/httpx"
    "github.com/KerimSelki/crypto-vault/internal/logger"
    "github.com/KerimSelki/crypto-vault/internal/provider"
    "github.com/KerimSelki/crypto-vault/internal/symbol"
)

type Config struct {
    Name  string
    V7URL string // batch quote
    V8URL string // per-symbol chart
    V6URL string // batch quote, second host
    // MaxSymbols caps one Quotes call.
    MaxSymbols int
    // ChartMaxSymbols caps the per-symbol chart fallback.
    ChartMaxSymbols int
    ChartGroupSize  int
    BatchTimeout    time.Duration
    ChartTimeout    time.Duration
}

// Quote is the quoteResponse.result row shape.
type Quote struct {
    Symbol                     string  `json:"symbol"`
    RegularMarketPrice         float64 `json:"regularMarketPrice"`
    RegularMarketChangePercent float64 `json:"regularMarketChangePercent"`
    Currency                   string  `json:"currency,omitempty"`
    ShortName                  string  `json:"shortName,omitempty"`
}

type Client struct {
    cfg      Config
    http     *httpx.Client
    resolver *symbol.Resolver
    log      *logger.Entry
}

func New(cfg Config, hc *httpx.Client, r *symbol.Resolver, log *logger.Log) *Client {
    if cfg.Name == "" { cfg.Name = "yahoo" }
    if cfg.V7URL == "" { cfg.V7URL = "https://query1.finance.yahoo.com/v7/finance/quote" }
    if cfg.V8URL == "" { cfg.V8URL = "https://query1.finance.yahoo.com/v8/finance/chart" }
    if cfg.V6URL == "" { cfg.V6URL = "https://query2.finance.yahoo.com/v6/finance/quote" }
    if cfg.MaxSymbols <= 0 { cfg.MaxSymbols = 200 }
    if cfg.ChartMaxSymbols <= 0 { cfg.ChartMaxSymbols = 30 }
    if cfg.ChartGroupSize <= 0 { cfg.ChartGroupSize = 5 }
    if cfg.BatchTimeout <= 0 { cfg.BatchTimeout = 10 * time.Second }
    if cfg.ChartTimeout <= 0 { cfg.ChartTimeout = 8 * time.Second }
    if log == nil { log = logger.GetLogger() }
    return &Client{cfg: cfg, http: hc, resolver: r, log: log.WithComponent(cfg.Name)}
}

func (c *Client) Name() string        { return c.cfg.Name }
func (c *Client) Tier() provider.Tier { return provider.TierMarket }

// Quotes returns quotes for symbols, trying v7, then v8 charts, then v6.
// The second result names the endpoint that answered.
func (c *Client) Quotes(ctx context.Context, symbols []string) ([]Quote, string, error) {
    symbols = normalize(symbols, c.cfg.MaxSymbols)
    if len(symbols) == 0 { return nil, "", errors.New("no symbols") }

    var errs []error
    qs, err := c.batch(ctx, c.cfg.V7URL, symbols, c.cfg.BatchTimeout)
    if err == nil && len(qs) > 0 { return qs, "v7", nil }
    if err != nil { errs = append(errs, fmt.Errorf("v7: %w", err)) }

    qs, err = c.charts(ctx, symbols)
    if err == nil && len(qs) > 0 { return qs, "v8", nil }
    if err != nil { errs = append(errs, fmt.Errorf("v8: %w", err)) }

    qs, err = c.batch(ctx, c.cfg.V6URL, symbols, c.cfg.ChartTimeout)
    if err == nil && len(qs) > 0 { return qs, "v6", nil }
    if err != nil { errs = append(errs, fmt.Errorf("v6: %w", err)) }

    if len(errs) == 0 { return nil, "", errors.New("all yahoo endpoints returned no data") }
    return nil, "", errors.Join(errs...)
}

func (c *Client) batch(ctx context.Context, base string, symbols []string, timeout time.Duration) ([]Quote, error) {
    u := base + "?symbols=" + url.QueryEscape(strings.Join(symbols, ","))
    var body struct {
        QuoteResponse *struct {
            Result []map[string]any `json:"result"`
        } `json:"quoteResponse"`
    }
    if err := c.http.GetJSON(ctx, u, timeout, nil, &body); err != nil { return nil, err }
    if body.QuoteResponse == nil { return nil, errors.New("missing quoteResponse") }
    out := make([]Quote, 0, len(body.QuoteResponse.Result))
    for _, row := range body.QuoteResponse.Result {
        q, ok := quoteFromRow(row)
        if ok { out = append(out, q) }
    }
    return out, nil
}

func (c *Client) charts(ctx context.Context, symbols []string) ([]Quote, error) {
    if len(symbols) > c.cfg.ChartMaxSymbols { symbols = symbols[:c.cfg.ChartMaxSymbols] }
    var (
        mu       sync.Mutex
        g        errgroup.Group
        out      []Quote
        firstErr error
    )
    g.SetLimit(c.cfg.ChartGroupSize)
    for _, s := range symbols {
        g.Go(func() error {
            q, err := c.chart(ctx, s)
            mu.Lock()
            defer mu.Unlock()
            if err != nil {
                if firstErr == nil { firstErr = err }
                return nil
            }
            out = append(out, q)
            return nil
        })
    }
    _ = g.Wait()
    if len(out) == 0 { return nil, firstErr }
    return out, nil
}

func (c *Client) chart(ctx context.Context, sym string) (Quote, error) {
    u := fmt.Sprintf("%s/%s?interval=1d&range=5d", strings.TrimRight(c.cfg.V8URL, "/"), url.PathEscape(sym))
    var doc any
    if err := c.http.GetJSON(ctx, u, c.cfg.ChartTimeout, nil, &doc); err != nil { return Quote{}, err }
    v, err := jsonpath.Get("$.chart.result[0].meta", doc)
    if err != nil { return Quote{}, fmt.Errorf("chart %s: %w", sym, err) }
    meta, ok := v.(map[string]interface{})
    if !ok { return Quote{}, fmt.Errorf("chart %s: meta is %T", sym, v) }

    price, ok := num(meta["regularMarketPrice"])
    if !ok || !provider.ValidPrice(price) { return Quote{}, fmt.Errorf("chart %s: no price", sym) }
    prev, ok := num(meta["chartPreviousClose"])
    if !ok || prev == 0 { prev, _ = num(meta["previousClose"]) }
    q := Quote{Symbol: sym, RegularMarketPrice: price}
    if prev > 0 { q.RegularMarketChangePercent = (price - prev) / prev * 100 }
    q.Currency, _ = meta["currency"].(string)
    if s, _ := meta["symbol"].(string); s != "" { q.Symbol = strings.ToUpper(s) }
    return q, nil
}

// Fetch implements provider.Provider over Quotes.
func (c *Client) Fetch(ctx context.Context, ids []asset.ID) (provider.PriceMap, error) {
    wanted := c.resolver.ResolveAll(ids, symbol.Yahoo)
    if len(wanted) == 0 { return nil, provider.ErrNoSymbols }
    qs, src, err := c.Quotes(ctx, symbol.Symbols(ids, wanted))
    if err != nil { return nil, fmt.Errorf("yahoo: %w", err) }
    c.log.WithFields(logger.Fields{"endpoint": src, "quotes": len(qs)}).Debug("yahoo quotes")

    now := time.Now().UTC()
    out := make(provider.PriceMap, len(qs))
    for _, q := range qs {
        for _, id := range wanted[q.Symbol] {
            m := c.resolver.Market(id)
            out[id] = provider.PriceRecord{
                Price:     q.RegularMarketPrice,
                Change24h: q.RegularMarketChangePercent,
                Currency:  m.Currency(),
                Market:    m,
                Source:    c.cfg.Name,
                UpdatedAt: now,
            }
        }
    }
    return out, nil
}

func quoteFromRow(row map[string]any) (Quote, bool) {
    sym, _ := row["symbol"].(string)
    price, ok := num(row["regularMarketPrice"])
    if sym == "" || !ok || !provider.ValidPrice(price) { return Quote{}, false }
    q := Quote{Symbol: strings.ToUpper(sym), RegularMarketPrice: price}
    q.RegularMarketChangePercent, _ = num(row["regularMarketChangePercent"])
    q.Currency, _ = row["currency"].(string)
    q.ShortName, _ = row["shortName"].(string)
    return q, true
}

func normalize(symbols []string, max int) []string {
    out := make([]string, 0, len(symbols))
    seen := make(map[string]struct{}, len(symbols))
    for _, s := range symbols {
        s = strings.ToUpper(strings.TrimSpace(s))
        if s == "" { continue }
        if _, dup := seen[s]; dup { continue }
        seen[s] = struct{}{}
        out = append(out, s)
        if len(out) == max { break }
    }
    return out
}

func num(v any) (float64, bool) {
    switch x := v.(type) {
    case json.Number:
        return provider.ParseFloat(x.String())
    case float64:
        return x, provider.Finite(x) == x
    case string:
        return provider.ParseFloat(x)
    }
    return 0, false
}
