package fmp

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
    Name    string
    BaseURL string // default: https://financialmodelingprep.com
    APIKey  string
    // ProxyURL is a quote endpoint answering ?symbols=A,B in the Yahoo
    // quoteResponse.result shape. Chunks the quote API cannot serve are
    // retried there. Empty disables the fallback.
    ProxyURL string
    // MaxItemsPerRequest splits large symbol lists into smaller batch API requests.
    MaxItemsPerRequest int
    // MaxConcurrency limits concurrent batch requests when splitting.
    MaxConcurrency int
    Timeout        time.Duration
    ProxyTimeout   time.Duration
}

// Provider prices US and BIST equities from the FMP quote API.
type Provider struct {
    cfg      Config
    client   *httpx.Client
    resolver *symbol.Resolver
    log      *logger.Entry
}

func New(cfg Config, hc *httpx.Client, r *symbol.Resolver, log *logger.Log) *Provider {
    if cfg.Name == "" { cfg.Name = "fmp" }
    if cfg.BaseURL == "" { cfg.BaseURL = "https://financialmodelingprep.com" }
    cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
    if cfg.MaxItemsPerRequest <= 0 { cfg.MaxItemsPerRequest = 50 }
    if cfg.MaxConcurrency <= 0 { cfg.MaxConcurrency = 5 }
    if cfg.Timeout <= 0 { cfg.Timeout = 15 * time.Second }
    if cfg.ProxyTimeout <= 0 { cfg.ProxyTimeout = 10 * time.Second }
    if log == nil { log = logger.GetLogger() }
    return &Provider{cfg: cfg, client: hc, resolver: r, log: log.WithComponent(cfg.Name)}
}

func (p *Provider) Name() string        { return p.cfg.Name }
func (p *Provider) Tier() provider.Tier { return provider.TierMarket }

// quote is one normalized upstream row.
type quote struct {
    symbol   string
    price    float64
    change   float64
    cap      *float64
    currency string
}

func (p *Provider) Fetch(ctx context.Context, ids []asset.ID) (provider.PriceMap, error) {
    wanted := p.resolver.ResolveAll(ids, symbol.FMP)
    if len(wanted) == 0 { return nil, provider.ErrNoSymbols }
    if p.cfg.APIKey == "" && p.cfg.ProxyURL == "" { return nil, errors.New("fmp: no api key and no proxy configured") }

    var (
        mu       sync.Mutex
        g        errgroup.Group
        firstErr error
    )
    now := time.Now().UTC()
    out := make(provider.PriceMap, len(wanted))
    g.SetLimit(p.cfg.MaxConcurrency)
    for _, chunk := range chunkStrings(symbol.Symbols(ids, wanted), p.cfg.MaxItemsPerRequest) {
        g.Go(func() error {
            qs, err := p.chunk(ctx, chunk)
            mu.Lock()
            defer mu.Unlock()
            if err != nil {
                if firstErr == nil { firstErr = err }
                return nil
            }
            for _, q := range qs {
                for _, id := range wanted[q.symbol] {
                    cur := q.currency
                    if m := p.resolver.Market(id); m.IsStock() { cur = m.Currency() }
                    rec := provider.PriceRecord{
                        Price:     q.price,
                        Change24h: q.change,
                        Currency:  cur,
                        Market:    p.resolver.Market(id),
                        Source:    p.cfg.Name,
                        UpdatedAt: now,
                    }
                    if q.cap != nil { rec.MarketCap = provider.Float(*q.cap) }
                    out[id] = rec
                }
            }
            return nil
        })
    }
    _ = g.Wait()

    if len(out) == 0 && firstErr != nil { return nil, firstErr }
    return out, nil
}

// chunk tries the quote API, then the proxy.
func (p *Provider) chunk(ctx context.Context, symbols []string) ([]quote, error) {
    var errs []error
    if p.cfg.APIKey != "" {
        qs, err := p.quotes(ctx, symbols)
        if err == nil && len(qs) > 0 { return qs, nil }
        if err != nil {
            errs = append(errs, err)
            p.log.WithError(err).WithField("symbols", len(symbols)).Warn("quote chunk failed")
        }
    }
    if p.cfg.ProxyURL != "" {
        qs, err := p.proxy(ctx, symbols)
        if err == nil { return qs, nil }
        errs = append(errs, err)
    }
    if len(errs) == 0 { return nil, nil }
    return nil, fmt.Errorf("fmp chunk: %w", errors.Join(errs...))
}

func (p *Provider) quotes(ctx context.Context, symbols []string) ([]quote, error) {
    u := fmt.Sprintf("%s/api/v3/quote/%s?apikey=%s", p.cfg.BaseURL, strings.Join(symbols, ","), url.QueryEscape(p.cfg.APIKey))
    var rows []map[string]any
    if err := p.client.GetJSON(ctx, u, p.cfg.Timeout, nil, &rows); err != nil {
        if httpx.IsThrottled(err) { return nil, fmt.Errorf("%w: %v", provider.ErrThrottled, err) }
        return nil, err
    }
    out := make([]quote, 0, len(rows))
    for _, r := range rows {
        sym, _ := r["symbol"].(string)
        price, ok := num(r["price"])
        if sym == "" || !ok || !provider.ValidPrice(price) { continue }
        q := quote{symbol: strings.ToUpper(sym), price: price}
        q.change, _ = num(r["changesPercentage"])
        if c, ok := num(r["marketCap"]); ok && c > 0 { q.cap = provider.Float(c) }
        out = append(out, q)
    }
    return out, nil
}

// proxy reads a quoteResponse.result payload.
func (p *Provider) proxy(ctx context.Context, symbols []string) ([]quote, error) {
    sep := "?"
    if strings.Contains(p.cfg.ProxyURL, "?") { sep = "&" }
    u := p.cfg.ProxyURL + sep + "symbols=" + url.QueryEscape(strings.Join(symbols, ","))
    var body any
    if err := p.client.GetJSON(ctx, u, p.cfg.ProxyTimeout, nil, &body); err != nil { return nil, err }
    return parseQuoteResponse(body)
}

// parseQuoteResponse extracts quotes from a Yahoo-style quoteResponse
// document. Rows without a symbol or a usable price are skipped.
func parseQuoteResponse(doc any) ([]quote, error) {
    v, err := jsonpath.Get("$.quoteResponse.result[*]", doc)
    if err != nil { return nil, fmt.Errorf("quoteResponse.result: %w", err) }
    rows, ok := v.([]interface{})
    if !ok { return nil, fmt.Errorf("quoteResponse.result: unexpected %T", v) }
    out := make([]quote, 0, len(rows))
    for _, r := range rows {
        row, ok := r.(map[string]interface{})
        if !ok { continue }
        sym, _ := row["symbol"].(string)
        price, ok := num(row["regularMarketPrice"])
        if sym == "" || !ok || !provider.ValidPrice(price) { continue }
        q := quote{symbol: strings.ToUpper(sym), price: price}
        q.change, _ = num(row["regularMarketChangePercent"])
        q.currency, _ = row["currency"].(string)
        out = append(out, q)
    }
    return out, nil
}

func num(v any) (float64, bool) {
    switch x := v.(type) {
    case json.Number:
        return provider.ParseFloat(x.String())
    case float64:
        return x, provider.Finite(x) == x
    case string:
        return provider.ParseFloat(x)
    case int:
        return float64(x), true
    }
    return 0, false
}

func chunkStrings(in []string, size int) [][]string {
    if size <= 0 || len(in) == 0 { return [][]string{in} }
    out := make([][]string, 0, (len(in)+size-1)/size)
    for i := 0; i < len(in); i += size {
        j := i + size
        if j > len(in) { j = len(in) }
        out = append(out, in[i:j])
    }
    return out
}
