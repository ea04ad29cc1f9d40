package coingeckoadapter

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "time"

    "golang.org/x/sync/errgroup"

    "github.com/KerimSelki/crypto-vault/internal/asset"
    "github.com/KerimSelki/crypto-vault/internal/provider"
    "github.com/KerimSelki/crypto-vault/internal/provider/coingecko"
    "github.com/KerimSelki/crypto-vault/internal/symbol"
)

type Config struct {
    Name       string // display name, default: coingecko
    VsCurrency string // e.g., usd
    PerPage    int    // markets page size, capped at 250
    // MaxIDsPerRequest chunks the /simple/price fallback.
    MaxIDsPerRequest int
    MaxConcurrency   int
    // MarketsCacheTTLSeconds keeps the markets page between cycles.
    // If <= 0, no internal caching is used.
    MarketsCacheTTLSeconds int
    Timeout                time.Duration
}

// Adapter prices crypto assets from the markets page first and asks
// /simple/price for ids the page does not cover.
type Adapter struct {
    cfg      Config
    resolver *symbol.Resolver

    mu             sync.RWMutex
    client         *coingecko.CoinGeckoAPIClient
    marketsByID    map[string]coingecko.Market
    marketsExpires time.Time
}

func New(cfg Config, client *coingecko.CoinGeckoAPIClient, r *symbol.Resolver) *Adapter {
    if cfg.Name == "" { cfg.Name = "coingecko" }
    if cfg.VsCurrency == "" { cfg.VsCurrency = "usd" }
    if cfg.PerPage <= 0 || cfg.PerPage > 250 { cfg.PerPage = 250 }
    if cfg.MaxIDsPerRequest <= 0 { cfg.MaxIDsPerRequest = 100 }
    if cfg.MaxConcurrency <= 0 { cfg.MaxConcurrency = 5 }
    if cfg.Timeout <= 0 { cfg.Timeout = 10 * time.Second }
    return &Adapter{cfg: cfg, client: client, resolver: r}
}

func (a *Adapter) Name() string        { return a.cfg.Name }
func (a *Adapter) Tier() provider.Tier { return provider.TierAggregator }

// SetClient swaps the API client, e.g. after an API key change, and drops
// the cached markets page.
func (a *Adapter) SetClient(c *coingecko.CoinGeckoAPIClient) {
    a.mu.Lock()
    a.client = c
    a.marketsByID = nil
    a.marketsExpires = time.Time{}
    a.mu.Unlock()
}

func (a *Adapter) api() *coingecko.CoinGeckoAPIClient {
    a.mu.RLock()
    defer a.mu.RUnlock()
    return a.client
}

func (a *Adapter) Fetch(ctx context.Context, ids []asset.ID) (provider.PriceMap, error) {
    wanted := a.resolver.ResolveAll(ids, symbol.CoinGecko)
    if len(wanted) == 0 { return nil, provider.ErrNoSymbols }

    now := time.Now().UTC()
    out := make(provider.PriceMap, len(wanted))

    markets, marketsErr := a.markets(ctx)
    for native, assets := range wanted {
        m, ok := markets[native]
        if !ok || m.CurrentPrice == nil || !provider.ValidPrice(*m.CurrentPrice) { continue }
        rec := a.record(*m.CurrentPrice, m.PriceChange24h, m.PriceChange7d, m.MarketCap, now)
        for _, id := range assets { out[id] = rec.Clone() }
    }

    // ids the markets page did not price, in request order
    missing := make([]string, 0, len(wanted))
    for _, native := range symbol.Symbols(ids, wanted) {
        if _, ok := out[wanted[native][0]]; !ok { missing = append(missing, native) }
    }

    var specificErr error
    if len(missing) > 0 {
        var (
            mu sync.Mutex
            g  errgroup.Group
        )
        g.SetLimit(a.cfg.MaxConcurrency)
        for _, chunk := range chunkStrings(missing, a.cfg.MaxIDsPerRequest) {
            g.Go(func() error {
                cctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
                defer cancel()
                prices, err := a.api().GetSimplePrice(cctx, chunk, a.cfg.VsCurrency)
                if err != nil { return err }
                mu.Lock()
                defer mu.Unlock()
                for native, sp := range prices {
                    if sp.Price == nil || !provider.ValidPrice(*sp.Price) { continue }
                    rec := a.record(*sp.Price, sp.Change24h, sp.Change7d, sp.MarketCap, now)
                    for _, id := range wanted[native] { out[id] = rec.Clone() }
                }
                return nil
            })
        }
        specificErr = g.Wait()
    }

    if len(out) == 0 {
        err := errors.Join(marketsErr, specificErr)
        if err == nil { return out, nil }
        if errors.Is(err, coingecko.ErrRateLimited) { return nil, fmt.Errorf("%w: coingecko: %v", provider.ErrThrottled, err) }
        return nil, fmt.Errorf("coingecko: %w", err)
    }
    return out, nil
}

func (a *Adapter) record(price float64, ch24, ch7, mcap *float64, now time.Time) provider.PriceRecord {
    rec := provider.PriceRecord{
        Price:     price,
        Currency:  "USD",
        Market:    asset.Crypto,
        Source:    a.cfg.Name,
        UpdatedAt: now,
    }
    if ch24 != nil { rec.Change24h = provider.Finite(*ch24) }
    if ch7 != nil { rec.Change7d = provider.Float(provider.Finite(*ch7)) }
    if mcap != nil { rec.MarketCap = provider.Float(*mcap) }
    return rec
}

// markets returns the markets page keyed by coin id, cached for the TTL.
func (a *Adapter) markets(ctx context.Context) (map[string]coingecko.Market, error) {
    ttl := time.Duration(a.cfg.MarketsCacheTTLSeconds) * time.Second
    if ttl > 0 {
        a.mu.RLock()
        if !a.marketsExpires.IsZero() && time.Now().Before(a.marketsExpires) && len(a.marketsByID) > 0 {
            m := a.marketsByID
            a.mu.RUnlock()
            return m, nil
        }
        a.mu.RUnlock()
    }

    cctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
    defer cancel()
    rows, err := a.api().GetMarkets(cctx, a.cfg.VsCurrency, a.cfg.PerPage, 1)
    if err != nil { return nil, fmt.Errorf("markets: %w", err) }
    m := make(map[string]coingecko.Market, len(rows))
    for _, r := range rows { m[r.ID] = r }
    if ttl > 0 {
        a.mu.Lock()
        a.marketsByID = m
        a.marketsExpires = time.Now().Add(ttl)
        a.mu.Unlock()
    }
    return m, nil
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
