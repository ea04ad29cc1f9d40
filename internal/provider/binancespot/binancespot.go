package binancespot

import (
    "context"
    "fmt"
    "strings"
    "time"

    binance "github.com/adshao/go-binance/v2"

    "github.com/KerimSelki/crypto-vault/internal/asset"
    "github.com/KerimSelki/crypto-vault/internal/httpx"
    "github.com/KerimSelki/crypto-vault/internal/provider"
    "github.com/KerimSelki/crypto-vault/internal/symbol"
)

type Config struct {
    Name    string
    BaseURL string // default: the go-binance production endpoint
    Timeout time.Duration
}

// Provider reads the 24h ticker of every spot pair in one call and keeps the
// USDT pairs that map to requested assets.
type Provider struct {
    cfg      Config
    client   *binance.Client
    resolver *symbol.Resolver
}

func New(cfg Config, hc *httpx.Client, r *symbol.Resolver) *Provider {
    if cfg.Name == "" { cfg.Name = "binance_spot" }
    if cfg.Timeout <= 0 { cfg.Timeout = 10 * time.Second }
    client := binance.NewClient("", "")
    if cfg.BaseURL != "" { client.BaseURL = strings.TrimRight(cfg.BaseURL, "/") }
    if hc != nil { client.HTTPClient = hc.HTTP }
    return &Provider{cfg: cfg, client: client, resolver: r}
}

func (p *Provider) Name() string        { return p.cfg.Name }
func (p *Provider) Tier() provider.Tier { return provider.TierPrimary }

func (p *Provider) Fetch(ctx context.Context, ids []asset.ID) (provider.PriceMap, error) {
    wanted := p.resolver.ResolveAll(ids, symbol.BinanceSpot)
    if len(wanted) == 0 { return nil, provider.ErrNoSymbols }

    ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
    defer cancel()
    stats, err := p.client.NewListPriceChangeStatsService().Do(ctx)
    if err != nil { return nil, fmt.Errorf("binance spot ticker/24hr: %w", err) }

    // per-call ticker index, USDT pairs only
    bySymbol := make(map[string]*binance.PriceChangeStats, len(stats))
    for _, s := range stats {
        if s == nil || !strings.HasSuffix(s.Symbol, symbol.QuoteAsset) { continue }
        bySymbol[s.Symbol] = s
    }

    now := time.Now().UTC()
    out := make(provider.PriceMap, len(wanted))
    for native, assets := range wanted {
        s, ok := bySymbol[native]
        if !ok { continue }
        price, ok := provider.ParseFloat(s.LastPrice)
        if !ok || !provider.ValidPrice(price) { continue }
        change, _ := provider.ParseFloat(s.PriceChangePercent)
        rec := provider.PriceRecord{
            Price:     price,
            Change24h: change,
            Currency:  "USD",
            Market:    asset.Crypto,
            Source:    p.cfg.Name,
            UpdatedAt: now,
        }
        if vol, ok := provider.ParseFloat(s.QuoteVolume); ok { rec.MarketCap = provider.Float(vol) }
        for _, id := range assets { out[id] = rec.Clone() }
    }
    return out, nil
}

// Symbols lists every USDT pair currently traded, for resolver universes and
// quick single-asset lookups.
func (p *Provider) Symbols(ctx context.Context) (symbol.Set, error) {
    ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
    defer cancel()
    stats, err := p.client.NewListPriceChangeStatsService().Do(ctx)
    if err != nil { return nil, fmt.Errorf("binance spot ticker/24hr: %w", err) }
    set := make(symbol.Set, len(stats))
    for _, s := range stats {
        if s != nil && strings.HasSuffix(s.Symbol, symbol.QuoteAsset) { set[s.Symbol] = struct{}{} }
    }
    return set, nil
}
