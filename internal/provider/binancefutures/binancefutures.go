package binancefutures

import (
    "context"
    "fmt"
    "strings"
    "time"

    "github.com/adshao/go-binance/v2/futures"
    "golang.org/x/sync/errgroup"

    "github.com/KerimSelki/crypto-vault/internal/asset"
    "github.com/KerimSelki/crypto-vault/internal/httpx"
    "github.com/KerimSelki/crypto-vault/internal/logger"
    "github.com/KerimSelki/crypto-vault/internal/provider"
    "github.com/KerimSelki/crypto-vault/internal/symbol"
)

type Config struct {
    Name    string
    BaseURL string // default: the go-binance USDⓈ-M futures endpoint
    Timeout time.Duration
}

// Provider joins the perpetual 24h ticker with the premium index (mark price
// and funding). A failed premium index call degrades to price-only records.
type Provider struct {
    cfg      Config
    client   *futures.Client
    resolver *symbol.Resolver
    log      *logger.Entry
}

func New(cfg Config, hc *httpx.Client, r *symbol.Resolver, log *logger.Log) *Provider {
    if cfg.Name == "" { cfg.Name = "binance_futures" }
    if cfg.Timeout <= 0 { cfg.Timeout = 10 * time.Second }
    if log == nil { log = logger.GetLogger() }
    client := futures.NewClient("", "")
    if hc != nil { client.HTTPClient = hc.HTTP }
    if cfg.BaseURL != "" { client.SetApiEndpoint(strings.TrimRight(cfg.BaseURL, "/")) }
    return &Provider{cfg: cfg, client: client, resolver: r, log: log.WithComponent(cfg.Name)}
}

func (p *Provider) Name() string        { return p.cfg.Name }
func (p *Provider) Tier() provider.Tier { return provider.TierDerivatives }

type funding struct {
    mark, index, rate float64
    next              time.Time
}

func (p *Provider) Fetch(ctx context.Context, ids []asset.ID) (provider.PriceMap, error) {
    wanted := p.resolver.ResolveAll(ids, symbol.BinanceFutures)
    if len(wanted) == 0 { return nil, provider.ErrNoSymbols }

    ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
    defer cancel()

    var (
        g          errgroup.Group
        stats      []*futures.PriceChangeStats
        fundingBy  map[string]funding
        fundingErr error
    )
    g.Go(func() error {
        var err error
        stats, err = p.client.NewListPriceChangeStatsService().Do(ctx)
        return err
    })
    // premium index is optional and never fails the group
    g.Go(func() error {
        fundingBy, fundingErr = p.premiumIndex(ctx)
        return nil
    })
    if err := g.Wait(); err != nil { return nil, fmt.Errorf("binance futures ticker/24hr: %w", err) }
    if fundingErr != nil {
        p.log.WithError(fundingErr).Warn("premium index unavailable, using price-only records")
    }

    now := time.Now().UTC()
    out := make(provider.PriceMap, len(wanted))
    for _, s := range stats {
        if s == nil { continue }
        assets, ok := wanted[s.Symbol]
        if !ok { continue }
        last, ok := provider.ParseFloat(s.LastPrice)
        if !ok || !provider.ValidPrice(last) { continue }
        change, _ := provider.ParseFloat(s.PriceChangePercent)
        volume, _ := provider.ParseFloat(s.QuoteVolume)

        d := provider.Derivatives{PerpPrice: last, MarkPrice: last, PerpChange24h: change, PerpVolume: volume}
        if f, ok := fundingBy[s.Symbol]; ok {
            if f.mark > 0 { d.MarkPrice = f.mark }
            d.IndexPrice = f.index
            d.FundingRate = f.rate
            d.NextFundingTime = f.next
        }
        rec := provider.PriceRecord{
            Price:       last,
            Change24h:   change,
            MarketCap:   provider.Float(volume),
            Currency:    "USD",
            Market:      asset.Crypto,
            Source:      p.cfg.Name,
            UpdatedAt:   now,
            Derivatives: &d,
        }
        for _, id := range assets { out[id] = rec.Clone() }
    }
    return out, nil
}

func (p *Provider) premiumIndex(ctx context.Context) (map[string]funding, error) {
    idx, err := p.client.NewPremiumIndexService().Do(ctx)
    if err != nil { return nil, fmt.Errorf("binance futures premiumIndex: %w", err) }
    out := make(map[string]funding, len(idx))
    for _, x := range idx {
        if x == nil { continue }
        f := funding{}
        f.mark, _ = provider.ParseFloat(x.MarkPrice)
        f.index, _ = provider.ParseFloat(x.IndexPrice)
        f.rate, _ = provider.ParseFloat(x.LastFundingRate)
        if x.NextFundingTime > 0 { f.next = time.UnixMilli(x.NextFundingTime).UTC() }
        out[x.Symbol] = f
    }
    return out, nil
}
