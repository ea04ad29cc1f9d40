// Package tefas prices Turkish mutual funds from the tefas.gov.tr history
// endpoints.
package tefas

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "net/url"
    "sort"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/jonboulle/clockwork"
    "golang.org/x/sync/errgroup"

    "github.com/KerimSelki/crypto-vault/internal/asset"
    "github.com/KerimSelki/crypto-vault/internal/httpx"
    "github.com/KerimSelki/crypto-vault/internal/logger"
    "github.com/KerimSelki/crypto-vault/internal/provider"
    "github.com/KerimSelki/crypto-vault/internal/symbol"
)

const dateLayout = "02.01.2006"

type Config struct {
    Name    string
    BaseURL string // default: https://www.tefas.gov.tr
    // WindowDays is the history range ending today.
    WindowDays      int
    MaxFunds        int
    MaxFallback     int
    MaxConcurrency  int
    Timeout         time.Duration
    FallbackTimeout time.Duration
    Clock           clockwork.Clock
}

// Fund is one priced fund, in the shape of the /api/tefas proxy route.
type Fund struct {
    Symbol            string  `json:"symbol"`
    FundCode          string  `json:"fundCode"`
    Price             float64 `json:"price"`
    ChangesPercentage float64 `json:"changesPercentage"`
    Currency          string  `json:"currency"`
    Name              string  `json:"name"`
}

type Provider struct {
    cfg      Config
    client   *httpx.Client
    resolver *symbol.Resolver
    log      *logger.Entry
}

func New(cfg Config, hc *httpx.Client, r *symbol.Resolver, log *logger.Log) *Provider {
    if cfg.Name == "" { cfg.Name = "tefas" }
    if cfg.BaseURL == "" { cfg.BaseURL = "https://www.tefas.gov.tr" }
    cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
    if cfg.WindowDays <= 0 { cfg.WindowDays = 7 }
    if cfg.MaxFunds <= 0 { cfg.MaxFunds = 30 }
    if cfg.MaxFallback <= 0 { cfg.MaxFallback = 10 }
    if cfg.MaxConcurrency <= 0 { cfg.MaxConcurrency = 5 }
    if cfg.Timeout <= 0 { cfg.Timeout = 8 * time.Second }
    if cfg.FallbackTimeout <= 0 { cfg.FallbackTimeout = 5 * time.Second }
    if cfg.Clock == nil { cfg.Clock = clockwork.NewRealClock() }
    if log == nil { log = logger.GetLogger() }
    return &Provider{cfg: cfg, client: hc, resolver: r, log: log.WithComponent(cfg.Name)}
}

func (p *Provider) Name() string        { return p.cfg.Name }
func (p *Provider) Tier() provider.Tier { return provider.TierMarket }

func (p *Provider) Fetch(ctx context.Context, ids []asset.ID) (provider.PriceMap, error) {
    wanted := p.resolver.ResolveAll(ids, symbol.TEFAS)
    if len(wanted) == 0 { return nil, provider.ErrNoSymbols }
    funds, err := p.Funds(ctx, symbol.Symbols(ids, wanted))
    if err != nil { return nil, err }

    now := p.cfg.Clock.Now().UTC()
    out := make(provider.PriceMap, len(funds))
    for _, f := range funds {
        for _, id := range wanted[f.FundCode] {
            out[id] = provider.PriceRecord{
                Price:     f.Price,
                Change24h: f.ChangesPercentage,
                Currency:  f.Currency,
                Market:    asset.TEFAS,
                Source:    p.cfg.Name,
                UpdatedAt: now,
            }
        }
    }
    return out, nil
}

// Funds prices fund codes (or CODE.TEFAS ids). Codes the history endpoint
// cannot serve are retried against the allocation endpoint with a zero
// change. An error is returned only when nothing was priced.
func (p *Provider) Funds(ctx context.Context, codes []string) ([]Fund, error) {
    codes = normalize(codes, p.cfg.MaxFunds)
    if len(codes) == 0 { return nil, errors.New("tefas: no fund codes") }

    var (
        mu       sync.Mutex
        g        errgroup.Group
        byCode   = make(map[string]Fund, len(codes))
        firstErr error
    )
    g.SetLimit(p.cfg.MaxConcurrency)
    for _, code := range codes {
        g.Go(func() error {
            f, err := p.history(ctx, code)
            mu.Lock()
            defer mu.Unlock()
            if err != nil {
                if firstErr == nil { firstErr = err }
                p.log.WithError(err).WithField("fund", code).Debug("history failed")
                return nil
            }
            byCode[code] = f
            return nil
        })
    }
    _ = g.Wait()

    var missing []string
    for _, c := range codes {
        if _, ok := byCode[c]; !ok { missing = append(missing, c) }
    }
    if len(missing) > p.cfg.MaxFallback { missing = missing[:p.cfg.MaxFallback] }
    for _, code := range missing {
        f, err := p.allocation(ctx, code)
        if err != nil {
            if firstErr == nil { firstErr = err }
            continue
        }
        byCode[code] = f
    }

    out := make([]Fund, 0, len(byCode))
    for _, c := range codes {
        if f, ok := byCode[c]; ok { out = append(out, f) }
    }
    if len(out) == 0 {
        if firstErr == nil { firstErr = errors.New("no fund data") }
        return nil, fmt.Errorf("tefas: %w", firstErr)
    }
    return out, nil
}

type row map[string]any

type historyResponse struct {
    Data []row `json:"data"`
}

func (p *Provider) history(ctx context.Context, code string) (Fund, error) {
    today := p.cfg.Clock.Now().In(istanbul)
    form := url.Values{
        "fontip":   {"YAT"},
        "fonkod":   {code},
        "bastarih": {today.AddDate(0, 0, -p.cfg.WindowDays).Format(dateLayout)},
        "bittarih": {today.Format(dateLayout)},
    }
    var body historyResponse
    if err := p.client.PostFormJSON(ctx, p.cfg.BaseURL+"/api/DB/BindHistoryInfo", form, p.cfg.Timeout, p.headers("/TarihselVeriler.aspx"), &body); err != nil {
        return Fund{}, err
    }
    points := make([]row, 0, len(body.Data))
    for _, r := range body.Data {
        if v, ok := r.price(); ok && v > 0 { points = append(points, r) }
    }
    if len(points) == 0 { return Fund{}, fmt.Errorf("fund %s: empty history", code) }
    sort.SliceStable(points, func(i, j int) bool { return points[i].date() < points[j].date() })

    latest := points[len(points)-1]
    price, _ := latest.price()
    prev := price
    if len(points) > 1 { prev, _ = points[len(points)-2].price() }
    change := 0.0
    if prev > 0 { change = (price - prev) / prev * 100 }
    return Fund{
        Symbol:            string(asset.FundID(code)),
        FundCode:          code,
        Price:             price,
        ChangesPercentage: change,
        Currency:          asset.TEFAS.Currency(),
        Name:              latest.name(code),
    }, nil
}

func (p *Provider) allocation(ctx context.Context, code string) (Fund, error) {
    form := url.Values{"fontip": {"YAT"}, "fonkod": {code}}
    var body historyResponse
    if err := p.client.PostFormJSON(ctx, p.cfg.BaseURL+"/api/DB/BindHistoryAllocation", form, p.cfg.FallbackTimeout, p.headers("/"), &body); err != nil {
        return Fund{}, err
    }
    if len(body.Data) == 0 { return Fund{}, fmt.Errorf("fund %s: empty allocation", code) }
    price, ok := body.Data[0].price()
    if !ok || price <= 0 { return Fund{}, fmt.Errorf("fund %s: no price in allocation", code) }
    return Fund{
        Symbol:   string(asset.FundID(code)),
        FundCode: code,
        Price:    price,
        Currency: asset.TEFAS.Currency(),
        Name:     code,
    }, nil
}

func (p *Provider) headers(referer string) http.Header {
    h := http.Header{}
    h.Set("Origin", p.cfg.BaseURL)
    h.Set("Referer", p.cfg.BaseURL+referer)
    h.Set("X-Requested-With", "XMLHttpRequest")
    return h
}

// price reads the unit price, falling back to the total value column.
func (r row) price() (float64, bool) {
    for _, k := range []string{"FIYAT", "ToplamDeger"} {
        if v, ok := r[k]; ok && v != nil {
            f, ok := toFloat(v)
            if ok && provider.ValidPrice(f) { return f, true }
        }
    }
    return 0, false
}

// date returns the TARIH epoch millis, or 0.
func (r row) date() int64 {
    switch v := r["TARIH"].(type) {
    case string:
        n, _ := strconv.ParseInt(v, 10, 64)
        return n
    default:
        f, _ := toFloat(v)
        return int64(f)
    }
}

func (r row) name(fallback string) string {
    for _, k := range []string{"FONUNVAN", "FonUnvan"} {
        if s, _ := r[k].(string); s != "" { return s }
    }
    return fallback
}

func toFloat(v any) (float64, bool) {
    switch x := v.(type) {
    case interface{ String() string }:
        return provider.ParseFloat(x.String())
    case float64:
        return x, provider.Finite(x) == x
    case string:
        return provider.ParseFloat(strings.ReplaceAll(x, ",", "."))
    }
    return 0, false
}

func normalize(codes []string, max int) []string {
    out := make([]string, 0, len(codes))
    seen := make(map[string]struct{}, len(codes))
    for _, c := range codes {
        c = strings.ToUpper(asset.FundCode(asset.ID(strings.TrimSpace(c))))
        if c == "" { continue }
        if _, dup := seen[c]; dup { continue }
        seen[c] = struct{}{}
        out = append(out, c)
        if len(out) == max { break }
    }
    return out
}

var istanbul = func() *time.Location {
    loc, err := time.LoadLocation("Europe/Istanbul")
    if err != nil { return time.FixedZone("TRT", 3*60*60) }
    return loc
}()
