// Package aggregate flattens the per-provider results of a fetch cycle into
// a source-by-source view used to compare feeds for the same asset.
package aggregate

import (
    "sort"
    "strings"
    "time"

    "github.com/KerimSelki/crypto-vault/internal/asset"
    "github.com/KerimSelki/crypto-vault/internal/provider"
)

// SourceKey identifies one source's quote bucket for an asset.
type SourceKey struct {
    Asset    asset.ID
    Source   string
    Currency string
}

// Latest is the latest record per SourceKey.
type Latest struct {
    Asset      asset.ID  `json:"asset"`
    Source     string    `json:"source"`
    Tier       string    `json:"tier"`
    Currency   string    `json:"currency"`
    Price      float64   `json:"price"`
    Change24h  float64   `json:"change_24h"`
    ReceivedAt time.Time `json:"received_at"`
}

// aliasMap normalizes provider name spellings found in config and logs.
var aliasMap = map[string]string{
    "binance":               "binance-spot",
    "binance_spot":          "binance-spot",
    "binancespot":           "binance-spot",
    "binance_futures":       "binance-futures",
    "binancefutures":        "binance-futures",
    "gecko":                 "coingecko",
    "cg":                    "coingecko",
    "financialmodelingprep": "fmp",
    "yahoofinance":          "yahoo",
    "yahoo_finance":         "yahoo",
}

// NormalizeSource lower-cases a provider name and resolves known aliases.
// Anything after a ':' qualifier is dropped.
func NormalizeSource(src string) string {
    s := strings.ToLower(strings.TrimSpace(src))
    if i := strings.Index(s, ":"); i >= 0 { s = strings.TrimSpace(s[:i]) }
    if norm, ok := aliasMap[s]; ok { return norm }
    return s
}

// LatestBySource collapses successful partials by (Asset, Source, Currency)
// keeping the newest record. For equal timestamps, later input wins. Zero
// timestamps are replaced with time.Now().UTC(). When ids is non-empty only
// those assets are kept.
func LatestBySource(partials []provider.Partial, ids ...asset.ID) []Latest {
    now := time.Now().UTC()
    var want map[asset.ID]struct{}
    if len(ids) > 0 {
        want = make(map[asset.ID]struct{}, len(ids))
        for _, id := range ids { want[id] = struct{}{} }
    }

    latest := make(map[SourceKey]Latest)
    for _, p := range partials {
        if !p.OK() { continue }
        for id, r := range p.Prices {
            if want != nil {
                if _, ok := want[id]; !ok { continue }
            }
            ts := r.UpdatedAt
            if ts.IsZero() { ts = now }
            src := r.Source
            if src == "" { src = p.Source }
            src = NormalizeSource(src)

            key := SourceKey{Asset: id, Source: src, Currency: r.Currency}
            if cur, ok := latest[key]; ok && ts.Before(cur.ReceivedAt) { continue }
            latest[key] = Latest{
                Asset:      id,
                Source:     src,
                Tier:       p.Tier.String(),
                Currency:   r.Currency,
                Price:      r.Price,
                Change24h:  r.Change24h,
                ReceivedAt: ts,
            }
        }
    }

    out := make([]Latest, 0, len(latest))
    for _, v := range latest { out = append(out, v) }
    sort.Slice(out, func(i, j int) bool {
        if out[i].Asset != out[j].Asset { return out[i].Asset < out[j].Asset }
        if out[i].Tier != out[j].Tier { return tierRank(out[i].Tier) < tierRank(out[j].Tier) }
        return out[i].Source < out[j].Source
    })
    return out
}

func tierRank(name string) int {
    for t := provider.TierPrimary; t <= provider.TierMarket; t++ {
        if t.String() == name { return int(t) }
    }
    return int(provider.TierMarket) + 1
}

// Spread returns the relative difference between the highest and lowest
// price quoted for one asset, in percent. Rows in other currencies than the
// first row are ignored.
func Spread(rows []Latest) float64 {
    if len(rows) < 2 { return 0 }
    cur := rows[0].Currency
    lo, hi := rows[0].Price, rows[0].Price
    for _, r := range rows[1:] {
        if r.Currency != cur { continue }
        if r.Price < lo { lo = r.Price }
        if r.Price > hi { hi = r.Price }
    }
    if lo <= 0 { return 0 }
    return (hi - lo) / lo * 100
}
