package merge

import (
    "sort"

    "github.com/KerimSelki/crypto-vault/internal/asset"
    "github.com/KerimSelki/crypto-vault/internal/provider"
)

// Cycle reconciles one cycle's partial results into a single map.
//
// Partials are applied by tier, lowest first; within a tier input order is
// kept and the first provider to supply an asset wins. Failed partials are
// ignored. Rules per tier:
//   - primary: sets the record
//   - derivatives: attaches perpetual fields to an existing record, or
//     inserts the perp record when no primary price exists
//   - aggregator: inserts missing assets; for present ones only the 7d change
//     and market cap are taken, never price or 24h change
//   - market: inserts assets absent from every earlier partial
func Cycle(partials []provider.Partial) provider.PriceMap {
    ordered := make([]provider.Partial, len(partials))
    copy(ordered, partials)
    sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Tier < ordered[j].Tier })

    out := make(provider.PriceMap)
    attached := make(map[asset.ID]bool)
    enriched := make(map[asset.ID]bool)

    for _, p := range ordered {
        if !p.OK() { continue }
        for id, rec := range p.Prices {
            if !provider.ValidPrice(rec.Price) { continue }
            cur, exists := out[id]
            switch p.Tier {
            case provider.TierPrimary:
                if !exists { out[id] = rec.Clone() }

            case provider.TierDerivatives:
                if !exists {
                    out[id] = rec.Clone()
                    attached[id] = true
                    continue
                }
                if attached[id] || rec.Derivatives == nil { continue }
                d := *rec.Derivatives
                cur.Derivatives = &d
                out[id] = cur
                attached[id] = true

            case provider.TierAggregator:
                if !exists {
                    out[id] = rec.Clone()
                    enriched[id] = true
                    continue
                }
                if enriched[id] { continue }
                if rec.Change7d != nil { cur.Change7d = provider.Float(*rec.Change7d) }
                if rec.MarketCap != nil { cur.MarketCap = provider.Float(*rec.MarketCap) }
                out[id] = cur
                enriched[id] = true

            default:
                if !exists { out[id] = rec.Clone() }
            }
        }
    }
    return out
}

// Merge layers this cycle's records onto prev asset by asset. prev is not
// modified; assets absent from the cycle keep their previous record.
// Merge(Merge(prev, p), p) equals Merge(prev, p).
func Merge(prev provider.PriceMap, partials []provider.Partial) provider.PriceMap {
    return Layer(prev, Cycle(partials))
}

// Layer returns prev overwritten by cycle, without modifying either.
func Layer(prev, cycle provider.PriceMap) provider.PriceMap {
    out := make(provider.PriceMap, len(prev)+len(cycle))
    for id, r := range prev { out[id] = r.Clone() }
    for id, r := range cycle { out[id] = r.Clone() }
    return out
}
