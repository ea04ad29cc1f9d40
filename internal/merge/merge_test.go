package merge

import (
    "errors"
    "reflect"
    "testing"
    "time"

    "github.com/KerimSelki/crypto-vault/internal/provider"
)

var t0 = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func spot(prices provider.PriceMap) provider.Partial {
    return provider.Partial{Source: "binance_spot", Tier: provider.TierPrimary, Prices: prices}
}

func perp(prices provider.PriceMap) provider.Partial {
    return provider.Partial{Source: "binance_futures", Tier: provider.TierDerivatives, Prices: prices}
}

func gecko(prices provider.PriceMap) provider.Partial {
    return provider.Partial{Source: "coingecko", Tier: provider.TierAggregator, Prices: prices}
}

func market(src string, prices provider.PriceMap) provider.Partial {
    return provider.Partial{Source: src, Tier: provider.TierMarket, Prices: prices}
}

func TestMerge_BitcoinSpotAndAggregator(t *testing.T) {
    parts := []provider.Partial{
        gecko(provider.PriceMap{"bitcoin": {Price: 50100, Change24h: 1.9, Change7d: provider.Float(5), MarketCap: provider.Float(900e9), Source: "coingecko", UpdatedAt: t0}}),
        spot(provider.PriceMap{"bitcoin": {Price: 50000, Change24h: 2, MarketCap: provider.Float(1e9), Source: "binance_spot", UpdatedAt: t0}}),
    }

    got := Merge(nil, parts)["bitcoin"]
    if got.Price != 50000 || got.Change24h != 2 {
        t.Fatalf("primary price/24h must win: %+v", got)
    }
    if got.Change7d == nil || *got.Change7d != 5 {
        t.Fatalf("7d change must come from aggregator: %+v", got)
    }
    if got.MarketCap == nil || *got.MarketCap != 900e9 {
        t.Fatalf("market cap must override volume proxy: %+v", got)
    }
    if got.Source != "binance_spot" {
        t.Fatalf("source should stay primary: %q", got.Source)
    }
}

func TestMerge_PrimaryPrecedenceOverAggregator(t *testing.T) {
    for _, p := range []float64{1, 49000, 50000, 123456.78} {
        parts := []provider.Partial{
            spot(provider.PriceMap{"ethereum": {Price: p, Change24h: -1}}),
            gecko(provider.PriceMap{"ethereum": {Price: p * 1.1, Change24h: 4}}),
        }
        got := Merge(nil, parts)["ethereum"]
        if got.Price != p || got.Change24h != -1 {
            t.Fatalf("want primary %v/-1, got %+v", p, got)
        }
    }
}

func TestMerge_Idempotent(t *testing.T) {
    prev := provider.PriceMap{
        "litecoin": {Price: 100, Source: "binance_spot", UpdatedAt: t0},
    }
    parts := []provider.Partial{
        spot(provider.PriceMap{"bitcoin": {Price: 50000, Change24h: 2}}),
        perp(provider.PriceMap{"bitcoin": {Price: 50010, Derivatives: &provider.Derivatives{PerpPrice: 50010, MarkPrice: 50005, FundingRate: 0.0001}}}),
        gecko(provider.PriceMap{"bitcoin": {Price: 50100, Change7d: provider.Float(5)}, "stellar": {Price: 0.4}}),
        market("fmp", provider.PriceMap{"AAPL": {Price: 190, Currency: "USD"}}),
    }

    once := Merge(prev, parts)
    twice := Merge(once, parts)
    if !reflect.DeepEqual(once, twice) {
        t.Fatalf("merge not idempotent:\nonce=%+v\ntwice=%+v", once, twice)
    }
}

func TestMerge_StaleAssetRetained(t *testing.T) {
    prev := provider.PriceMap{
        "AAPL":    {Price: 180, Currency: "USD", Source: "fmp", UpdatedAt: t0},
        "bitcoin": {Price: 40000, Source: "binance_spot", UpdatedAt: t0},
    }
    parts := []provider.Partial{
        spot(provider.PriceMap{"bitcoin": {Price: 50000, UpdatedAt: t0.Add(time.Minute)}}),
        market("fmp", nil),
    }

    got := Merge(prev, parts)
    if got["AAPL"].Price != 180 || !got["AAPL"].UpdatedAt.Equal(t0) {
        t.Fatalf("stale AAPL should be kept unchanged: %+v", got["AAPL"])
    }
    if got["bitcoin"].Price != 50000 {
        t.Fatalf("bitcoin should be refreshed: %+v", got["bitcoin"])
    }
    if prev["bitcoin"].Price != 40000 {
        t.Fatalf("prev was mutated: %+v", prev["bitcoin"])
    }
}

func TestMerge_MissingProviderTolerance(t *testing.T) {
    parts := []provider.Partial{
        {Source: "binance_spot", Tier: provider.TierPrimary, Err: errors.New("timeout")},
        perp(provider.PriceMap{"solana": {Price: 190}}),
        gecko(provider.PriceMap{"bitcoin": {Price: 50100, Change24h: 1.9}}),
        {Source: "fmp", Tier: provider.TierMarket, Err: provider.ErrThrottled},
    }

    got := Merge(nil, parts)
    if len(got) != 2 || got["bitcoin"].Price != 50100 || got["solana"].Price != 190 {
        t.Fatalf("want survivors merged, got %+v", got)
    }
}

func TestMerge_DerivativesAttachWithoutOverwritingPrice(t *testing.T) {
    parts := []provider.Partial{
        perp(provider.PriceMap{
            "bitcoin": {Price: 50020, Change24h: 3, Derivatives: &provider.Derivatives{PerpPrice: 50020, MarkPrice: 50015, FundingRate: 0.0002}},
        }),
        spot(provider.PriceMap{"bitcoin": {Price: 50000, Change24h: 2}}),
    }

    got := Merge(nil, parts)["bitcoin"]
    if got.Price != 50000 || got.Change24h != 2 {
        t.Fatalf("perp must not overwrite primary price: %+v", got)
    }
    if got.Derivatives == nil || got.Derivatives.MarkPrice != 50015 || got.Derivatives.FundingRate != 0.0002 {
        t.Fatalf("derivatives not attached: %+v", got.Derivatives)
    }
}

func TestMerge_MarketFillsOnlyAbsent(t *testing.T) {
    parts := []provider.Partial{
        market("fmp", provider.PriceMap{"AAPL": {Price: 190, Source: "fmp"}}),
        market("tefas", provider.PriceMap{"IPB.TEFAS": {Price: 3.2, Currency: "TRY", Source: "tefas"}}),
        market("yahoo", provider.PriceMap{"AAPL": {Price: 191, Source: "yahoo"}}),
    }

    got := Merge(nil, parts)
    if got["AAPL"].Source != "fmp" || got["AAPL"].Price != 190 {
        t.Fatalf("first market source should win: %+v", got["AAPL"])
    }
    if got["IPB.TEFAS"].Price != 3.2 {
        t.Fatalf("fund missing: %+v", got)
    }
}

func TestCycle_DoesNotInjectAbsentAssets(t *testing.T) {
    got := Cycle([]provider.Partial{spot(provider.PriceMap{"bitcoin": {Price: 1}})})
    if _, ok := got["ethereum"]; ok || len(got) != 1 {
        t.Fatalf("unexpected assets: %+v", got)
    }
    if len(Cycle(nil)) != 0 {
        t.Fatalf("empty cycle should be empty")
    }
}

func TestCycle_SkipsInvalidPrices(t *testing.T) {
    got := Cycle([]provider.Partial{spot(provider.PriceMap{"bitcoin": {Price: -5}})})
    if len(got) != 0 {
        t.Fatalf("negative price leaked: %+v", got)
    }
}
