package aggregate

import (
    "errors"
    "testing"
    "time"

    "github.com/KerimSelki/crypto-vault/internal/asset"
    "github.com/KerimSelki/crypto-vault/internal/provider"
)

func TestLatest_OneRowPerSource_SortedByTier(t *testing.T) {
    t1 := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

    in := []provider.Partial{
        {Source: "coingecko", Tier: provider.TierAggregator, Prices: provider.PriceMap{
            "bitcoin": {Price: 50100, Currency: "USD", Source: "coingecko", UpdatedAt: t1},
        }},
        {Source: "binance_spot", Tier: provider.TierPrimary, Prices: provider.PriceMap{
            "bitcoin": {Price: 50000, Currency: "USD", Source: "binance_spot", UpdatedAt: t1},
        }},
        {Source: "fmp", Tier: provider.TierMarket, Err: errors.New("down")},
    }

    out := LatestBySource(in)
    if len(out) != 2 {
        t.Fatalf("want 2, got %d: %+v", len(out), out)
    }
    if out[0].Source != "binance-spot" || out[0].Tier != "primary" || out[0].Price != 50000 {
        t.Fatalf("unexpected first row: %+v", out[0])
    }
    if out[1].Source != "coingecko" || !out[1].ReceivedAt.Equal(t1) {
        t.Fatalf("unexpected second row: %+v", out[1])
    }
    if s := Spread(out); s < 0.19 || s > 0.21 {
        t.Fatalf("spread=%v", s)
    }
}

func TestLatest_NewestWinsWithinSource(t *testing.T) {
    t1 := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
    t2 := t1.Add(time.Minute)

    in := []provider.Partial{
        {Source: "yahoo", Tier: provider.TierMarket, Prices: provider.PriceMap{"AAPL": {Price: 2, Currency: "USD", UpdatedAt: t2}}},
        {Source: "yahoo", Tier: provider.TierMarket, Prices: provider.PriceMap{"AAPL": {Price: 1, Currency: "USD", UpdatedAt: t1}}},
    }
    out := LatestBySource(in)
    if len(out) != 1 || out[0].Price != 2 {
        t.Fatalf("unexpected: %+v", out)
    }
}

func TestLatest_FilterAndCurrencies(t *testing.T) {
    in := []provider.Partial{
        {Source: "fmp", Tier: provider.TierMarket, Prices: provider.PriceMap{
            "THYAO.IS": {Price: 300, Currency: "TRY"},
            "AAPL":     {Price: 200, Currency: "USD"},
        }},
        {Source: "yahoo", Tier: provider.TierMarket, Prices: provider.PriceMap{
            "THYAO.IS": {Price: 9, Currency: "USD"},
        }},
    }
    out := LatestBySource(in, asset.ID("THYAO.IS"))
    if len(out) != 2 {
        t.Fatalf("want 2 rows, got %d: %+v", len(out), out)
    }
    if Spread(out) != 0 {
        t.Fatalf("mixed currencies must not produce a spread: %+v", out)
    }
}

func TestNormalizeSource(t *testing.T) {
    cases := map[string]string{
        " Binance ":         "binance-spot",
        "binance_futures":   "binance-futures",
        "CoinGecko:markets": "coingecko",
        "tefas":             "tefas",
    }
    for in, want := range cases {
        if got := NormalizeSource(in); got != want {
            t.Fatalf("NormalizeSource(%q)=%q want %q", in, got, want)
        }
    }
}
