package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/KerimSelki/crypto-vault/internal/asset"
	"github.com/KerimSelki/crypto-vault/internal/logger"
	"github.com/KerimSelki/crypto-vault/internal/pipeline"
	"github.com/KerimSelki/crypto-vault/internal/provider"
)

type fakeProvider struct {
	name   string
	tier   provider.Tier
	prices provider.PriceMap
	err    error
	panics bool
	block  bool
}

func (f *fakeProvider) Name() string        { return f.name }
func (f *fakeProvider) Tier() provider.Tier { return f.tier }
func (f *fakeProvider) Fetch(ctx context.Context, ids []asset.ID) (provider.PriceMap, error) {
	if f.panics {
		panic("boom")
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	out := provider.PriceMap{}
	for _, id := range ids {
		if r, ok := f.prices[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

type fakeCache provider.PriceMap

func (c fakeCache) LoadPrices() (provider.PriceMap, error) { return provider.PriceMap(c), nil }

func catalog(t *testing.T) *asset.Catalog {
	t.Helper()
	c, err := asset.NewCatalog(
		asset.Asset{ID: "bitcoin", Symbol: "BTC", Market: asset.Crypto},
		asset.Asset{ID: "AAPL", Symbol: "AAPL", Market: asset.US},
	)
	require.NoError(t, err)
	return c
}

func TestRun_MergesAllProviders(t *testing.T) {
	t.Parallel()

	// Arrange
	spot := &fakeProvider{name: "spot", tier: provider.TierPrimary, prices: provider.PriceMap{
		"bitcoin": {Price: 50000, Change24h: 2, Source: "spot"},
	}}
	agg := &fakeProvider{name: "agg", tier: provider.TierAggregator, prices: provider.PriceMap{
		"bitcoin": {Price: 50100, Change24h: 1.9, Change7d: provider.Float(5), MarketCap: provider.Float(900e9), Source: "agg"},
	}}
	fmp := &fakeProvider{name: "fmp", tier: provider.TierMarket, err: errors.New("down")}
	p := pipeline.New(pipeline.Config{}, catalog(t), []provider.Provider{fmp, agg, spot}, pipeline.WithLogger(logger.Discard()))

	// Act
	res, err := p.Run(t.Context(), nil)

	// Assert
	require.NoError(t, err)
	require.NotEmpty(t, res.CycleID)
	btc := res.Prices["bitcoin"]
	require.Equal(t, 50000.0, btc.Price)
	require.Equal(t, 2.0, btc.Change24h)
	require.Equal(t, 5.0, *btc.Change7d)
	require.Equal(t, 900e9, *btc.MarketCap)
	require.Len(t, res.Reports, 3)
	require.Equal(t, "fmp", res.Reports[0].Source)
	require.Equal(t, "down", res.Reports[0].Err)
}

func TestRun_EmptyCycleKeepsPrevious(t *testing.T) {
	t.Parallel()

	prev := provider.PriceMap{"bitcoin": {Price: 1}}
	throttled := &fakeProvider{name: "agg", tier: provider.TierAggregator, err: provider.ErrThrottled}
	p := pipeline.New(pipeline.Config{}, catalog(t), []provider.Provider{throttled}, pipeline.WithLogger(logger.Discard()))

	res, err := p.Run(t.Context(), prev)

	require.ErrorIs(t, err, pipeline.ErrEmptyCycle)
	require.ErrorIs(t, err, provider.ErrThrottled)
	require.True(t, res.Reports[0].Throttled)
	require.Equal(t, prev, res.Prices)
	require.Empty(t, res.Fresh)
}

func TestRun_RecoversPanicsAndTimeouts(t *testing.T) {
	t.Parallel()

	ok := &fakeProvider{name: "spot", tier: provider.TierPrimary, prices: provider.PriceMap{"bitcoin": {Price: 3}}}
	bad := &fakeProvider{name: "bad", tier: provider.TierAggregator, panics: true}
	slow := &fakeProvider{name: "slow", tier: provider.TierMarket, block: true}
	p := pipeline.New(pipeline.Config{ProviderTimeout: 20 * time.Millisecond}, catalog(t),
		[]provider.Provider{ok, bad, slow}, pipeline.WithLogger(logger.Discard()))

	res, err := p.Run(t.Context(), nil)

	require.NoError(t, err)
	require.Equal(t, 3.0, res.Prices["bitcoin"].Price)
	require.Contains(t, res.Reports[1].Err, "panicked")
	require.Contains(t, res.Reports[2].Err, "deadline")
}

func TestRun_CachedMarketsWhenFeedsDown(t *testing.T) {
	t.Parallel()

	spot := &fakeProvider{name: "spot", tier: provider.TierPrimary, prices: provider.PriceMap{"bitcoin": {Price: 3}}}
	fmp := &fakeProvider{name: "fmp", tier: provider.TierMarket, err: errors.New("down")}
	cache := fakeCache{"AAPL": {Price: 190, Currency: "USD"}, "bitcoin": {Price: 1}}
	p := pipeline.New(pipeline.Config{}, catalog(t), []provider.Provider{spot, fmp},
		pipeline.WithFallback(cache), pipeline.WithLogger(logger.Discard()))

	res, err := p.Run(t.Context(), nil)

	require.NoError(t, err)
	require.Equal(t, 190.0, res.Prices["AAPL"].Price)
	require.Equal(t, 3.0, res.Prices["bitcoin"].Price)
}

func TestRun_WorkingSet(t *testing.T) {
	t.Parallel()

	spot := &fakeProvider{name: "spot", tier: provider.TierPrimary, prices: provider.PriceMap{
		"bitcoin": {Price: 3}, "ethereum": {Price: 2},
	}}
	p := pipeline.New(pipeline.Config{}, catalog(t), []provider.Provider{spot},
		pipeline.WithWorkingSet(func() []asset.ID { return []asset.ID{"ethereum"} }),
		pipeline.WithLogger(logger.Discard()))

	res, err := p.Run(t.Context(), nil)
	require.NoError(t, err)
	require.Len(t, res.Fresh, 1)
	require.Contains(t, res.Fresh, asset.ID("ethereum"))
}

func TestFetchOne_TierOrder(t *testing.T) {
	t.Parallel()

	agg := &fakeProvider{name: "agg", tier: provider.TierAggregator, prices: provider.PriceMap{"pepe": {Price: 0.1}, "bitcoin": {Price: 2}}}
	spot := &fakeProvider{name: "spot", tier: provider.TierPrimary, prices: provider.PriceMap{"bitcoin": {Price: 1}}}
	p := pipeline.New(pipeline.Config{}, catalog(t), []provider.Provider{agg, spot}, pipeline.WithLogger(logger.Discard()))

	r, err := p.FetchOne(t.Context(), "bitcoin")
	require.NoError(t, err)
	require.Equal(t, 1.0, r.Price)

	r, err = p.FetchOne(t.Context(), "pepe")
	require.NoError(t, err)
	require.Equal(t, 0.1, r.Price)

	_, err = p.FetchOne(t.Context(), "nope")
	require.Error(t, err)
}
