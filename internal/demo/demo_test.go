package demo_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/KerimSelki/crypto-vault/internal/asset"
	"github.com/KerimSelki/crypto-vault/internal/demo"
)

func TestPrices_Bounds(t *testing.T) {
	t.Parallel()

	g := demo.New(42)
	for i := 0; i < 50; i++ {
		got := g.Prices([]asset.ID{"bitcoin", "unlisted"})
		btc := got["bitcoin"]
		require.InDelta(t, 97000, btc.Price, 97000*0.02)
		require.GreaterOrEqual(t, btc.Change24h, -5.4)
		require.Less(t, btc.Change24h, 6.6)
		require.GreaterOrEqual(t, *btc.Change7d, -9.0)
		require.Less(t, *btc.Change7d, 11.0)
		require.Equal(t, demo.Source, btc.Source)
		require.InDelta(t, demo.DefaultBase, got["unlisted"].Price, demo.DefaultBase*0.02)
	}
}

func TestPrices_SeedIsDeterministic(t *testing.T) {
	t.Parallel()

	fixed := func() time.Time { return time.Unix(0, 0) }
	a := demo.New(7).WithNow(fixed).Prices([]asset.ID{"ethereum", "solana"})
	b := demo.New(7).WithNow(fixed).Prices([]asset.ID{"ethereum", "solana"})
	require.Equal(t, a, b)
}

func TestCrypto_OnlyCryptoAssets(t *testing.T) {
	t.Parallel()

	got := demo.New(1).Crypto(asset.DefaultCatalog())
	require.Len(t, got, len(asset.DefaultCoins))
	require.NotContains(t, got, asset.ID("AAPL"))
}
