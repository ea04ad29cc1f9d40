// Package demo generates synthetic prices shown when every live source has
// been unreachable for too long.
package demo

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/KerimSelki/crypto-vault/internal/asset"
	"github.com/KerimSelki/crypto-vault/internal/provider"
)

// Source is the Source field of every demo record.
const Source = "demo"

// BasePrices are the USD anchors demo prices jitter around. Ids without an
// anchor use DefaultBase.
var BasePrices = map[asset.ID]float64{
	"bitcoin":       97000,
	"ethereum":      3400,
	"binancecoin":   680,
	"solana":        190,
	"ripple":        2.3,
	"cardano":       0.72,
	"avalanche-2":   38,
	"polkadot":      7.2,
	"dogecoin":      0.32,
	"chainlink":     22,
	"tron":          0.24,
	"matic-network": 0.38,
	"litecoin":      108,
	"uniswap":       13.5,
	"stellar":       0.42,
}

const DefaultBase = 10.0

// Generator produces demo records from a seeded source, so a fixed seed
// yields a fixed sequence.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

func New(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), now: time.Now}
}

// WithNow sets the UpdatedAt clock.
func (g *Generator) WithNow(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Prices returns a record for every id: price within ±2% of the base,
// 24h change in [-5.4, 6.6), 7d change in [-9, 11) and a market cap scaled
// from the base.
func (g *Generator) Prices(ids []asset.ID) provider.PriceMap {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now().UTC()
	out := make(provider.PriceMap, len(ids))
	for _, id := range ids {
		x, ok := BasePrices[id]
		if !ok {
			x = DefaultBase
		}
		out[id] = provider.PriceRecord{
			Price:     x * (1 + (g.rng.Float64()-0.5)*0.04),
			Change24h: (g.rng.Float64() - 0.45) * 12,
			Change7d:  provider.Float((g.rng.Float64() - 0.45) * 20),
			MarketCap: provider.Float(x * (1e6 + g.rng.Float64()*1e9)),
			Currency:  "USD",
			Market:    asset.Crypto,
			Source:    Source,
			UpdatedAt: now,
		}
	}
	return out
}

// Crypto returns demo prices for the crypto assets of a catalog.
func (g *Generator) Crypto(c *asset.Catalog) provider.PriceMap {
	as := c.ByMarket(asset.Crypto)
	ids := make([]asset.ID, 0, len(as))
	for _, a := range as {
		ids = append(ids, a.ID)
	}
	return g.Prices(ids)
}
