// Package asset defines asset identifiers, markets and the catalog of
// known assets the price pipeline tracks.
package asset

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ID is the opaque key used across the system for one tradable asset.
// Crypto ids are aggregator ids ("bitcoin", "avalanche-2"), US equities are
// plain tickers, BIST equities end in ".IS" and funds end in ".TEFAS".
type ID string

// Market is the asset class an ID belongs to.
type Market string

const (
	Crypto Market = "crypto"
	US     Market = "us"
	BIST   Market = "bist"
	TEFAS  Market = "tefas"
)

const (
	tefasSuffix = ".TEFAS"
	bistSuffix  = ".IS"
)

// ErrOverlap is returned when an ID is registered under two markets.
var ErrOverlap = errors.New("asset id already registered under another market")

// Asset describes one catalog entry.
type Asset struct {
	ID       ID     `json:"id" yaml:"id"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Name     string `json:"name" yaml:"name"`
	Market   Market `json:"market" yaml:"market"`
	Currency string `json:"currency,omitempty" yaml:"currency,omitempty"`
	Sector   string `json:"sector,omitempty" yaml:"sector,omitempty"`
}

// Currency returns the quote currency of a market.
func (m Market) Currency() string {
	switch m {
	case BIST, TEFAS:
		return "TRY"
	default:
		return "USD"
	}
}

// IsStock reports whether the market is priced by an equity or fund feed.
func (m Market) IsStock() bool { return m == US || m == BIST || m == TEFAS }

// InferMarket guesses the market of an ID that is not in any catalog.
// Unknown ids are treated as crypto.
func InferMarket(id ID) Market {
	s := strings.ToUpper(string(id))
	switch {
	case strings.HasSuffix(s, tefasSuffix):
		return TEFAS
	case strings.HasSuffix(s, bistSuffix):
		return BIST
	default:
		return Crypto
	}
}

// FundCode strips the ".TEFAS" suffix from a fund id.
func FundCode(id ID) string {
	s := strings.ToUpper(string(id))
	return strings.TrimSuffix(s, tefasSuffix)
}

// FundID builds the catalog id of a fund code.
func FundID(code string) ID { return ID(strings.ToUpper(strings.TrimSpace(code)) + tefasSuffix) }

// Catalog is the set of known assets. It is safe for concurrent use.
type Catalog struct {
	mu    sync.RWMutex
	byID  map[ID]Asset
	order []ID
}

// NewCatalog returns a catalog seeded with the given assets. Seeds that
// collide across markets are reported as an error.
func NewCatalog(seed ...Asset) (*Catalog, error) {
	c := &Catalog{byID: make(map[ID]Asset, len(seed))}
	for _, a := range seed {
		if err := c.Add(a); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add registers an asset. Re-adding an ID under the same market replaces
// the entry; registering it under a different market fails with ErrOverlap.
func (c *Catalog) Add(a Asset) error {
	if a.ID == "" {
		return errors.New("asset id is empty")
	}
	if a.Market == "" {
		a.Market = InferMarket(a.ID)
	}
	if a.Currency == "" {
		a.Currency = a.Market.Currency()
	}
	if a.Symbol == "" {
		a.Symbol = defaultSymbol(a)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.byID[a.ID]; ok {
		if prev.Market != a.Market {
			return fmt.Errorf("%w: %s is %s, not %s", ErrOverlap, a.ID, prev.Market, a.Market)
		}
		c.byID[a.ID] = a
		return nil
	}
	c.byID[a.ID] = a
	c.order = append(c.order, a.ID)
	return nil
}

// Remove drops id from the catalog. Removing an unknown id is a no-op.
func (c *Catalog) Remove(id ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[id]; !ok {
		return
	}
	delete(c.byID, id)
	for i, x := range c.order {
		if x == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Lookup returns the asset registered under id.
func (c *Catalog) Lookup(id ID) (Asset, bool) {
	if c == nil {
		return Asset{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.byID[id]
	return a, ok
}

// MarketOf returns the catalog market of id, or the inferred one.
func (c *Catalog) MarketOf(id ID) Market {
	if a, ok := c.Lookup(id); ok {
		return a.Market
	}
	return InferMarket(id)
}

// IDs returns all ids in registration order.
func (c *Catalog) IDs() []ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ID, len(c.order))
	copy(out, c.order)
	return out
}

// All returns every asset in registration order.
func (c *Catalog) All() []Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Asset, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// ByMarket returns the assets of one market sorted by id.
func (c *Catalog) ByMarket(m Market) []Asset {
	var out []Asset
	for _, a := range c.All() {
		if a.Market == m {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func defaultSymbol(a Asset) string {
	if a.Market == TEFAS {
		return FundCode(a.ID)
	}
	return strings.ToUpper(string(a.ID))
}
