// Package symbol maps asset ids to the native symbols each upstream provider
// expects.
//
// Resolution tries, in order: the provider's override table, the catalog's
// canonical symbol under the provider's convention, and a deterministic
// transform of the raw id. When a provider universe is supplied the result
// must also be a member of it. The first step that yields a candidate wins.
package symbol

import (
	"regexp"
	"strings"
	"sync"

	"github.com/KerimSelki/crypto-vault/internal/asset"
)

// ProviderID names an upstream symbol namespace.
type ProviderID string

const (
	BinanceSpot    ProviderID = "binance-spot"
	BinanceFutures ProviderID = "binance-futures"
	CoinGecko      ProviderID = "coingecko"
	FMP            ProviderID = "fmp"
	Yahoo          ProviderID = "yahoo"
	TEFAS          ProviderID = "tefas"
)

// Table maps asset ids to native symbols.
type Table map[asset.ID]string

// Resolution is the outcome of resolving one id for one provider.
type Resolution struct {
	Symbol string
	OK     bool
}

// NoMapping is returned when an id cannot be expressed for a provider.
var NoMapping = Resolution{}

// Universe is the set of symbols a provider currently lists.
type Universe interface {
	Has(symbol string) bool
}

// Set is a Universe backed by a map.
type Set map[string]struct{}

func (s Set) Has(symbol string) bool {
	_, ok := s[symbol]
	return ok
}

// NewSet builds a Set from a symbol list.
func NewSet(symbols ...string) Set {
	s := make(Set, len(symbols))
	for _, v := range symbols {
		s[v] = struct{}{}
	}
	return s
}

type convention struct {
	markets   []asset.Market
	canonical func(a asset.Asset) string
	fallback  func(id asset.ID) string
}

func (c convention) applies(m asset.Market) bool {
	for _, x := range c.markets {
		if x == m {
			return true
		}
	}
	return false
}

// QuoteAsset is the quote currency of every Binance pair the pipeline reads.
const QuoteAsset = "USDT"

var (
	trailingDigits = regexp.MustCompile(`-\d+$`)
	nonAlnum       = regexp.MustCompile(`[^A-Za-z0-9]`)
	nonAlnumDot    = regexp.MustCompile(`[^A-Za-z0-9.]`)
)

func binancePair(base string) string {
	base = strings.ToUpper(nonAlnum.ReplaceAllString(base, ""))
	if base == "" {
		return ""
	}
	return base + QuoteAsset
}

var binanceConvention = convention{
	markets:   []asset.Market{asset.Crypto},
	canonical: func(a asset.Asset) string { return binancePair(a.Symbol) },
	fallback: func(id asset.ID) string {
		s := trailingDigits.ReplaceAllString(string(id), "")
		return binancePair(s)
	},
}

var conventions = map[ProviderID]convention{
	BinanceSpot:    binanceConvention,
	BinanceFutures: binanceConvention,
	CoinGecko: {
		markets:   []asset.Market{asset.Crypto},
		canonical: func(a asset.Asset) string { return string(a.ID) },
		fallback:  func(id asset.ID) string { return strings.ToLower(strings.TrimSpace(string(id))) },
	},
	FMP:   equityConvention,
	Yahoo: equityConvention,
	TEFAS: {
		markets:   []asset.Market{asset.TEFAS},
		canonical: func(a asset.Asset) string { return strings.ToUpper(a.Symbol) },
		fallback: func(id asset.ID) string {
			return strings.ToUpper(nonAlnum.ReplaceAllString(asset.FundCode(id), ""))
		},
	},
}

var equityConvention = convention{
	markets:   []asset.Market{asset.US, asset.BIST},
	canonical: func(a asset.Asset) string { return strings.ToUpper(a.Symbol) },
	fallback: func(id asset.ID) string {
		return strings.ToUpper(nonAlnumDot.ReplaceAllString(string(id), ""))
	},
}

// Resolver resolves ids against static tables and the catalog. It performs
// no I/O; the only mutation is Extend.
type Resolver struct {
	catalog *asset.Catalog

	mu        sync.RWMutex
	overrides map[ProviderID]Table
	universes map[ProviderID]Universe
}

// NewResolver returns a resolver seeded with the default override tables.
func NewResolver(catalog *asset.Catalog) *Resolver {
	r := &Resolver{
		catalog:   catalog,
		overrides: map[ProviderID]Table{},
		universes: map[ProviderID]Universe{},
	}
	binance := BinanceTable()
	r.Extend(BinanceSpot, binance)
	r.Extend(BinanceFutures, binance)
	return r
}

// Extend adds entries to a provider's override table. Existing entries are
// replaced by the new ones.
func (r *Resolver) Extend(p ProviderID, t Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dst := r.overrides[p]
	if dst == nil {
		dst = make(Table, len(t))
		r.overrides[p] = dst
	}
	for k, v := range t {
		dst[k] = v
	}
}

// WithUniverse restricts a provider to the given symbols. A nil universe
// removes the restriction.
func (r *Resolver) WithUniverse(p ProviderID, u Universe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u == nil {
		delete(r.universes, p)
		return
	}
	r.universes[p] = u
}

// Market returns the catalog market of id, or the inferred one.
func (r *Resolver) Market(id asset.ID) asset.Market {
	return r.catalog.MarketOf(id)
}

// Resolve maps id to provider p's native symbol.
func (r *Resolver) Resolve(id asset.ID, p ProviderID) Resolution {
	r.mu.RLock()
	u := r.universes[p]
	r.mu.RUnlock()
	return r.ResolveIn(id, p, u)
}

// ResolveIn is Resolve against an explicit universe; nil means unrestricted.
func (r *Resolver) ResolveIn(id asset.ID, p ProviderID, u Universe) Resolution {
	conv, ok := conventions[p]
	if !ok || id == "" {
		return NoMapping
	}
	a, known := r.catalog.Lookup(id)
	market := asset.InferMarket(id)
	if known {
		market = a.Market
	}
	if !conv.applies(market) {
		return NoMapping
	}

	// first candidate the universe lists wins
	for _, sym := range r.candidates(id, p, conv, a, known) {
		if u == nil || u.Has(sym) {
			return Resolution{Symbol: sym, OK: true}
		}
	}
	return NoMapping
}

// candidates returns override, catalog symbol and generic transform, in
// that order, without blanks or repeats.
func (r *Resolver) candidates(id asset.ID, p ProviderID, conv convention, a asset.Asset, known bool) []string {
	out := make([]string, 0, 3)
	add := func(s string) {
		if s == "" {
			return
		}
		for _, x := range out {
			if x == s {
				return
			}
		}
		out = append(out, s)
	}
	r.mu.RLock()
	add(r.overrides[p][id])
	r.mu.RUnlock()
	if known && a.Symbol != "" {
		add(conv.canonical(a))
	}
	add(conv.fallback(id))
	return out
}

// ResolveAll resolves every id and returns native symbol -> ids. Several ids
// may share one native symbol.
func (r *Resolver) ResolveAll(ids []asset.ID, p ProviderID) map[string][]asset.ID {
	out := make(map[string][]asset.ID, len(ids))
	seen := make(map[asset.ID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		res := r.Resolve(id, p)
		if !res.OK {
			continue
		}
		out[res.Symbol] = append(out[res.Symbol], id)
	}
	return out
}

// Symbols returns the keys of a ResolveAll result in first-seen id order.
func Symbols(ids []asset.ID, byNative map[string][]asset.ID) []string {
	owner := make(map[asset.ID]string, len(ids))
	for sym, xs := range byNative {
		for _, id := range xs {
			owner[id] = sym
		}
	}
	out := make([]string, 0, len(byNative))
	seen := make(map[string]struct{}, len(byNative))
	for _, id := range ids {
		sym, ok := owner[id]
		if !ok {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}
