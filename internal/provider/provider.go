package provider

import (
    "context"
    "errors"
    "math"
    "strconv"
    "strings"
    "time"

    "github.com/KerimSelki/crypto-vault/internal/asset"
)

var (
    // ErrThrottled marks an upstream rate-limit response (HTTP 429).
    ErrThrottled = errors.New("throttled")
    // ErrNoSymbols is returned when none of the requested assets resolve for a provider.
    ErrNoSymbols = errors.New("no resolvable symbols")
)

// Derivatives holds perpetual-futures fields attached to a spot record.
type Derivatives struct {
    PerpPrice       float64   `json:"perp_price"`
    MarkPrice       float64   `json:"mark_price"`
    IndexPrice      float64   `json:"index_price,omitempty"`
    FundingRate     float64   `json:"funding_rate"`
    NextFundingTime time.Time `json:"next_funding_time,omitempty"`
    PerpChange24h   float64   `json:"perp_change_24h"`
    PerpVolume      float64   `json:"perp_volume"`
}

// PriceRecord is the normalized price of one asset from one source.
type PriceRecord struct {
    Price       float64      `json:"price"`
    Change24h   float64      `json:"change_24h"`
    Change7d    *float64     `json:"change_7d,omitempty"`
    MarketCap   *float64     `json:"market_cap,omitempty"`
    Currency    string       `json:"currency"`
    Market      asset.Market `json:"market"`
    Source      string       `json:"source"`
    UpdatedAt   time.Time    `json:"updated_at"`
    Derivatives *Derivatives `json:"derivatives,omitempty"`
}

// PriceMap maps assets to their latest record.
type PriceMap map[asset.ID]PriceRecord

// Clone returns a copy whose records do not share Derivatives or pointer fields.
func (m PriceMap) Clone() PriceMap {
    out := make(PriceMap, len(m))
    for id, r := range m { out[id] = r.Clone() }
    return out
}

// Clone deep-copies the optional fields of r.
func (r PriceRecord) Clone() PriceRecord {
    if r.Change7d != nil { r.Change7d = Float(*r.Change7d) }
    if r.MarketCap != nil { r.MarketCap = Float(*r.MarketCap) }
    if r.Derivatives != nil { d := *r.Derivatives; r.Derivatives = &d }
    return r
}

// Tier orders providers by merge precedence, lowest first.
type Tier int

const (
    TierPrimary Tier = iota
    TierDerivatives
    TierAggregator
    TierMarket
)

func (t Tier) String() string {
    switch t {
    case TierPrimary:
        return "primary"
    case TierDerivatives:
        return "derivatives"
    case TierAggregator:
        return "aggregator"
    case TierMarket:
        return "market"
    }
    return "tier(" + strconv.Itoa(int(t)) + ")"
}

// Provider fetches prices for a set of assets. A nil error means success;
// a non-nil error always comes with an empty map.
type Provider interface {
    Name() string
    Tier() Tier
    Fetch(ctx context.Context, ids []asset.ID) (PriceMap, error)
}

// Partial is one provider's settled result within a cycle.
type Partial struct {
    Source string
    Tier   Tier
    Prices PriceMap
    Err    error
}

// OK reports whether the provider succeeded.
func (p Partial) OK() bool { return p.Err == nil }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// ValidPrice reports whether v is usable as a price.
func ValidPrice(v float64) bool {
    return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// ParseFloat parses a numeric string from an upstream payload. Empty and
// non-finite values are rejected.
func ParseFloat(s string) (float64, bool) {
    s = strings.TrimSpace(s)
    if s == "" { return 0, false }
    v, err := strconv.ParseFloat(s, 64)
    if err != nil || math.IsNaN(v) || math.IsInf(v, 0) { return 0, false }
    return v, true
}

// Finite returns v, or 0 when v is NaN or infinite.
func Finite(v float64) float64 {
    if math.IsNaN(v) || math.IsInf(v, 0) { return 0 }
    return v
}
