// Package portfolio values holdings against the unified price map.
//
// Every line is valued in its asset's own currency and converted to the
// base currency for totals, P&L and allocation.
package portfolio

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/KerimSelki/crypto-vault/internal/asset"
	"github.com/KerimSelki/crypto-vault/internal/provider"
)

// Item is one holding.
type Item struct {
	AssetID    asset.ID        `json:"asset_id" yaml:"asset_id"`
	Quantity   decimal.Decimal `json:"quantity" yaml:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price" yaml:"entry_price"`
	Category   string          `json:"category,omitempty" yaml:"category,omitempty"`
}

type Portfolio struct {
	Name  string `json:"name"`
	Items []Item `json:"items"`
}

// Line is a valued holding.
type Line struct {
	AssetID    asset.ID        `json:"asset_id"`
	Symbol     string          `json:"symbol"`
	Name       string          `json:"name"`
	Market     asset.Market    `json:"market"`
	Currency   string          `json:"currency"`
	Category   string          `json:"category,omitempty"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Price      decimal.Decimal `json:"price"`
	Change24h  float64         `json:"change_24h"`
	Value      decimal.Decimal `json:"value"`
	Invested   decimal.Decimal `json:"invested"`
	PnL        decimal.Decimal `json:"pnl"`
	PnLPct     decimal.Decimal `json:"pnl_pct"`
	ValueBase  decimal.Decimal `json:"value_base"`
	Priced     bool            `json:"priced"`
	Portfolios []string        `json:"portfolios,omitempty"`
}

// Summary totals one portfolio, or the combined view, in the base currency.
type Summary struct {
	Name      string          `json:"name"`
	Currency  string          `json:"currency"`
	Value     decimal.Decimal `json:"value"`
	Invested  decimal.Decimal `json:"invested"`
	PnL       decimal.Decimal `json:"pnl"`
	PnLPct    decimal.Decimal `json:"pnl_pct"`
	Change24h decimal.Decimal `json:"change_24h"`
	Count     int             `json:"count"`
	Lines     []Line          `json:"lines"`
}

var hundred = decimal.NewFromInt(100)

func pct(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

// Valuer values portfolios with one catalog, price map and rate table.
type Valuer struct {
	Catalog *asset.Catalog
	Prices  provider.PriceMap
	Rates   Rates
}

func (v Valuer) line(it Item) Line {
	a, ok := v.Catalog.Lookup(it.AssetID)
	if !ok {
		a = asset.Asset{ID: it.AssetID, Symbol: string(it.AssetID), Name: string(it.AssetID), Market: asset.InferMarket(it.AssetID)}
		a.Currency = a.Market.Currency()
	}
	l := Line{
		AssetID:    it.AssetID,
		Symbol:     a.Symbol,
		Name:       a.Name,
		Market:     a.Market,
		Currency:   a.Currency,
		Category:   it.Category,
		Quantity:   it.Quantity,
		EntryPrice: it.EntryPrice,
	}
	if r, ok := v.Prices[it.AssetID]; ok && provider.ValidPrice(r.Price) {
		l.Price = decimal.NewFromFloat(r.Price)
		l.Change24h = r.Change24h
		l.Priced = true
		if r.Currency != "" {
			l.Currency = r.Currency
		}
	}
	l.Value = l.Quantity.Mul(l.Price)
	l.Invested = l.Quantity.Mul(l.EntryPrice)
	l.PnL = l.Value.Sub(l.Invested)
	l.PnLPct = pct(l.PnL, l.Invested)
	l.ValueBase = v.Rates.Convert(l.Value, l.Currency)
	return l
}

func (v Valuer) summarize(name string, lines []Line) Summary {
	s := Summary{Name: name, Currency: v.Rates.Base, Count: len(lines), Lines: lines}
	for _, l := range lines {
		s.Value = s.Value.Add(l.ValueBase)
		s.Invested = s.Invested.Add(v.Rates.Convert(l.Invested, l.Currency))
		s.Change24h = s.Change24h.Add(l.ValueBase.Mul(decimal.NewFromFloat(l.Change24h)).Div(hundred))
	}
	s.PnL = s.Value.Sub(s.Invested)
	s.PnLPct = pct(s.PnL, s.Invested)
	return s
}

// Value values one portfolio. Lines keep item order.
func (v Valuer) Value(p Portfolio) Summary {
	lines := make([]Line, 0, len(p.Items))
	for _, it := range p.Items {
		lines = append(lines, v.line(it))
	}
	return v.summarize(p.Name, lines)
}

// Summaries values each portfolio, keeping input order.
func (v Valuer) Summaries(ps []Portfolio) []Summary {
	out := make([]Summary, 0, len(ps))
	for _, p := range ps {
		out = append(out, v.Value(p))
	}
	return out
}

// Combined merges every portfolio by asset: quantities and invested amounts
// add up and the entry price becomes the weighted average. Lines are sorted
// by base value, largest first.
func (v Valuer) Combined(name string, ps []Portfolio) Summary {
	type acc struct {
		item       Item
		invested   decimal.Decimal
		portfolios []string
	}
	byID := make(map[asset.ID]*acc)
	var order []asset.ID
	for _, p := range ps {
		for _, it := range p.Items {
			a, ok := byID[it.AssetID]
			if !ok {
				a = &acc{item: Item{AssetID: it.AssetID, Category: it.Category}}
				byID[it.AssetID] = a
				order = append(order, it.AssetID)
			}
			a.item.Quantity = a.item.Quantity.Add(it.Quantity)
			a.invested = a.invested.Add(it.Quantity.Mul(it.EntryPrice))
			a.portfolios = append(a.portfolios, p.Name)
		}
	}
	lines := make([]Line, 0, len(order))
	for _, id := range order {
		a := byID[id]
		if a.item.Quantity.IsPositive() {
			a.item.EntryPrice = a.invested.Div(a.item.Quantity)
		}
		l := v.line(a.item)
		l.Invested = a.invested
		l.PnL = l.Value.Sub(l.Invested)
		l.PnLPct = pct(l.PnL, l.Invested)
		l.Portfolios = a.portfolios
		lines = append(lines, l)
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].ValueBase.GreaterThan(lines[j].ValueBase) })
	return v.summarize(name, lines)
}

// Share is one slice of an allocation.
type Share struct {
	Key     string          `json:"key"`
	Value   decimal.Decimal `json:"value"`
	Percent decimal.Decimal `json:"percent"`
}

// Allocation groups lines by key and returns shares of the base value,
// largest first; ties sort by key.
func Allocation(lines []Line, key func(Line) string) []Share {
	total := decimal.Zero
	sums := make(map[string]decimal.Decimal)
	for _, l := range lines {
		k := key(l)
		sums[k] = sums[k].Add(l.ValueBase)
		total = total.Add(l.ValueBase)
	}
	out := make([]Share, 0, len(sums))
	for k, v := range sums {
		out = append(out, Share{Key: k, Value: v, Percent: pct(v, total)})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Value.Equal(out[j].Value) {
			return out[i].Value.GreaterThan(out[j].Value)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func ByMarket(l Line) string   { return string(l.Market) }
func ByAsset(l Line) string    { return string(l.AssetID) }
func ByCurrency(l Line) string { return l.Currency }

// ByCategory groups uncategorized lines under DefaultCategory.
func ByCategory(l Line) string {
	if l.Category == "" {
		return DefaultCategory
	}
	return l.Category
}

// DefaultCategory is the category of items saved without one.
const DefaultCategory = "General"
