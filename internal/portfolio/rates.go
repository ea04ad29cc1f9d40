package portfolio

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultUSDTRY is the USD/TRY rate used until a live rate is configured.
const DefaultUSDTRY = 36.42

// Rates converts amounts into Base. PerBase holds how many units of each
// currency one unit of Base buys.
type Rates struct {
	Base    string
	PerBase map[string]decimal.Decimal
}

func DefaultRates() Rates {
	return Rates{Base: "USD", PerBase: map[string]decimal.Decimal{
		"USD": decimal.NewFromInt(1),
		"TRY": decimal.NewFromFloat(DefaultUSDTRY),
	}}
}

// WithRate returns a copy of r with one rate replaced.
func (r Rates) WithRate(currency string, perBase float64) Rates {
	out := Rates{Base: r.Base, PerBase: make(map[string]decimal.Decimal, len(r.PerBase)+1)}
	for k, v := range r.PerBase {
		out.PerBase[k] = v
	}
	out.PerBase[strings.ToUpper(currency)] = decimal.NewFromFloat(perBase)
	return out
}

// Convert returns amount in Base. Unknown currencies, and the base itself,
// are taken at par.
func (r Rates) Convert(amount decimal.Decimal, currency string) decimal.Decimal {
	currency = strings.ToUpper(currency)
	if currency == "" || currency == r.Base {
		return amount
	}
	rate, ok := r.PerBase[currency]
	if !ok || !rate.IsPositive() {
		return amount
	}
	return amount.Div(rate)
}
