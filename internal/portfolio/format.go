package portfolio

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatMoney renders amount with the currency's symbol and fraction
// digits. Unknown currency codes fall back to "<amount> <code>".
func FormatMoney(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(strings.ToUpper(currency))
	if cur == nil {
		return amount.StringFixed(2) + " " + currency
	}
	factor := decimal.New(1, int32(cur.Fraction))
	minor := amount.Mul(factor).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}

// FormatPercent renders p with an explicit sign and two decimals.
func FormatPercent(p decimal.Decimal) string {
	s := p.StringFixed(2) + "%"
	if p.IsPositive() {
		return "+" + s
	}
	return s
}

// Markdown renders a summary as a markdown report: totals, holdings and the
// allocation by market.
func Markdown(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", s.Name)
	fmt.Fprintf(&b, "| Value | Invested | P&L | 24h |\n|---:|---:|---:|---:|\n")
	fmt.Fprintf(&b, "| %s | %s | %s (%s) | %s |\n\n",
		FormatMoney(s.Value, s.Currency),
		FormatMoney(s.Invested, s.Currency),
		FormatMoney(s.PnL, s.Currency), FormatPercent(s.PnLPct),
		FormatMoney(s.Change24h, s.Currency))

	if len(s.Lines) == 0 {
		b.WriteString("_No holdings._\n")
		return b.String()
	}

	b.WriteString("## Holdings\n\n")
	b.WriteString("| Asset | Market | Quantity | Price | Value | P&L |\n|---|---|---:|---:|---:|---:|\n")
	for _, l := range s.Lines {
		price := FormatMoney(l.Price, l.Currency)
		if !l.Priced {
			price = "n/a"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			l.Symbol, l.Market, l.Quantity.String(), price,
			FormatMoney(l.Value, l.Currency), FormatPercent(l.PnLPct))
	}

	b.WriteString("\n## Allocation\n\n| Market | Share |\n|---|---:|\n")
	for _, sh := range Allocation(s.Lines, ByMarket) {
		fmt.Fprintf(&b, "| %s | %s%% |\n", sh.Key, sh.Percent.StringFixed(1))
	}
	return b.String()
}
