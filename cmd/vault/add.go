package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/KerimSelki/crypto-vault/internal/app"
	"github.com/KerimSelki/crypto-vault/internal/asset"
	"github.com/KerimSelki/crypto-vault/internal/portfolio"
)

type addCmd struct {
	portfolio string
	id        string
	symbol    string
	name      string
	market    string
	quantity  string
	price     string
	category  string
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "add a holding to a portfolio" }
func (*addCmd) Usage() string {
	return `vault add -a <asset id> -q <quantity> [-e <entry price>] [-p <portfolio>] [-m <market>] [-sym <symbol>] [-n <name>] [-c <category>]

  Adds a holding. Assets missing from the catalog are registered and priced
  right away. When -e is omitted the current price is used as entry price.
`
}

func (c *addCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.portfolio, "p", "", "portfolio name (default: the active portfolio)")
	f.StringVar(&c.id, "a", "", "asset id, e.g. bitcoin, AAPL, THYAO.IS, IPB.TEFAS")
	f.StringVar(&c.symbol, "sym", "", "ticker symbol for new assets")
	f.StringVar(&c.name, "n", "", "display name for new assets")
	f.StringVar(&c.market, "m", "", "market for new assets: crypto, us, bist, tefas (default: inferred)")
	f.StringVar(&c.quantity, "q", "", "quantity")
	f.StringVar(&c.price, "e", "", "entry price per unit")
	f.StringVar(&c.category, "c", "", "category")
}

func (c *addCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.id == "" || c.quantity == "" {
		fmt.Fprintln(os.Stderr, "-a and -q are required")
		return subcommands.ExitUsageError
	}
	qty, err := decimal.NewFromString(c.quantity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing quantity: %v\n", err)
		return subcommands.ExitUsageError
	}

	a, err := loadApp()
	if err != nil {
		return fail("Error loading app: %v", err)
	}
	id := asset.ID(c.id)

	var current float64
	if _, known := a.Catalog.Lookup(id); !known {
		rec, err := a.AddAsset(ctx, asset.Asset{ID: id, Symbol: c.symbol, Name: c.name, Market: asset.Market(c.market)})
		if err != nil {
			if !errors.Is(err, app.ErrNotPriced) {
				return fail("Error registering asset: %v", err)
			}
			fmt.Fprintf(os.Stderr, "warning: %s registered but not priced yet: %v\n", id, err)
		} else {
			current = rec.Price
		}
	} else if rec, ok := a.Scheduler.Prices()[id]; ok {
		current = rec.Price
	}

	entry := decimal.NewFromFloat(current)
	if c.price != "" {
		if entry, err = decimal.NewFromString(c.price); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing entry price: %v\n", err)
			return subcommands.ExitUsageError
		}
	}

	name := c.portfolio
	if name == "" {
		if name, err = a.Store.ActivePortfolio(); err != nil {
			return fail("Error loading active portfolio: %v", err)
		}
	}
	if c.category != "" {
		if err := a.Store.AddCategory(c.category); err != nil {
			return fail("Error saving category: %v", err)
		}
	}
	item := portfolio.Item{AssetID: id, Quantity: qty, EntryPrice: entry, Category: c.category}
	if err := a.Store.AddItem(name, item); err != nil {
		return fail("Error adding holding: %v", err)
	}
	fmt.Printf("added %s %s to %q at %s\n", qty, id, name, entry)
	return subcommands.ExitSuccess
}
