package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/subcommands"

	"github.com/KerimSelki/crypto-vault/internal/portfolio"
	"github.com/KerimSelki/crypto-vault/internal/store"
)

type valueCmd struct {
	name     string
	all      bool
	fetch    bool
	snapshot bool
}

func (*valueCmd) Name() string     { return "value" }
func (*valueCmd) Synopsis() string { return "value a portfolio against the latest prices" }
func (*valueCmd) Usage() string {
	return `vault value [-p <portfolio>] [-all] [-f] [-s]

  Values the active portfolio, or the one named with -p, using the price
  cache. -f runs a fetch cycle first; -s appends the result to the report
  history.
`
}

func (c *valueCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "p", "", "portfolio name (default: the active portfolio)")
	f.BoolVar(&c.all, "all", false, "value every portfolio combined")
	f.BoolVar(&c.fetch, "f", false, "fetch fresh prices first")
	f.BoolVar(&c.snapshot, "s", false, "append the valuation to the report history")
}

func (c *valueCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := loadApp()
	if err != nil {
		return fail("Error loading app: %v", err)
	}
	v := a.Valuer()
	if c.fetch {
		res, err := a.RunOnce(ctx)
		if err != nil {
			return fail("Error fetching prices: %v", err)
		}
		v.Prices = res.Prices
	}

	var sum portfolio.Summary
	if c.all {
		ps, err := a.Store.Portfolios()
		if err != nil {
			return fail("Error loading portfolios: %v", err)
		}
		sum = v.Combined("All Portfolios", ps)
	} else {
		name := c.name
		if name == "" {
			if name, err = a.Store.ActivePortfolio(); err != nil {
				return fail("Error loading active portfolio: %v", err)
			}
		}
		p, err := a.Store.Portfolio(name)
		if err != nil {
			return fail("Error loading portfolio: %v", err)
		}
		sum = v.Value(p)
	}

	printMarkdown(portfolio.Markdown(sum))

	if c.snapshot {
		rep, err := a.Store.AppendReport(store.ReportFromSummary(sum, time.Now()))
		if err != nil {
			return fail("Error saving report: %v", err)
		}
		fmt.Printf("report %s saved\n", rep.ID)
	}
	return subcommands.ExitSuccess
}
