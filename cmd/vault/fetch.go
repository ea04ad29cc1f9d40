package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/KerimSelki/crypto-vault/internal/asset"
	"github.com/KerimSelki/crypto-vault/internal/config"
	"github.com/KerimSelki/crypto-vault/internal/pipeline"
	"github.com/KerimSelki/crypto-vault/internal/portfolio"
)

type fetchCmd struct {
	ids     string
	json    bool
	reports bool
}

func (*fetchCmd) Name() string     { return "fetch" }
func (*fetchCmd) Synopsis() string { return "run one fetch cycle and print the merged prices" }
func (*fetchCmd) Usage() string {
	return `vault fetch [-ids bitcoin,AAPL] [-json] [-reports]

  Queries every enabled feed once, merges the results onto the cached
  prices and updates the price cache.
`
}

func (c *fetchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.ids, "ids", "", "comma separated asset ids to print (default: all)")
	f.BoolVar(&c.json, "json", false, "print JSON instead of a table")
	f.BoolVar(&c.reports, "reports", false, "also print one line per provider")
}

func (c *fetchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := loadApp()
	if err != nil {
		return fail("Error loading app: %v", err)
	}
	res, err := a.RunOnce(ctx)
	if err != nil {
		return fail("Error fetching prices: %v", err)
	}

	ids := config.SplitCSV(c.ids)
	if len(ids) == 0 {
		for id := range res.Prices {
			ids = append(ids, string(id))
		}
		sort.Strings(ids)
	}

	if c.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		out := map[string]any{"cycle_id": res.CycleID, "prices": res.Prices}
		if c.reports {
			out["reports"] = res.Reports
		}
		if err := enc.Encode(out); err != nil {
			return fail("Error encoding: %v", err)
		}
		return subcommands.ExitSuccess
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Prices\n\n| Asset | Price | 24h | Source |\n|---|---:|---:|---|\n")
	for _, id := range ids {
		r, ok := res.Prices[asset.ID(id)]
		if !ok {
			fmt.Fprintf(&b, "| %s | n/a | | |\n", id)
			continue
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", id,
			portfolio.FormatMoney(decimal.NewFromFloat(r.Price), r.Currency),
			portfolio.FormatPercent(decimal.NewFromFloat(r.Change24h)), r.Source)
	}
	if c.reports {
		b.WriteString(reportsMarkdown(res.Reports))
	}
	printMarkdown(b.String())
	return subcommands.ExitSuccess
}

func reportsMarkdown(reps []pipeline.Report) string {
	var b strings.Builder
	b.WriteString("\n## Providers\n\n| Source | Tier | Assets | Time | Error |\n|---|---|---:|---:|---|\n")
	for _, r := range reps {
		fmt.Fprintf(&b, "| %s | %s | %d | %s | %s |\n", r.Source, r.Tier, r.Count, r.Duration.Round(time.Millisecond), r.Err)
	}
	return b.String()
}
