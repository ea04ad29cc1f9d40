package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/google/subcommands"

	"github.com/KerimSelki/crypto-vault/internal/asset"
	"github.com/KerimSelki/crypto-vault/internal/symbol"
)

var providerIDs = []symbol.ProviderID{
	symbol.BinanceSpot, symbol.BinanceFutures, symbol.CoinGecko,
	symbol.FMP, symbol.Yahoo, symbol.TEFAS,
}

type resolveCmd struct{}

func (*resolveCmd) Name() string     { return "resolve" }
func (*resolveCmd) Synopsis() string { return "show the native symbol of assets for every provider" }
func (*resolveCmd) Usage() string {
	return `vault resolve <asset id>...

  Prints how each asset id maps onto every provider's symbols.
`
}

func (*resolveCmd) SetFlags(*flag.FlagSet) {}

func (*resolveCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		return subcommands.ExitUsageError
	}
	a, err := loadApp()
	if err != nil {
		return fail("Error loading app: %v", err)
	}
	printMarkdown(resolveMarkdown(a.Resolver, f.Args()))
	return subcommands.ExitSuccess
}

func resolveMarkdown(r *symbol.Resolver, ids []string) string {
	var b strings.Builder
	b.WriteString("| Asset | Market |")
	for _, p := range providerIDs {
		fmt.Fprintf(&b, " %s |", p)
	}
	b.WriteString("\n|---|---|" + strings.Repeat("---|", len(providerIDs)) + "\n")
	for _, id := range ids {
		fmt.Fprintf(&b, "| %s | %s |", id, r.Market(asset.ID(id)))
		for _, p := range providerIDs {
			res := r.Resolve(asset.ID(id), p)
			if !res.OK {
				b.WriteString(" - |")
				continue
			}
			fmt.Fprintf(&b, " %s |", res.Symbol)
		}
		b.WriteString("\n")
	}
	return b.String()
}
