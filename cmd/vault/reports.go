package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/google/subcommands"

	"github.com/KerimSelki/crypto-vault/internal/portfolio"
	"github.com/KerimSelki/crypto-vault/internal/store"
)

type reportsCmd struct{}

func (*reportsCmd) Name() string     { return "reports" }
func (*reportsCmd) Synopsis() string { return "list saved valuation reports, newest first" }
func (*reportsCmd) Usage() string {
	return `vault reports

  Lists the report history written by "vault value -s" and the server.
`
}

func (*reportsCmd) SetFlags(*flag.FlagSet) {}

func (*reportsCmd) Execute(context.Context, *flag.FlagSet, ...interface{}) subcommands.ExitStatus {
	a, err := loadApp()
	if err != nil {
		return fail("Error loading app: %v", err)
	}
	reps, err := a.Store.Reports()
	if err != nil {
		return fail("Error loading reports: %v", err)
	}
	printMarkdown(reportsTable(reps))
	return subcommands.ExitSuccess
}

func reportsTable(reps []store.Report) string {
	if len(reps) == 0 {
		return "_No reports yet._\n"
	}
	var b strings.Builder
	b.WriteString("| Date | Portfolio | Value | P&L | Assets |\n|---|---|---:|---:|---:|\n")
	for _, r := range reps {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %d |\n",
			r.Date.Format("2006-01-02 15:04"), r.Portfolio,
			portfolio.FormatMoney(r.Value, r.Currency), portfolio.FormatPercent(r.PnLPct), r.Assets)
	}
	return b.String()
}
