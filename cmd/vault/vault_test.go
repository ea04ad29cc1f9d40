package main

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/KerimSelki/crypto-vault/internal/asset"
	"github.com/KerimSelki/crypto-vault/internal/pipeline"
	"github.com/KerimSelki/crypto-vault/internal/store"
	"github.com/KerimSelki/crypto-vault/internal/symbol"
)

func TestResolveMarkdown(t *testing.T) {
	t.Parallel()

	r := symbol.NewResolver(asset.DefaultCatalog())
	md := resolveMarkdown(r, []string{"bitcoin", "IPB.TEFAS"})

	lines := strings.Split(strings.TrimSpace(md), "\n")
	require.Len(t, lines, 4)
	require.Contains(t, lines[2], "| bitcoin | crypto |")
	require.Contains(t, lines[2], "BTCUSDT")
	require.Contains(t, lines[3], "| IPB.TEFAS | tefas |")
	require.Contains(t, lines[3], " - |")
}

func TestReportsTable(t *testing.T) {
	t.Parallel()

	require.Equal(t, "_No reports yet._\n", reportsTable(nil))

	md := reportsTable([]store.Report{{
		Date:      time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		Portfolio: "Main Portfolio",
		Currency:  "USD",
		Value:     decimal.NewFromInt(1234),
		PnLPct:    decimal.NewFromFloat(2.5),
		Assets:    3,
	}})
	require.Contains(t, md, "| 2026-03-02 09:30 | Main Portfolio | $1,234.00 | +2.50% | 3 |")
}

func TestReportsMarkdown(t *testing.T) {
	t.Parallel()

	md := reportsMarkdown([]pipeline.Report{{Source: "fmp", Tier: "market", Err: "throttled", Duration: 1500 * time.Millisecond}})
	require.Contains(t, md, "| fmp | market | 0 | 1.5s | throttled |")
}

func TestCommandsRegistered(t *testing.T) {
	t.Parallel()

	names := map[string]bool{}
	for _, c := range commands {
		names[c.Name()] = true
	}
	for _, want := range []string{"fetch", "value", "add", "resolve", "reports"} {
		require.True(t, names[want], want)
	}
}
