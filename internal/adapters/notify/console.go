// Package notify surfaces engine activity to the operator: a console
// table per cycle plus Telegram alerts for high-priority events.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// Console implements ports.Notifier on a writer, stdout by default.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole creates a notifier writing to stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// NotifyCycle prints the ranked opportunities and held positions.
func (c *Console) NotifyCycle(_ context.Context, opps []domain.Opportunity, positions []domain.Position) error {
	now := time.Now().Format("15:04:05")

	if len(opps) == 0 && len(positions) == 0 {
		fmt.Fprintf(c.out, "[%s] no opportunities, no positions\n", now)
		return nil
	}

	if c.table {
		c.printTables(now, opps, positions)
	} else {
		c.printCompact(now, opps, positions)
	}
	return nil
}

// NotifyAlert prints a high-priority line.
func (c *Console) NotifyAlert(_ context.Context, title, detail string) error {
	fmt.Fprintf(c.out, "[%s] ALERT %s: %s\n", time.Now().Format("15:04:05"), title, detail)
	return nil
}

// printCompact puts the cycle on one line.
func (c *Console) printCompact(now string, opps []domain.Opportunity, positions []domain.Position) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d opps, %d positions", now, len(opps), len(positions))

	shown := 0
	for _, opp := range opps {
		if shown >= 4 {
			break
		}
		fmt.Fprintf(&sb, " | %s edge%.0fbps est$%.2f",
			compactName(opp.Question, 25), opp.EdgeBps, opp.EstProfitUSD)
		shown++
	}

	fmt.Fprintln(c.out, sb.String())
}

// printTables prints full opportunity and position tables.
func (c *Console) printTables(now string, opps []domain.Opportunity, positions []domain.Position) {
	fmt.Fprintf(c.out, "\n[%s] %d opportunities — %d positions held\n", now, len(opps), len(positions))

	if len(opps) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("#", "Market", "YES ask", "NO ask", "Edge bps", "Liq$", "Size$", "Est profit$")
		for i, opp := range opps {
			table.Append(
				fmt.Sprintf("%d", i+1),
				compactName(opp.Question, 40),
				fmt.Sprintf("%.3f", opp.YesAsk),
				fmt.Sprintf("%.3f", opp.NoAsk),
				fmt.Sprintf("%.0f", opp.EdgeBps),
				fmt.Sprintf("%.0f", opp.LiquidityUSD),
				fmt.Sprintf("%.2f", opp.SizeUSD),
				fmt.Sprintf("%.2f", opp.EstProfitUSD),
			)
		}
		table.Render()
	}

	if len(positions) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("Token", "Side", "State", "Entry¢", "Mark¢", "PnL%", "PnL$")
		for _, p := range positions {
			pnl := fmt.Sprintf("%.1f%%", p.PnLPct)
			if !p.PnLTrusted {
				pnl += " ?"
			}
			table.Append(
				compactName(p.TokenID, 16),
				string(p.Side),
				string(p.State),
				fmt.Sprintf("%.1f", p.EntryPriceCents),
				fmt.Sprintf("%.1f", p.CurrentPriceCents),
				pnl,
				fmt.Sprintf("%.2f", p.PnLUSD),
			)
		}
		table.Render()
	}
}

// compactName truncates long labels for single-line output.
func compactName(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
