// Package console prints an operator-facing status table of live
// positions, grounded on AlejandroRuiz99-polybot's Console.printTable
// (internal/adapters/notify/console.go): a tablewriter.Writer rendered to
// stdout on an interval, not a persisted log.
package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"perpctl/internal/models"
)

// Printer renders a snapshot of live positions plus account equity as a
// table, the way an operator watching a terminal would want to see it —
// the CSV audit trail in internal/csvlog is the durable record, this is
// the at-a-glance view.
type Printer struct {
	out io.Writer
}

func NewPrinter() *Printer {
	return &Printer{out: os.Stdout}
}

// NewPrinterTo is for tests: render to a buffer instead of stdout.
func NewPrinterTo(w io.Writer) *Printer {
	return &Printer{out: w}
}

// PrintStatus renders one table row per live position plus a one-line
// equity summary underneath it.
func (p *Printer) PrintStatus(positions []models.Position, equity models.EquitySnapshot) {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(p.out, "\n[%s] %d open position(s)\n", now, len(positions))

	if len(positions) > 0 {
		table := tablewriter.NewWriter(p.out)
		table.Header("Symbol", "Side", "Qty", "Entry", "TP", "SL", "State", "Age")
		for _, pos := range positions {
			table.Append(
				pos.Symbol,
				string(pos.Side),
				fmt.Sprintf("%.4f", pos.Quantity),
				fmt.Sprintf("%.4f", pos.EntryPrice),
				fmt.Sprintf("%.4f", pos.TPPrice),
				fmt.Sprintf("%.4f", pos.SLPrice),
				string(pos.State),
				time.Since(pos.OpenedAt).Round(time.Second).String(),
			)
		}
		table.Render()
	}

	fmt.Fprintf(p.out, "  equity: realized=$%.2f unrealized=$%.2f total=$%.2f peak=$%.2f drawdown=%.2f%%\n",
		equity.Realized, equity.Unrealized, equity.Total, equity.Peak, equity.DrawdownFromPeak*100)
}
