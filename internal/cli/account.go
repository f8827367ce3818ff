package cli

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/equitytrader/account"
	"github.com/spf13/cobra"
)

func newAccountCmd(a *app) *cobra.Command {
	var symbol string

	cmd := &cobra.Command{
		Use:   "account",
		Short: "Show the account snapshot the risk engine sees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ex, err := a.exchange()
			if err != nil {
				return err
			}
			src := &account.Source{Exchange: ex, Policy: &a.cfg.Risk}
			snap, err := src.Snapshot(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "Equity:      %.2f %s\n", snap.Equity, snap.Currency)
			fmt.Fprintf(a.out, "Last equity: %.2f\n", snap.LastEquity)
			fmt.Fprintf(a.out, "Day P/L:     %.2f%%\n", 100*snap.DayPnLPct())
			fmt.Fprintf(a.out, "Positions:   %d\n", snap.OpenPositions())
			fmt.Fprintf(a.out, "Heat:        %.2f%%\n", 100*snap.Heat(a.cfg.Risk.DefaultStopLossPct))
			for _, p := range snap.Positions {
				fmt.Fprintf(a.out, "  %-6s qty=%g avg=%.4f value=%.2f\n", p.Symbol, p.Qty, p.AvgEntryPrice, p.MarketValue)
			}

			if symbol != "" {
				ec := snap.EquityContext(strings.ToUpper(symbol), a.cfg.Risk.DefaultStopLossPct)
				fmt.Fprintf(a.out, "%s exposure: %.2f%%\n", strings.ToUpper(symbol), 100*ec.SymbolExposure)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "also show exposure for this symbol")
	return cmd
}
