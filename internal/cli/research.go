package cli

import (
	"encoding/json"
	"fmt"

	"github.com/rustyeddy/equitytrader/plan"
	"github.com/spf13/cobra"
)

func newResearchCmd(a *app) *cobra.Command {
	var (
		universe      []string
		strategy      string
		maxCandidates int
		execute       bool
	)

	cmd := &cobra.Command{
		Use:   "research",
		Short: "Screen a universe and ask the model for trade ideas",
		Long: `Research screens the universe on price and range, asks the model for up
to two ideas and prints them as a plan file. With --execute the ideas are run
immediately.

Examples:
  trader research --universe AAPL,MSFT,NVDA > plan.json
  trader research --mode paper --execute`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("universe") {
				universe = a.cfg.Research.Universe
			}
			if !cmd.Flags().Changed("strategy") {
				strategy = a.cfg.Research.Strategy
			}
			if !cmd.Flags().Changed("max") {
				maxCandidates = a.cfg.Research.MaxCandidates
			}
			if len(universe) == 0 {
				return fmt.Errorf("no universe given (use --universe or research.universe)")
			}

			ex, err := a.exchange()
			if err != nil {
				return err
			}
			r, err := a.researcher(ex)
			if err != nil {
				return err
			}
			items, err := r.GeneratePlans(cmd.Context(), universe, strategy, maxCandidates)
			if err != nil {
				return err
			}

			if !execute {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(plan.File{Orders: items})
			}
			if len(items) == 0 {
				fmt.Fprintln(a.out, "No ideas; nothing to place.")
				return nil
			}
			return a.execute(cmd.Context(), items)
		},
	}

	cmd.Flags().StringSliceVarP(&universe, "universe", "u", nil, "comma separated symbols to screen")
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "strategy summary passed to the model")
	cmd.Flags().IntVar(&maxCandidates, "max", 0, "max screened candidates")
	cmd.Flags().BoolVar(&execute, "execute", false, "place the resulting orders")
	return cmd
}
