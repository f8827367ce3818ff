package cli

import (
	"fmt"

	"github.com/rustyeddy/equitytrader/config"
	"github.com/rustyeddy/equitytrader/plan"
	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		planFile  string
		confirm   bool
		auditPath string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the orders in a plan file",
		Long: `Run loads a plan file ({"orders": [...]}, JSON or YAML), runs every order
through the risk engine and submits the survivors.

Examples:
  trader run --plan-file plan.json
  trader run --mode paper --plan-file plan.yaml --confirm`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Mode == config.DryRun {
				fmt.Fprintln(a.out, "Running in dry-run mode; no orders will be placed.")
			} else {
				fmt.Fprintf(a.out, "Running in %s mode\n", a.cfg.Mode)
			}

			items, err := plan.Load(planFile)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(a.out, "No plan provided; exiting.")
				return nil
			}

			if confirm && !a.confirm(len(items)) {
				fmt.Fprintln(a.out, "Aborted.")
				return nil
			}

			if auditPath != "" {
				a.cfg.Journal.CSVPath = auditPath
				if a.cfg.Journal.Type == "sqlite" {
					a.cfg.Journal.Type = "both"
				}
			}
			return a.execute(cmd.Context(), items)
		},
	}

	cmd.Flags().StringVarP(&planFile, "plan-file", "p", "", "path to plan file (required)")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "ask before submitting")
	cmd.Flags().StringVar(&auditPath, "audit", "", "CSV audit file (overrides journal.csv_path)")
	_ = cmd.MarkFlagRequired("plan-file")
	return cmd
}
