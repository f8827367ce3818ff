package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/equitytrader/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newLoopCmd(a *app) *cobra.Command {
	var (
		cadence time.Duration
		maxRun  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "loop",
		Short: "Run research and execution on a cadence during market hours",
		Long: `Loop repeats research followed by execution every cadence while the
market is open. While closed it checks the clock every 30s (or cadence, if
shorter). It stops after --max, or on interrupt.

Example:
  trader loop --mode paper --cadence 5m --max 6h30m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cadence <= 0 {
				return fmt.Errorf("cadence must be positive")
			}
			universe := a.cfg.Research.Universe
			if len(universe) == 0 {
				return fmt.Errorf("research.universe is empty")
			}

			ex, err := a.exchange()
			if err != nil {
				return err
			}
			r, err := a.researcher(ex)
			if err != nil {
				return err
			}

			step := func(ctx context.Context) error {
				items, err := r.GeneratePlans(ctx, universe, a.cfg.Research.Strategy, a.cfg.Research.MaxCandidates)
				if err != nil {
					return err
				}
				a.log.Info("loop step", zap.Int("orders", len(items)))
				if len(items) == 0 {
					return nil
				}
				return a.execute(ctx, items)
			}

			err = scheduler.RunMarketHours(cmd.Context(), ex.IsMarketOpen, step, cadence, maxRun, a.log)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&cadence, "cadence", time.Minute, "time between steps while open")
	cmd.Flags().DurationVar(&maxRun, "max", 0, "stop after this long (0 runs until interrupted)")
	return cmd
}
