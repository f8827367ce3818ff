package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// RootConfig holds the persistent flags.
type RootConfig struct {
	ConfigPath string
	LogLevel   string
	Mode       string
}

const skipSetup = "skip-setup"

func NewRootCmd() *cobra.Command {
	return newRootCmd(os.Stdin, os.Stdout)
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	a := &app{rc: &RootConfig{}, in: in, out: out}

	cmd := &cobra.Command{
		Use:   "trader",
		Short: "Risk-gated equity order execution",
		Long: `Trader places planned equity orders through a pre-trade risk engine,
retries and reconciles them with the broker and keeps an audit trail.

Orders come from a plan file or from the research screener. In dry-run mode
nothing is sent to the broker.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetIn(in)
	cmd.SetOut(out)

	cmd.PersistentFlags().StringVar(&a.rc.ConfigPath, "config", "", "Path to config file (optional)")
	cmd.PersistentFlags().StringVar(&a.rc.LogLevel, "log-level", "info", "Log level: debug|info|warn|error")
	cmd.PersistentFlags().StringVar(&a.rc.Mode, "mode", "", "Trading mode: dry-run|paper|live (overrides config)")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipSetup] == "true" {
			return nil
		}
		return a.setup(cmd)
	}
	cmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if a.log != nil {
			_ = a.log.Sync()
		}
	}

	cmd.AddCommand(
		newRunCmd(a),
		newResearchCmd(a),
		newLoopCmd(a),
		newJournalCmd(a),
		newAccountCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the CLI until it finishes or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
