package cli

import (
	"fmt"

	"github.com/rustyeddy/equitytrader/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate configuration files",
		Long: `Manage configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  trader config init -o trader.yaml
  trader config validate -f trader.yaml`,
		Annotations: map[string]string{skipSetup: "true"},
	}

	var output string
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Generate a default configuration file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipSetup: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if err := cfg.SaveToFile(output); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(a.out, "Created default configuration: %s\n", output)
			fmt.Fprintln(a.out, "Credentials are read from ALPACA_API_KEY_ID, ALPACA_API_SECRET_KEY and OPENAI_API_KEY.")
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "trader.yaml", "output config file path")

	var path string
	validateCmd := &cobra.Command{
		Use:         "validate",
		Short:       "Validate a configuration file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipSetup: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(path)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			fmt.Fprintf(a.out, "Configuration valid: %s\n", path)
			if cfg.ModeFallback != "" {
				fmt.Fprintf(a.out, "  Mode: %s (unknown mode %q)\n", cfg.Mode, cfg.ModeFallback)
			} else {
				fmt.Fprintf(a.out, "  Mode: %s\n", cfg.Mode)
			}
			fmt.Fprintf(a.out, "  Exchange: %s\n", cfg.Exchange)
			fmt.Fprintf(a.out, "  Max notional per trade: %.2f\n", cfg.Risk.MaxNotionalPerTrade)
			fmt.Fprintf(a.out, "  Journal: %s\n", cfg.Journal.Type)
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&path, "file", "f", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("file")

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
