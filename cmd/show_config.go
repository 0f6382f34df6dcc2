package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var showConfigCmd = &cobra.Command{
	Use:   "show-config",
	Short: "Display current configuration",
	Long: `Shows the configuration a run would use, resolved from defaults, the .env file,
HARNESS_* environment variables and the YAML config file. Credentials in the
ClickHouse DSN are masked.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return fmt.Errorf("failed to show config: %w", err)
		}

		fmt.Println(cfg.String())

		return nil
	},
}

func init() {
	addSuiteFlags(showConfigCmd)

	rootCmd.AddCommand(showConfigCmd)
}
