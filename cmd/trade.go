package cmd

import (
	"github.com/spf13/cobra"
)

var tradeCmd = &cobra.Command{
	Use:   "trade",
	Short: "Run only the authenticated trading flow",
	Long: `Create a test user, then buy and sell a few randomly chosen symbols while
checking the portfolio, the trade log and the portfolio_update stream.

Example:
  sim-harness trade --url http://localhost:3001 --seed 7`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runCommand(cmd, modeTrading)
	},
}

func init() {
	addSuiteFlags(tradeCmd)

	rootCmd.AddCommand(tradeCmd)
}
