package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/market-sim-harness/pkg/interactive"
	"github.com/spf13/cobra"
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Launch interactive TUI mode",
	Long:  `Launches the interactive menu for running the suite, the trading flow or inspecting configuration.`,
	Run: func(_ *cobra.Command, _ []string) {
		RunInteractive()
	},
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
}

// RunInteractive shows the main menu until the user exits.
func RunInteractive() {
	fmt.Println("Market Sim Harness - Interactive Mode")
	fmt.Println("=====================================")
	fmt.Println()

	for {
		options := []interactive.MenuOption{
			{
				Name:        "🧪 Run Suite",
				Description: "Run every check against the backend",
				Action: func() error {
					return interactiveRun(modeFull)
				},
			},
			{
				Name:        "💹 Trading Flow",
				Description: "Create a test user and trade (mutates backend state)",
				Action: func() error {
					if !interactive.Confirm("The trading flow places real orders on the backend. Continue?") {
						fmt.Println("Trading canceled.")
						interactive.PauseForEnter()

						return nil
					}

					return interactiveRun(modeTrading)
				},
			},
			{
				Name:        "📋 Show Config",
				Description: "Display current configuration",
				Action: func() error {
					cfg, err := resolveConfig(nil)
					if err != nil {
						fmt.Printf("\n❌ Error: %v\n", err)
					} else {
						fmt.Println(cfg.String())
					}

					interactive.PauseForEnter()

					return nil
				},
			},
		}

		if err := interactive.ShowMainMenu(options); err != nil {
			if errors.Is(err, interactive.ErrExit) {
				fmt.Println("Goodbye!")
				return
			}

			log.Fatal(err)
		}

		fmt.Println()
	}
}

func interactiveRun(mode suiteMode) error {
	cfg, err := resolveConfig(nil)
	if err != nil {
		fmt.Printf("\n❌ Error: %v\n", err)
		interactive.PauseForEnter()

		return nil
	}

	cfg.BackendURL = interactive.Ask("Backend URL", cfg.BackendURL)

	if mode == modeFull {
		cfg.SaveReport = interactive.Confirm("Save the JSON report?")
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("\n❌ Error: %v\n", err)
		interactive.PauseForEnter()

		return nil
	}

	fmt.Printf("\n%s\n\n", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := runSuite(ctx, cfg, mode); err != nil {
		fmt.Printf("\n❌ Error: %v\n", err)
	}

	interactive.PauseForEnter()

	return nil
}
