// Package cmd contains CLI command definitions
package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Logger is the shared logger instance for all commands
	Logger *logrus.Logger

	configFile string
	verbose    bool

	rootCmd = &cobra.Command{
		Use:   "sim-harness",
		Short: "Market simulation integration harness",
		Long: `sim-harness exercises a running market-simulation backend over REST and
Socket.IO and reports which parts of it work.

Run without arguments to launch interactive mode, or use subcommands for direct operations.`,
		SilenceUsage: true,
	}
)

// Execute runs the root command with args
func Execute(args []string) {
	rootCmd.SetArgs(args)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (defaults to ./harness.yaml when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	InitLogger()
}

// InitLogger builds the shared logger from LOG_LEVEL. Call it again after
// loading a different env file.
func InitLogger() {
	Logger = logrus.New()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		// Can't use Logger here since it might not be set up yet
		fmt.Printf("Invalid LOG_LEVEL '%s', defaulting to 'info'\n", logLevel)
		level = logrus.InfoLevel
	}

	Logger.SetLevel(level)
}
