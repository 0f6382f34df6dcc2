// Package main is the entry point for the sim-harness application
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethpandaops/market-sim-harness/cmd"
	"github.com/joho/godotenv"
)

const (
	envFlag      = "--env"
	envFlagEqual = "--env="
	defaultEnv   = ".env"
)

func main() {
	envFile, runTUI := parseArgs(os.Args)

	if err := loadEnvFile(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading env file: %v\n", err)
		os.Exit(1)
	}

	// LOG_LEVEL may come from the env file.
	cmd.InitLogger()

	if runTUI {
		cmd.RunInteractive()
		return
	}

	cmd.Execute(stripEnvFlag(os.Args[1:]))
}

// parseArgs extracts the --env value and reports whether the interactive menu
// should run, which it does when nothing but --env was given.
func parseArgs(args []string) (envFile string, runTUI bool) {
	rest := 0

	for i := 1; i < len(args); i++ {
		arg := args[i]

		switch {
		case arg == envFlag:
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "Error: --env flag requires a value")
				os.Exit(1)
			}

			envFile = args[i+1]
			i++
		case strings.HasPrefix(arg, envFlagEqual):
			envFile = arg[len(envFlagEqual):]
		default:
			rest++
		}
	}

	return envFile, rest == 0
}

func stripEnvFlag(args []string) []string {
	out := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == envFlag:
			i++
		case strings.HasPrefix(args[i], envFlagEqual):
		default:
			out = append(out, args[i])
		}
	}

	return out
}

// loadEnvFile loads the specified environment file
func loadEnvFile(file string) error {
	if file == "" {
		file = defaultEnv
	}

	if err := godotenv.Load(file); err != nil {
		// If it's the default .env file and it doesn't exist, that's okay
		if file == defaultEnv && errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("failed to load env file '%s': %w", file, err)
	}

	return nil
}
