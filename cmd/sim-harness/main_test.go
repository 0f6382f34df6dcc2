package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		envFile string
		runTUI  bool
	}{
		{name: "no args", args: []string{"sim-harness"}, runTUI: true},
		{name: "env only", args: []string{"sim-harness", "--env", "staging.env"}, envFile: "staging.env", runTUI: true},
		{name: "env equals only", args: []string{"sim-harness", "--env=ci.env"}, envFile: "ci.env", runTUI: true},
		{name: "subcommand", args: []string{"sim-harness", "run"}},
		{name: "subcommand with env", args: []string{"sim-harness", "--env", "a.env", "run", "--trading"}, envFile: "a.env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envFile, runTUI := parseArgs(tt.args)
			assert.Equal(t, tt.envFile, envFile)
			assert.Equal(t, tt.runTUI, runTUI)
		})
	}
}

func TestStripEnvFlag(t *testing.T) {
	assert.Equal(t, []string{"run", "--trading"}, stripEnvFlag([]string{"--env", "a.env", "run", "--trading"}))
	assert.Equal(t, []string{"show-config"}, stripEnvFlag([]string{"show-config", "--env=b.env"}))
}

func TestLoadEnvFile(t *testing.T) {
	require.Error(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}
