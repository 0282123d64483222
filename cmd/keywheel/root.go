package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "keywheel",
	Short: "Keywheel - credential pool proxy for chat completion APIs",
	Long: `Keywheel proxies OpenAI-compatible chat completion requests through a
managed pool of upstream API keys.

Each request is served by one credential from the active profile's pool,
selected by a configurable strategy (round-robin, random or
least-connections). Failed credentials cool down or deactivate
automatically, transient upstream failures are retried with exponential
backoff, and daily usage quotas reset lazily at day rollover.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
}
