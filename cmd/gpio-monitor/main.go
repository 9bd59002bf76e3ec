// Package main is the entry point for the gpio-monitor CLI.
//
// The monitor can be run either as a library (SDK) or as a standalone
// daemon controlled by this CLI.
//
// Usage:
//
//	gpio-monitor serve                  # Run the monitoring daemon
//	gpio-monitor add-pin 17 --pull up   # Tell a running daemon to watch a pin
//	gpio-monitor list-pins              # Show monitored pins and their levels
//	gpio-monitor version                # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/WIPtitle/gpio-monitor/config"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "gpio-monitor",
	Short: "Raspberry Pi GPIO pin monitor",
	Long: `gpio-monitor watches Raspberry Pi GPIO pins with debounced level
detection and exposes a REST API, a live dashboard, and optional MQTT
forwarding.

Quick start:
  1. Run the daemon:          gpio-monitor serve
  2. Add a pin to monitor:    gpio-monitor add-pin 17 --pull up
  3. Watch it live:           open http://localhost:8787

Pin management commands talk to a running daemon over its REST API; the
daemon's port is taken from the config file unless --config points
elsewhere.`,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultPath, "path to config file")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this gpio-monitor binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gpio-monitor %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
