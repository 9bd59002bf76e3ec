package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/WIPtitle/gpio-monitor/config"
)

// validateCmd validates a config file without starting the daemon.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a gpio-monitor configuration file without starting the daemon.

This command parses the JSON and validates all fields: port range, pin
numbers, pull modes, and debounce thresholds. Useful for CI/CD pipelines
or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  gpio-monitor validate -c /etc/gpio-monitor/config.json`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Port: %d\n", cfg.Port)
	fmt.Printf("  Pins: %d\n", len(cfg.Pins))
	for _, pc := range cfg.Pins {
		fmt.Printf("    GPIO %-2d pull=%-4s debounce=%d/%d\n",
			pc.Pin, pc.Pull, pc.DebounceLow, pc.DebounceHigh)
	}
	if cfg.MQTT != nil {
		fmt.Printf("  MQTT: %s\n", cfg.MQTT.Broker)
	}
	return nil
}
