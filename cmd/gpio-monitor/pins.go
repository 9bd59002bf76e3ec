package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/WIPtitle/gpio-monitor/internal/pin"
	"github.com/WIPtitle/gpio-monitor/internal/store"
)

func parsePinArg(arg string) (int, error) {
	p, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid pin number %q", arg)
	}
	return p, nil
}

// addPinCmd tells the daemon to start monitoring a pin.
var addPinCmd = &cobra.Command{
	Use:   "add-pin <pin>",
	Short: "Add a GPIO pin to monitoring",
	Long: `Add a GPIO pin to monitoring on a running daemon.

The pin starts in the "unknown" state and reports a confirmed level
once its first sampling window fills (about one second).

Example:
  gpio-monitor add-pin 17
  gpio-monitor add-pin 17 --pull up --debounce-low 6 --debounce-high 8`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := parsePinArg(args[0])
		if err != nil {
			return err
		}
		pull, _ := cmd.Flags().GetString("pull")
		low, _ := cmd.Flags().GetInt("debounce-low")
		high, _ := cmd.Flags().GetInt("debounce-high")

		client, err := newClient(cmd)
		if err != nil {
			return err
		}

		body := map[string]any{"pull": pull, "debounce_low": low, "debounce_high": high}
		var resp mutationResponse
		if err := client.do(http.MethodPost, fmt.Sprintf("/api/pins/%d", p), body, &resp); err != nil {
			return err
		}
		fmt.Println(resp.Message)
		if resp.Warning != "" {
			fmt.Printf("Warning: %s\n", resp.Warning)
		}
		return nil
	},
}

// removePinCmd tells the daemon to stop monitoring a pin.
var removePinCmd = &cobra.Command{
	Use:   "remove-pin <pin>",
	Short: "Remove a GPIO pin from monitoring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := parsePinArg(args[0])
		if err != nil {
			return err
		}
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		var resp mutationResponse
		if err := client.do(http.MethodDelete, fmt.Sprintf("/api/pins/%d", p), nil, &resp); err != nil {
			return err
		}
		fmt.Println(resp.Message)
		return nil
	},
}

// listPinsCmd shows all monitored pins with their current levels.
var listPinsCmd = &cobra.Command{
	Use:   "list-pins",
	Short: "List monitored pins and their levels",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		var resp pinListResponse
		if err := client.do(http.MethodGet, "/api/pins", nil, &resp); err != nil {
			return err
		}

		if len(resp.Pins) == 0 {
			fmt.Println("No pins are being monitored")
		} else {
			fmt.Printf("Monitored pins (%d):\n", len(resp.Pins))
			for _, st := range resp.Pins {
				line := fmt.Sprintf("  GPIO %-2d  %-8s pull=%-4s debounce=%d/%d",
					st.Pin, st.StableLevel, st.Pull, st.DebounceLow, st.DebounceHigh)
				if st.Reserved != "" {
					line += "  [reserved: " + st.Reserved + "]"
				}
				fmt.Println(line)
			}
		}
		if resp.RestartRequired {
			fmt.Println("\nNote: a port change is pending, restart the service to apply it")
		}
		return nil
	},
}

// clearPinsCmd removes every pin from monitoring.
var clearPinsCmd = &cobra.Command{
	Use:   "clear-pins",
	Short: "Remove all pins from monitoring",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		var resp mutationResponse
		if err := client.do(http.MethodDelete, "/api/pins", nil, &resp); err != nil {
			return err
		}
		fmt.Println(resp.Message)
		return nil
	},
}

// pinStateCmd shows one pin's full state including its recent log.
var pinStateCmd = &cobra.Command{
	Use:   "pin-state <pin>",
	Short: "Show a single pin's state and recent transitions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := parsePinArg(args[0])
		if err != nil {
			return err
		}
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		var st store.Status
		if err := client.do(http.MethodGet, fmt.Sprintf("/api/pins/%d/state", p), nil, &st); err != nil {
			return err
		}

		fmt.Printf("GPIO %d: %s\n", st.Pin, st.StableLevel)
		fmt.Printf("  Pull:     %s\n", st.Pull)
		fmt.Printf("  Debounce: %d/%d\n", st.DebounceLow, st.DebounceHigh)
		if st.Reserved != "" {
			fmt.Printf("  Reserved: %s\n", st.Reserved)
		}
		if st.LastChangeAt != nil {
			fmt.Printf("  Last change: %s\n", st.LastChangeAt.Format(time.RFC3339))
		}
		if len(st.RecentLog) > 0 {
			fmt.Printf("  Recent transitions:\n")
			for _, entry := range st.RecentLog {
				fmt.Printf("    %s  %s\n", entry.Timestamp.Format("15:04:05"), entry.Level)
			}
		}
		return nil
	},
}

// setPullCmd changes a pin's pull resistor mode.
var setPullCmd = &cobra.Command{
	Use:   "set-pull <pin> <up|down|none>",
	Short: "Set a pin's pull resistor mode",
	Long: `Set the pull resistor mode of a monitored pin.

Changing the pull resets the pin's sampling window; it reports
"unknown" until the window refills.

Example:
  gpio-monitor set-pull 17 up`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := parsePinArg(args[0])
		if err != nil {
			return err
		}
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		var resp mutationResponse
		body := map[string]string{"mode": args[1]}
		if err := client.do(http.MethodPut, fmt.Sprintf("/api/pins/%d/pull", p), body, &resp); err != nil {
			return err
		}
		fmt.Println(resp.Message)
		return nil
	},
}

// setDebounceCmd sets a pin's asymmetric debounce thresholds.
var setDebounceCmd = &cobra.Command{
	Use:   "set-debounce <pin> <low> <high>",
	Short: "Set asymmetric debounce thresholds",
	Long: fmt.Sprintf(`Set a pin's debounce thresholds over its %d-sample window.

The LOW threshold applies to HIGH -> LOW transitions, the HIGH threshold
to LOW -> HIGH transitions. A higher threshold demands more consistent
readings before a transition is confirmed.

Example:
  gpio-monitor set-debounce 17 6 8
  -> 6/%d readings of LOW confirm HIGH -> LOW
  -> 8/%d readings of HIGH confirm LOW -> HIGH`, pin.WindowSize, pin.WindowSize, pin.WindowSize),
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := parsePinArg(args[0])
		if err != nil {
			return err
		}
		low, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid low threshold %q", args[1])
		}
		high, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid high threshold %q", args[2])
		}

		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		var resp mutationResponse
		body := map[string]int{"low": low, "high": high}
		if err := client.do(http.MethodPut, fmt.Sprintf("/api/pins/%d/debounce", p), body, &resp); err != nil {
			return err
		}
		fmt.Println(resp.Message)
		return nil
	},
}

// removeDebounceCmd clears a pin's debounce thresholds.
var removeDebounceCmd = &cobra.Command{
	Use:   "remove-debounce <pin>",
	Short: "Remove a pin's debouncing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := parsePinArg(args[0])
		if err != nil {
			return err
		}
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		var resp mutationResponse
		if err := client.do(http.MethodDelete, fmt.Sprintf("/api/pins/%d/debounce", p), nil, &resp); err != nil {
			return err
		}
		fmt.Println(resp.Message)
		return nil
	},
}

// setPortCmd persists a new daemon port.
var setPortCmd = &cobra.Command{
	Use:   "set-port <port>",
	Short: "Set the daemon port (requires restart)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid port %q", args[0])
		}
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		var resp setPortResponse
		if err := client.do(http.MethodPut, "/api/port", map[string]int{"port": port}, &resp); err != nil {
			return err
		}
		fmt.Println(resp.Message)
		if resp.RestartRequired {
			fmt.Println("Restart the service to apply it: gpio-monitor restart")
		}
		return nil
	},
}

// statusCmd shows the daemon's status.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		var resp daemonStatusResponse
		if err := client.do(http.MethodGet, "/api/status", nil, &resp); err != nil {
			return err
		}

		fmt.Printf("GPIO Monitor on port %d\n", resp.Port)
		fmt.Printf("  Uptime:      %ds\n", resp.UptimeSeconds)
		fmt.Printf("  Pins:        %d\n", len(resp.Pins))
		fmt.Printf("  Subscribers: %d\n", resp.Subscribers)
		if resp.RestartRequired {
			fmt.Println("  Restart required: yes (pending port change)")
		}
		for _, st := range resp.Pins {
			fmt.Printf("  GPIO %-2d  %-8s pull=%-4s debounce=%d/%d\n",
				st.Pin, st.StableLevel, st.Pull, st.DebounceLow, st.DebounceHigh)
		}
		if len(resp.Warnings) > 0 {
			fmt.Printf("Warnings (%d):\n", len(resp.Warnings))
			for _, wrn := range resp.Warnings {
				fmt.Printf("  %s  %s\n", wrn.Time.Format("15:04:05"), wrn.Message)
			}
		}
		return nil
	},
}

func init() {
	addPinCmd.Flags().String("pull", "none", "pull resistor mode: up, down or none")
	addPinCmd.Flags().Int("debounce-low", 0, "low debounce threshold (0-10)")
	addPinCmd.Flags().Int("debounce-high", 0, "high debounce threshold (0-10)")

	rootCmd.AddCommand(
		addPinCmd,
		removePinCmd,
		listPinsCmd,
		clearPinsCmd,
		pinStateCmd,
		setPullCmd,
		setDebounceCmd,
		removeDebounceCmd,
		setPortCmd,
		statusCmd,
	)
}
