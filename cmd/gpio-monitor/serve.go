package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	gpiomonitor "github.com/WIPtitle/gpio-monitor"
)

const shutdownTimeout = 10 * time.Second

// newLogger creates a JSON logger for CLI use.
func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// serveCmd runs the monitoring daemon.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitoring daemon",
	Long: `Run the GPIO monitoring daemon.

The daemon will:
  - Load the pin set from the config file (a missing file means no pins)
  - Sample all monitored pins every 100ms with debounced level detection
  - Watch the config file and apply pin changes live
  - Serve the REST API and dashboard on the configured port

The daemon runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  gpio-monitor serve
  gpio-monitor serve -c /etc/gpio-monitor/config.json --backend chardev`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("backend", gpiomonitor.BackendMemMap,
		fmt.Sprintf("gpio backend: %s, %s or %s",
			gpiomonitor.BackendMemMap, gpiomonitor.BackendChardev, gpiomonitor.BackendMock))
	serveCmd.Flags().String("title", "", "dashboard title")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	configPath, _ := cmd.Flags().GetString("config")
	backend, _ := cmd.Flags().GetString("backend")
	title, _ := cmd.Flags().GetString("title")

	opts := []gpiomonitor.Option{
		gpiomonitor.WithConfigPath(configPath),
		gpiomonitor.WithBackend(backend),
		gpiomonitor.WithLogger(logger),
	}
	if title != "" {
		opts = append(opts, gpiomonitor.WithTitle(title))
	}

	m, err := gpiomonitor.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- m.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("monitor error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("monitor error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
