// Package gpiomonitor provides a Raspberry Pi GPIO pin monitoring daemon
// with debounced level detection, a REST control API, and a real-time
// dashboard.
//
// The monitor samples a configured set of GPIO pins at a fixed interval,
// debounces the raw readings over a sliding window with per-pin
// asymmetric thresholds, and publishes confirmed level transitions to
// Server-Sent Events subscribers, an optional MQTT broker, and
// registered callbacks.
//
// # Quick Start
//
// Create a monitor from a config file and run it with graceful shutdown:
//
//	m, err := gpiomonitor.New(
//	    gpiomonitor.WithConfigPath("/etc/gpio-monitor/config.json"),
//	)
//	if err != nil {
//	    slog.Error("failed to create monitor", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	m.Start(ctx) // blocks until context is cancelled
//
// # Configuration
//
// The monitor reads a JSON config file holding the HTTP port and the
// monitored pin set. The file is watched while running: pin additions,
// removals, and parameter changes apply live, while a port change is
// flagged as requiring a restart. Control API mutations write through
// to the same file, so external edits and API calls converge.
//
// Construction uses the functional options pattern:
//
//	m, err := gpiomonitor.New(
//	    gpiomonitor.WithConfigPath(path),
//	    gpiomonitor.WithBackend(gpiomonitor.BackendChardev),
//	    gpiomonitor.WithTitle("Greenhouse Pins"),
//	    gpiomonitor.WithTransitionCallback(func(t gpiomonitor.Transition) {
//	        log.Printf("pin %d is now %s", t.Pin, t.Level)
//	    }),
//	)
//
// # Architecture
//
// The monitor consists of several internal packages (under internal/):
//
//   - internal/hw: GPIO backends (memory-mapped, character device, mock)
//   - internal/debounce: sliding-window debounce engine
//   - internal/store: concurrency-safe pin state store
//   - internal/sampler: fixed-interval sampling loop
//   - internal/reconcile: config-file watcher and live pin-set reconciler
//   - internal/fanout: transition event hub with drop-slow-subscriber backpressure
//   - internal/server: REST control API, SSE stream, dashboard
//   - internal/mqtt: optional MQTT transition forwarding
//   - dashboard: embedded web UI assets
//
// The internal packages are not part of the public API and may change
// without notice. The daemon deploys as a single binary using Go's
// embed directive for static assets.
package gpiomonitor
