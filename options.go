package gpiomonitor

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/WIPtitle/gpio-monitor/internal/hw"
	"github.com/WIPtitle/gpio-monitor/internal/mqtt"
)

// monitorConfig holds mutable state during Monitor construction.
type monitorConfig struct {
	configPath          string
	backend             string
	reader              hw.Reader
	publisher           mqtt.Publisher
	port                int
	title               string
	logger              *slog.Logger
	transitionCallbacks []func(Transition)
}

// Option is a function that configures a [Monitor] instance during
// construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*monitorConfig) error

// WithConfigPath sets the path of the JSON config file.
//
// The file is both read (pin set, port, MQTT settings) and written
// (control API mutations persist to it). A missing file is treated as
// an empty configuration. Defaults to /etc/gpio-monitor/config.json.
func WithConfigPath(path string) Option {
	return func(cfg *monitorConfig) error {
		if path == "" {
			return errors.New("config path cannot be empty")
		}
		cfg.configPath = path
		return nil
	}
}

// WithBackend selects the GPIO access backend.
//
// Accepted values are [BackendMemMap] (direct register access via
// /dev/gpiomem), [BackendChardev] (the /dev/gpiochip0 character
// device), and [BackendMock] (no hardware, every pin reads low).
// Defaults to [BackendMemMap].
//
// Returns an error for an unrecognized backend name.
func WithBackend(backend string) Option {
	return func(cfg *monitorConfig) error {
		switch backend {
		case BackendMemMap, BackendChardev, BackendMock:
			cfg.backend = backend
			return nil
		default:
			return fmt.Errorf("unknown backend %q (valid: %s, %s, %s)",
				backend, BackendMemMap, BackendChardev, BackendMock)
		}
	}
}

// WithPort overrides the HTTP port from the config file.
//
// Normally the port comes from the config file (8787 when absent); this
// option pins it regardless of what the file says. Port changes made
// through the API are still persisted to the file, but take effect only
// after a restart without this override.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *monitorConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Monitor instance.
//
// This allows embedding applications to control where logs are written
// and in what format. If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *monitorConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithTitle sets the dashboard title displayed in the browser tab and
// header. Defaults to "GPIO Monitor".
func WithTitle(title string) Option {
	return func(cfg *monitorConfig) error {
		cfg.title = title
		return nil
	}
}

// withReader injects a hardware reader directly, bypassing backend
// selection. Test hook.
func withReader(r hw.Reader) Option {
	return func(cfg *monitorConfig) error {
		cfg.reader = r
		return nil
	}
}

// withPublisher injects an MQTT publisher directly. Test hook.
func withPublisher(p mqtt.Publisher) Option {
	return func(cfg *monitorConfig) error {
		cfg.publisher = p
		return nil
	}
}

// WithTransitionCallback registers a function called on every confirmed
// pin transition.
//
// Multiple callbacks may be registered by calling WithTransitionCallback
// multiple times; they execute in registration order.
//
// IMPORTANT: Callbacks must be non-blocking. Long-running operations
// should dispatch work to a separate goroutine; a blocked callback
// eventually causes the monitor's internal event subscription to be
// dropped for backpressure, after which no further callbacks fire.
//
// Callbacks are invoked synchronously from a single goroutine. Panics
// within callbacks are recovered and logged; they do not crash the
// sampler.
//
// Nil callbacks are silently ignored.
func WithTransitionCallback(cb func(Transition)) Option {
	return func(cfg *monitorConfig) error {
		if cb == nil {
			return nil
		}
		cfg.transitionCallbacks = append(cfg.transitionCallbacks, cb)
		return nil
	}
}
