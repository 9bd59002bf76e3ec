package gpiomonitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/WIPtitle/gpio-monitor/config"
	"github.com/WIPtitle/gpio-monitor/dashboard"
	"github.com/WIPtitle/gpio-monitor/internal/fanout"
	"github.com/WIPtitle/gpio-monitor/internal/hw"
	"github.com/WIPtitle/gpio-monitor/internal/mqtt"
	"github.com/WIPtitle/gpio-monitor/internal/pin"
	"github.com/WIPtitle/gpio-monitor/internal/reconcile"
	"github.com/WIPtitle/gpio-monitor/internal/sampler"
	"github.com/WIPtitle/gpio-monitor/internal/server"
	"github.com/WIPtitle/gpio-monitor/internal/store"
)

// Backend names accepted by [WithBackend].
const (
	BackendMemMap  = hw.BackendMemMap
	BackendChardev = hw.BackendChardev
	BackendMock    = hw.BackendMock
)

// Monitor is the main orchestrator for pin sampling and API serving.
//
// Monitor coordinates the GPIO sampler, the debounced pin state store,
// the config-file reconciler, and the HTTP server. It is created using
// [New] with functional options and started with [Monitor.Start].
//
// The typical lifecycle is:
//
//	m, err := gpiomonitor.New(gpiomonitor.WithConfigPath(path))
//	if err != nil {
//	    slog.Error("failed to create monitor", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	m.Start(ctx) // blocks until context cancelled
//
// The caller controls the lifecycle via the context. Cancel the context
// to trigger graceful shutdown.
type Monitor struct {
	configPath          string
	backend             string
	reader              hw.Reader
	publisher           mqtt.Publisher
	port                int
	title               string
	logger              *slog.Logger
	transitionCallbacks []func(Transition)
}

// New creates a new [Monitor] instance with the given options.
//
// All options have sensible defaults:
//   - Config path: /etc/gpio-monitor/config.json
//   - Backend: memory-mapped registers ([BackendMemMap])
//   - Port: taken from the config file (8787 when absent)
//
// A missing config file is not an error; the monitor starts with an
// empty pin set and pins can be added through the API.
func New(opts ...Option) (*Monitor, error) {
	cfg := &monitorConfig{
		configPath: config.DefaultPath,
		backend:    BackendMemMap,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		configPath:          cfg.configPath,
		backend:             cfg.backend,
		reader:              cfg.reader,
		publisher:           cfg.publisher,
		port:                cfg.port,
		title:               cfg.title,
		logger:              logger,
		transitionCallbacks: cfg.transitionCallbacks,
	}, nil
}

// Start begins sampling pins and serving the control API.
//
// Start is a blocking call that runs until the provided context is
// cancelled. During execution:
//
//   - The config file is loaded and its pin set applied
//   - All monitored pins are sampled every 100ms
//   - The config file is watched for live pin-set changes
//   - The HTTP server starts on the configured port
//   - Confirmed transitions stream to SSE subscribers, callbacks, and
//     the MQTT broker when one is configured
//
// Returns nil on graceful shutdown. Returns an error if the hardware
// backend cannot be opened or the HTTP server fails to start.
func (m *Monitor) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	file := config.NewFile(m.configPath)
	cfg, err := file.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	port := m.port
	if port == 0 {
		port = cfg.Port
	}

	st := store.New()
	hub := fanout.New(m.logger)

	reconciler := reconcile.New(file, st, port, m.logger)
	reconciler.LoadAndApply()

	reader := m.reader
	ownReader := false
	if reader == nil {
		reader, err = hw.Open(m.backend)
		if err != nil {
			return fmt.Errorf("failed to open gpio backend: %w", err)
		}
		ownReader = true
	}

	var pub mqtt.Publisher
	ownPublisher := false
	if m.publisher != nil {
		pub = m.publisher
	} else if cfg.MQTT != nil {
		pub, err = mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.Topic)
		if err != nil {
			if ownReader {
				reader.Close()
			}
			return fmt.Errorf("failed to connect to mqtt broker: %w", err)
		}
		ownPublisher = true
	}

	m.logger.Info("gpio monitor starting",
		"config", m.configPath,
		"backend", m.backend,
		"pins", st.Len(),
	)
	m.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", port))

	smp := sampler.New(reader, st, hub, m.logger)
	smp.Start(ctx)
	reconciler.Start(ctx)

	var bridge *mqtt.Bridge
	if pub != nil {
		bridge = mqtt.NewBridge(hub, pub, m.logger)
		bridge.Start(ctx)
	}

	var cbWG sync.WaitGroup
	if len(m.transitionCallbacks) > 0 {
		sub := hub.Subscribe()
		cbWG.Add(1)
		go func() {
			defer cbWG.Done()
			defer hub.Unsubscribe(sub.ID)
			for {
				select {
				case ev, ok := <-sub.C:
					if !ok {
						return
					}
					t := eventToTransition(ev)
					for _, cb := range m.transitionCallbacks {
						invokeCallbackSafe(cb, t, m.logger)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// cleanup stops producers before consumers so nothing publishes
	// into a closed hub
	cleanup := func() {
		smp.Stop()
		reconciler.Stop()
		if bridge != nil {
			bridge.Stop()
		}
		cbWG.Wait()
		hub.Close()
		if ownPublisher {
			pub.Close()
		}
		if ownReader {
			if err := reader.Close(); err != nil {
				m.logger.Error("failed to close gpio backend", "error", err)
			}
		}
	}

	httpServer := server.New(st, hub, file, port, dashboard.Assets, m.title, m.logger)
	if err := httpServer.Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	<-ctx.Done()
	cleanup()
	m.logger.Info("gpio monitor stopped")
	return nil
}

// ConfigPath returns the path of the config file the monitor watches.
func (m *Monitor) ConfigPath() string {
	return m.configPath
}

// eventToTransition converts an internal event to the public API type.
func eventToTransition(ev pin.Event) Transition {
	return Transition{
		Pin:       ev.Pin,
		Level:     Level(ev.Level),
		Timestamp: ev.Timestamp,
	}
}

// invokeCallbackSafe calls a transition callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(Transition), t Transition, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("transition callback panicked", "panic", r, "pin", t.Pin)
		}
	}()
	cb(t)
}
