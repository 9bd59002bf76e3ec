// Package config reads and writes the persisted service configuration.
//
// The on-disk format is JSON:
//
//	{
//	  "port": 8787,
//	  "monitored_pins": [
//	    {"pin": 17, "pull": "up", "debounce_low": 3, "debounce_high": 3}
//	  ]
//	}
//
// The file is the durable source of the monitored pin set; the in-memory
// store is a derived materialization kept convergent by the reconciler.
// Control-API mutations write through here immediately so the file and
// the store never disagree for longer than one request.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/WIPtitle/gpio-monitor/internal/pin"
)

// DefaultPath is where the service and CLI look for the config file.
const DefaultPath = "/etc/gpio-monitor/config.json"

// DefaultPort is the HTTP listen port used on first install.
const DefaultPort = 8787

// Service is the root persisted configuration.
type Service struct {
	// Port is the HTTP listen port. Changing it while the service runs
	// is persisted but requires a restart to take effect.
	Port int `json:"port"`

	// Pins is the monitored pin set, keyed by unique pin number.
	Pins []pin.Config `json:"monitored_pins"`

	// MQTT optionally enables the transition-event bridge.
	MQTT *MQTT `json:"mqtt,omitempty"`
}

// MQTT configures the optional event bridge to an MQTT broker.
type MQTT struct {
	// Broker is the broker URL, e.g. "tcp://localhost:1883".
	Broker string `json:"broker"`

	// Topic overrides the default event topic.
	Topic string `json:"topic,omitempty"`
}

// Default returns the configuration written on first install.
func Default() *Service {
	return &Service{Port: DefaultPort, Pins: []pin.Config{}}
}

// Parse parses and validates JSON configuration data.
// A missing or zero port defaults to DefaultPort.
func Parse(data []byte) (*Service, error) {
	var cfg Service
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Pins == nil {
		cfg.Pins = []pin.Config{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads and parses the configuration file. A file that does not
// exist yet yields the default configuration, so a fresh install works
// before anything was persisted.
func Load(path string) (*Service, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Validate reports the first problem with the configuration, or nil.
func (c *Service) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	seen := make(map[int]bool, len(c.Pins))
	for i, pc := range c.Pins {
		if err := pc.Validate(); err != nil {
			return fmt.Errorf("monitored_pins[%d]: %w", i, err)
		}
		if seen[pc.Pin] {
			return fmt.Errorf("monitored_pins[%d]: duplicate pin %d", i, pc.Pin)
		}
		seen[pc.Pin] = true
	}

	if c.MQTT != nil && c.MQTT.Broker == "" {
		return errors.New("mqtt: broker is required when the mqtt section is present")
	}
	return nil
}

// PinSet returns the monitored pins keyed by pin number.
func (c *Service) PinSet() map[int]pin.Config {
	out := make(map[int]pin.Config, len(c.Pins))
	for _, pc := range c.Pins {
		out[pc.Pin] = pc
	}
	return out
}

// FindPin returns the configuration of a pin, if monitored.
func (c *Service) FindPin(p int) (pin.Config, bool) {
	for _, pc := range c.Pins {
		if pc.Pin == p {
			return pc, true
		}
	}
	return pin.Config{}, false
}

// SetPin inserts or replaces a pin's configuration, keeping the slice
// sorted ascending by pin number.
func (c *Service) SetPin(pc pin.Config) {
	for i := range c.Pins {
		if c.Pins[i].Pin == pc.Pin {
			c.Pins[i] = pc
			return
		}
	}
	at := len(c.Pins)
	for i := range c.Pins {
		if c.Pins[i].Pin > pc.Pin {
			at = i
			break
		}
	}
	c.Pins = append(c.Pins[:at], append([]pin.Config{pc}, c.Pins[at:]...)...)
}

// RemovePin deletes a pin's configuration. Returns false if it was not
// monitored.
func (c *Service) RemovePin(p int) bool {
	for i := range c.Pins {
		if c.Pins[i].Pin == p {
			c.Pins = append(c.Pins[:i], c.Pins[i+1:]...)
			return true
		}
	}
	return false
}
