// Package mqtt forwards pin transition events to an MQTT broker, with
// an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/WIPtitle/gpio-monitor/internal/pin"
)

// DefaultTopic is used when the config does not name one.
const DefaultTopic = "gpio-monitor/events"

// Publisher publishes pin transitions to a broker.
type Publisher interface {
	// Publish sends a transition event. A failure must not crash the
	// process; the caller logs and moves on.
	Publish(ev pin.Event) error

	// Close disconnects from the broker.
	Close() error
}

// Payload is the wire format for a transition message.
type Payload struct {
	GPIO GPIOPayload `json:"gpio"`
}

// GPIOPayload carries the transition details.
type GPIOPayload struct {
	Timestamp string `json:"timestamp"`
	Pin       int    `json:"pin"`
	Level     string `json:"level"`
}

// FormatPayload creates the JSON payload for a transition event.
func FormatPayload(ev pin.Event) ([]byte, error) {
	return json.Marshal(Payload{
		GPIO: GPIOPayload{
			Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
			Pin:       ev.Pin,
			Level:     string(ev.Level),
		},
	})
}
