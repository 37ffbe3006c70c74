// Package transport implements the real-time event channel to the broker:
// JSON event envelopes over a WebSocket with automatic reconnection.
package transport

import (
	"encoding/json"
	"errors"
)

// Synthetic events published by the channel itself.
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
)

var (
	ErrNotConnected = errors.New("channel not connected")
	ErrClosed       = errors.New("channel closed")
)

// Event is a single named event with its raw JSON payload.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload is the payload of EventConnectError and EventDisconnect.
type ErrorPayload struct {
	Message string `json:"message"`
}

func errorEvent(name string, err error) Event {
	ev := Event{Name: name}
	if err != nil {
		ev.Data, _ = json.Marshal(ErrorPayload{Message: err.Error()})
	}
	return ev
}

func encodeEvent(name string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Event{Name: name, Data: data})
}
