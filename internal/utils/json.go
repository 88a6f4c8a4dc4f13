package utils

import (
	"encoding/json"

	"github.com/gofiber/websocket/v2"
)

// Envelope is the outbound WebSocket frame: an event name plus its payload.
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// ParseJSON decodes a raw client frame.
func ParseJSON(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// SendEvent writes one event frame to a WebSocket connection. Fiber's
// websocket conns are not safe for concurrent writes; callers serialize
// (the room actor is the only writer after the welcome ack).
func SendEvent(c *websocket.Conn, event string, payload any) error {
	return c.WriteJSON(Envelope{Event: event, Payload: payload})
}
