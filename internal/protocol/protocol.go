// Package protocol defines the JSON envelopes exchanged with companion
// clients: an inbound Command and an outbound Response.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Response status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusInfo    = "info"
)

const maxFrameSize = 64 * 1024 // commands are tiny; anything bigger is garbage

// fallbackResponse is emitted when a response itself cannot be serialized.
const fallbackResponse = `{"id":null,"status":"error","message":"Critical serialization error","data":null}`

// Command is one client request: an optional correlation id echoed back
// verbatim, a command name, and an optional structured payload. A Command
// is never mutated after decoding.
type Command struct {
	ID   *string        `json:"id,omitempty"`
	Name string         `json:"command"`
	Data map[string]any `json:"data,omitempty"`
}

// Response is the uniform reply envelope. Data is reserved and currently
// always null in replies to WebSocket commands.
type Response struct {
	ID      *string `json:"id"`
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Data    any     `json:"data"`
}

// DecodeCommand parses one inbound text frame. A frame that is not a JSON
// object or that lacks a command name is a decode error; the caller turns
// that into an error Response with a null id.
func DecodeCommand(data []byte) (Command, error) {
	var cmd Command
	if len(data) > maxFrameSize {
		return cmd, fmt.Errorf("frame size %d exceeds maximum %d bytes", len(data), maxFrameSize)
	}
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, err
	}
	if cmd.Name == "" {
		return Command{}, errors.New("missing 'command' field")
	}
	return cmd, nil
}

// EncodeResponse serializes a Response. It always yields a valid frame:
// if marshalling fails it falls back to a canned error envelope.
func EncodeResponse(r Response) []byte {
	out, err := json.Marshal(r)
	if err != nil {
		return []byte(fallbackResponse)
	}
	return out
}

// Success builds a success Response correlated with id.
func Success(id *string, message string) Response {
	return Response{ID: id, Status: StatusSuccess, Message: message}
}

// Error builds an error Response correlated with id (nil when the
// originating command was unparsable).
func Error(id *string, message string) Response {
	return Response{ID: id, Status: StatusError, Message: message}
}

// Info builds an informational Response correlated with id.
func Info(id *string, message string) Response {
	return Response{ID: id, Status: StatusInfo, Message: message}
}

// StringField extracts a required string field from a command payload.
func (c Command) StringField(name string) (string, bool) {
	v, ok := c.Data[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// IntField extracts a required integer field from a command payload.
// JSON numbers arrive as float64; fractional values are rejected.
func (c Command) IntField(name string) (int, bool) {
	v, ok := c.Data[name]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}
