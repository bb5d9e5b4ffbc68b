// Package hook runs external executables when the pipeline finishes a
// session or counts reps.
package hook

import "encoding/json"

// Event names a hook can subscribe to.
const (
	EventRepsCounted  = "reps_counted"
	EventSessionEnded = "session_ended"
)

// Manifest describes a hook and the events it handles.
type Manifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Executable  string   `json:"executable"`
	Events      []string `json:"events"`
}

// Handles reports whether the hook subscribes to event.
func (m Manifest) Handles(event string) bool {
	for _, e := range m.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Request is written as JSON to the hook's stdin.
type Request struct {
	Event     string          `json:"event"`
	SessionID string          `json:"session_id"`
	ObjectID  string          `json:"object_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Response is read as JSON from the hook's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}
