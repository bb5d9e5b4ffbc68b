// Package main is a hook that shows a desktop notification when reps are
// counted or a session ends. It uses AppleScript on macOS and notify-send
// elsewhere.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Request represents the input from the hook executor.
type Request struct {
	Event     string          `json:"event"`
	SessionID string          `json:"session_id"`
	ObjectID  string          `json:"object_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Response represents the output to the hook executor.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type repsPayload struct {
	Keypoint1 string            `json:"keypoint1"`
	Keypoint2 string            `json:"keypoint2"`
	Reps      []json.RawMessage `json:"reps"`
}

type sessionPayload struct {
	Source  string   `json:"source"`
	Objects []string `json:"objects"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(fmt.Errorf("failed to decode request: %w", err))
		return
	}

	message, err := format(req)
	if err != nil {
		writeResponse(err)
		return
	}
	writeResponse(notify("reptrack", message))
}

func format(req Request) (string, error) {
	switch req.Event {
	case "reps_counted":
		var p repsPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return "", fmt.Errorf("bad payload: %w", err)
		}
		return fmt.Sprintf("%s: %d reps (%s to %s)", req.ObjectID, len(p.Reps), p.Keypoint1, p.Keypoint2), nil
	case "session_ended":
		var p sessionPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return "", fmt.Errorf("bad payload: %w", err)
		}
		return fmt.Sprintf("Session on %s ended with %d objects", p.Source, len(p.Objects)), nil
	default:
		return "", fmt.Errorf("unknown event: %s", req.Event)
	}
}

func notify(title, message string) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "darwin" {
		script := fmt.Sprintf("display notification %q with title %q", message, title)
		cmd = exec.Command("osascript", "-e", script)
	} else {
		cmd = exec.Command("notify-send", title, message)
	}
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

func writeResponse(err error) {
	resp := Response{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
