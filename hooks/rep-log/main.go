// Package main is a hook that appends every counted rep to reps.csv in the
// hook directory.
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
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

type rep struct {
	Index    int   `json:"index"`
	StartMs  int64 `json:"start_ms"`
	MiddleMs int64 `json:"middle_ms"`
	EndMs    int64 `json:"end_ms"`
}

type repsPayload struct {
	Keypoint1 string `json:"keypoint1"`
	Keypoint2 string `json:"keypoint2"`
	Reps      []rep  `json:"reps"`
}

const logFile = "reps.csv"

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(fmt.Errorf("failed to decode request: %w", err))
		return
	}
	if req.Event != "reps_counted" {
		writeResponse(fmt.Errorf("unknown event: %s", req.Event))
		return
	}

	var p repsPayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		writeResponse(fmt.Errorf("bad payload: %w", err))
		return
	}
	writeResponse(appendReps(req, p))
}

func appendReps(req Request, p repsPayload) error {
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, r := range p.Reps {
		w.Write([]string{
			req.SessionID,
			req.ObjectID,
			p.Keypoint1,
			p.Keypoint2,
			strconv.Itoa(r.Index),
			strconv.FormatInt(r.StartMs, 10),
			strconv.FormatInt(r.MiddleMs, 10),
			strconv.FormatInt(r.EndMs, 10),
		})
	}
	w.Flush()
	return w.Error()
}

func writeResponse(err error) {
	resp := Response{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
