// Package api provides HTTP API handlers for recorded sessions and rep analysis.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cast"

	"github.com/ayusman/reptrack/internal/frames"
	"github.com/ayusman/reptrack/internal/movement"
	"github.com/ayusman/reptrack/internal/store"
)

// AnalyzeRequest describes one rep analysis run.
type AnalyzeRequest struct {
	SessionID string
	ObjectID  string
	Keypoint1 string
	Keypoint2 string
	Options   movement.RepOptions
}

// Analyzer counts reps for an object and stores the result.
type Analyzer interface {
	Analyze(req AnalyzeRequest) ([]store.RepRecord, error)
}

// ErrUnknownObject is returned by an Analyzer when the object has no frames.
var ErrUnknownObject = errors.New("unknown object")

// SessionHandler handles HTTP requests for session resources.
type SessionHandler struct {
	store    *store.Store
	analyzer Analyzer
	defaults AnalyzeRequest
}

// NewSessionHandler creates a SessionHandler. defaults supplies the
// keypoints and options used when a rep request omits them.
func NewSessionHandler(s *store.Store, analyzer Analyzer, defaults AnalyzeRequest) *SessionHandler {
	return &SessionHandler{store: s, analyzer: analyzer, defaults: defaults}
}

// ServeHTTP routes:
//
//	GET  /api/sessions
//	GET  /api/sessions/{id}
//	GET  /api/sessions/{id}/objects[?type=]
//	GET  /api/sessions/{id}/objects/{oid}/frames
//	GET  /api/sessions/{id}/objects/{oid}/reps
//	POST /api/sessions/{id}/objects/{oid}/reps
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	path = strings.Trim(path, "/")
	var parts []string
	if path != "" {
		parts = strings.Split(path, "/")
	}

	switch {
	case len(parts) == 0:
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.list(w)
	case len(parts) == 1:
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.get(w, parts[0])
	case len(parts) == 2 && parts[1] == "objects":
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.objects(w, parts[0], r.URL.Query().Get("type"))
	case len(parts) == 4 && parts[1] == "objects" && parts[3] == "frames":
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.frames(w, parts[0], parts[2])
	case len(parts) == 4 && parts[1] == "objects" && parts[3] == "reps":
		switch r.Method {
		case http.MethodGet:
			h.listReps(w, parts[0], parts[2])
		case http.MethodPost:
			h.analyze(w, r, parts[0], parts[2])
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type listSessionsResponse struct {
	Sessions []*store.Session `json:"sessions"`
}

type objectsResponse struct {
	Objects []string `json:"objects"`
}

type framesResponse struct {
	Frames []frames.FrameObject `json:"frames"`
}

type repsResponse struct {
	Reps []store.RepRecord `json:"reps"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (h *SessionHandler) list(w http.ResponseWriter) {
	sessions, err := h.store.Sessions().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}
	writeJSON(w, http.StatusOK, listSessionsResponse{Sessions: sessions})
}

func (h *SessionHandler) get(w http.ResponseWriter, id string) {
	sess, ok := h.session(w, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// session loads a session, writing the error response when it fails.
func (h *SessionHandler) session(w http.ResponseWriter, id string) (*store.Session, bool) {
	sess, err := h.store.Sessions().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return nil, false
	}
	return sess, true
}

func (h *SessionHandler) objects(w http.ResponseWriter, sessionID, objType string) {
	if _, ok := h.session(w, sessionID); !ok {
		return
	}
	ids, err := h.store.FrameObjects().ObjectIDs(sessionID, objType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list objects")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, objectsResponse{Objects: ids})
}

func (h *SessionHandler) frames(w http.ResponseWriter, sessionID, objectID string) {
	objs, err := h.store.FrameObjects().ListByObject(sessionID, objectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list frames")
		return
	}
	if len(objs) == 0 {
		writeError(w, http.StatusNotFound, "Object not found")
		return
	}
	writeJSON(w, http.StatusOK, framesResponse{Frames: objs})
}

func (h *SessionHandler) listReps(w http.ResponseWriter, sessionID, objectID string) {
	reps, err := h.store.Reps().List(sessionID, objectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list reps")
		return
	}
	writeJSON(w, http.StatusOK, repsResponse{Reps: reps})
}

func (h *SessionHandler) analyze(w http.ResponseWriter, r *http.Request, sessionID, objectID string) {
	if h.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "Rep analysis not available")
		return
	}
	if _, ok := h.session(w, sessionID); !ok {
		return
	}

	req, err := h.parseAnalyzeRequest(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.SessionID = sessionID
	req.ObjectID = objectID

	reps, err := h.analyzer.Analyze(req)
	if err != nil {
		if errors.Is(err, ErrUnknownObject) {
			writeError(w, http.StatusNotFound, "Object not found")
			return
		}
		log.Printf("Rep analysis for %s/%s failed: %v", sessionID, objectID, err)
		writeError(w, http.StatusInternalServerError, "Rep analysis failed")
		return
	}
	if reps == nil {
		reps = []store.RepRecord{}
	}
	writeJSON(w, http.StatusOK, repsResponse{Reps: reps})
}

// parseAnalyzeRequest reads keypoint1, keypoint2, contract, threshold,
// smoothing, ignore_start_ms and ignore_end_ms over the handler defaults.
func (h *SessionHandler) parseAnalyzeRequest(q url.Values) (AnalyzeRequest, error) {
	req := h.defaults
	if v := q.Get("keypoint1"); v != "" {
		req.Keypoint1 = v
	}
	if v := q.Get("keypoint2"); v != "" {
		req.Keypoint2 = v
	}
	for _, kp := range []string{req.Keypoint1, req.Keypoint2} {
		if !frames.IsKeypoint(kp) {
			return req, fmt.Errorf("unknown keypoint %q", kp)
		}
	}

	if v := q.Get("contract"); v != "" {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return req, fmt.Errorf("invalid contract %q", v)
		}
		req.Options.KeypointsContract = b
	}
	if v := q.Get("threshold"); v != "" {
		f, err := cast.ToFloat64E(v)
		if err != nil || f < 0 {
			return req, fmt.Errorf("invalid threshold %q", v)
		}
		req.Options.Threshold = f
	}
	if v := q.Get("smoothing"); v != "" {
		f, err := cast.ToFloat64E(v)
		if err != nil || f < 0 {
			return req, fmt.Errorf("invalid smoothing %q", v)
		}
		req.Options.Smoothing = f
	}
	if v := q.Get("ignore_start_ms"); v != "" {
		ms, err := cast.ToInt64E(v)
		if err != nil || ms < 0 {
			return req, fmt.Errorf("invalid ignore_start_ms %q", v)
		}
		req.Options.IgnoreStartMs = movement.Millis(ms)
	}
	if v := q.Get("ignore_end_ms"); v != "" {
		ms, err := cast.ToInt64E(v)
		if err != nil || ms < 0 {
			return req, fmt.Errorf("invalid ignore_end_ms %q", v)
		}
		req.Options.IgnoreEndMs = movement.Millis(ms)
	}
	return req, nil
}
