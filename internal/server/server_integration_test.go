package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/reptrack/internal/frames"
	"github.com/ayusman/reptrack/internal/geometry"
	"github.com/ayusman/reptrack/internal/store"
)

func TestAPI_SessionWorkflow(t *testing.T) {
	// Setup
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	sess, _ := s.Sessions().Create("cam0", store.ModeTrack)
	s.FrameObjects().Save(sess.ID, frames.NewFrameObject("person-1", frames.TypePerson, 0, geometry.NewBox(0.1, 0.1, 0.5, 0.9), nil))

	srv := New(Config{Store: s})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	// 1. List sessions
	resp, err := client.Get(ts.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("GET /api/sessions error = %v", err)
	}
	var listed struct {
		Sessions []struct {
			ID string `json:"id"`
		} `json:"sessions"`
	}
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()
	if len(listed.Sessions) != 1 || listed.Sessions[0].ID != sess.ID {
		t.Fatalf("listed = %+v", listed)
	}

	// 2. List objects
	resp, _ = client.Get(ts.URL + "/api/sessions/" + sess.ID + "/objects")
	var objects struct {
		Objects []string `json:"objects"`
	}
	json.NewDecoder(resp.Body).Decode(&objects)
	resp.Body.Close()
	if len(objects.Objects) != 1 || objects.Objects[0] != "person-1" {
		t.Fatalf("objects = %+v", objects)
	}

	// 3. Rep analysis is unavailable without an analyzer
	resp, _ = client.Post(ts.URL+"/api/sessions/"+sess.ID+"/objects/person-1/reps", "application/json", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("POST reps status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub()
	srv := New(Config{Hub: hub})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/detections"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.Clients() != 1 {
		t.Fatalf("Clients() = %d, want 1", hub.Clients())
	}

	hub.Publish(map[string]any{"timestamp": 40, "objects": []string{"person-1"}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Timestamp int64    `json:"timestamp"`
		Objects   []string `json:"objects"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.Timestamp != 40 || len(msg.Objects) != 1 {
		t.Errorf("message = %+v", msg)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.Clients() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.Clients() != 0 {
		t.Errorf("Clients() after close = %d, want 0", hub.Clients())
	}
}

func TestHub_PublishWithoutClients(t *testing.T) {
	hub := NewHub()
	hub.Publish(map[string]int{"n": 1})
	if hub.Clients() != 0 {
		t.Errorf("Clients() = %d, want 0", hub.Clients())
	}
}
