package capture

import (
	"fmt"
	"sync"

	"github.com/ayusman/reptrack/internal/geometry"
)

// MockSource plays back in-memory images for testing.
type MockSource struct {
	images     []*geometry.Image
	intervalMs int64
	index      int
	loop       bool
	mu         sync.Mutex
	running    bool
}

// NewMockSource replays images, stamping them intervalMs apart starting at 0.
func NewMockSource(images []*geometry.Image, intervalMs int64, loop bool) *MockSource {
	return &MockSource{
		images:     images,
		intervalMs: intervalMs,
		loop:       loop,
	}
}

func (s *MockSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.index = 0
	return nil
}

func (s *MockSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

func (s *MockSource) ReadFrame() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, ErrSourceNotOpen
	}
	if len(s.images) == 0 {
		return nil, fmt.Errorf("no frames available")
	}
	if s.index >= len(s.images) && !s.loop {
		return nil, ErrEndOfStream
	}

	img := s.images[s.index%len(s.images)].Clone()
	ts := int64(s.index) * s.intervalMs
	s.index++

	return &Frame{Image: img, Timestamp: ts}, nil
}

func (s *MockSource) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Reset restarts playback from the beginning
func (s *MockSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = 0
}
