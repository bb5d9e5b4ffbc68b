package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// VideoFile reads frames from a recorded video, stamped with the
// container's presentation time.
type VideoFile struct {
	path    string
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
	last    int64
}

// NewVideoFile creates a source for the video at path.
func NewVideoFile(path string) *VideoFile {
	return &VideoFile{path: path}
}

// Open opens the video file.
func (v *VideoFile) Open() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.running {
		return nil
	}

	capture, err := gocv.VideoCaptureFile(v.path)
	if err != nil {
		return fmt.Errorf("open video %s: %w", v.path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("open video %s: unsupported or missing file", v.path)
	}

	v.capture = capture
	v.running = true
	v.last = -1
	return nil
}

// Close releases the video file.
func (v *VideoFile) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.running || v.capture == nil {
		v.running = false
		return nil
	}

	err := v.capture.Close()
	v.capture = nil
	v.running = false
	return err
}

// ReadFrame decodes the next frame. It returns ErrEndOfStream after the
// last frame.
func (v *VideoFile) ReadFrame() (*Frame, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.running || v.capture == nil {
		return nil, ErrSourceNotOpen
	}

	mat := gocv.NewMat()
	defer mat.Close()
	if ok := v.capture.Read(&mat); !ok || mat.Empty() {
		return nil, ErrEndOfStream
	}

	img, err := MatToImage(mat)
	if err != nil {
		return nil, err
	}

	ts := int64(v.capture.Get(gocv.VideoCapturePosMsec))
	// Some containers report 0 for every frame; fall back to frame rate.
	if ts <= v.last {
		fps := v.capture.Get(gocv.VideoCaptureFPS)
		step := int64(1)
		if fps > 0 {
			step = max(1, int64(1000/fps))
		}
		ts = v.last + step
	}
	v.last = ts

	return &Frame{Image: img, Timestamp: ts}, nil
}

// IsOpen returns true while the file is open.
func (v *VideoFile) IsOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.running
}

// IsEndOfStream reports whether err marks the end of a finite source.
func IsEndOfStream(err error) bool {
	return errors.Is(err, ErrEndOfStream)
}
