package detector

import (
	"context"

	"github.com/ayusman/reptrack/internal/frames"
	"github.com/ayusman/reptrack/internal/geometry"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	detections []Detection
	err        error
	calls      int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetDetections sets the detections that will be returned by Detect.
func (m *MockDetector) SetDetections(detections []Detection) {
	m.detections = detections
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.err = err
}

// Calls returns how many times Detect ran.
func (m *MockDetector) Calls() int {
	return m.calls
}

// Detect returns the pre-configured detections or error.
func (m *MockDetector) Detect(ctx context.Context, img *geometry.Image) ([]Detection, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.detections, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// MockPoseEstimator is a test implementation of the PoseEstimator interface.
type MockPoseEstimator struct {
	keypoints map[string]geometry.Position
	err       error
}

// NewMockPoseEstimator creates a new MockPoseEstimator instance.
func NewMockPoseEstimator() *MockPoseEstimator {
	return &MockPoseEstimator{}
}

// SetKeypoints sets the keypoints that will be returned by Estimate.
func (m *MockPoseEstimator) SetKeypoints(keypoints map[string]geometry.Position) {
	m.keypoints = keypoints
}

// SetError sets the error that will be returned by Estimate.
func (m *MockPoseEstimator) SetError(err error) {
	m.err = err
}

// Estimate returns the pre-configured keypoints or error.
func (m *MockPoseEstimator) Estimate(ctx context.Context, img *geometry.Image, box geometry.Box) (map[string]geometry.Position, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.keypoints, nil
}

// Close is a no-op for the mock estimator.
func (m *MockPoseEstimator) Close() error {
	return nil
}

// StandingPose returns keypoints of a person standing upright inside box.
func StandingPose(box geometry.Box) map[string]geometry.Position {
	at := func(fx, fy float64) geometry.Position {
		return geometry.NewPosition(
			box.TopLeft.X+fx*box.Width(),
			box.TopLeft.Y+fy*box.Height(),
		)
	}
	return map[string]geometry.Position{
		frames.Nose:          at(0.5, 0.05),
		frames.LeftShoulder:  at(0.65, 0.2),
		frames.RightShoulder: at(0.35, 0.2),
		frames.LeftElbow:     at(0.7, 0.35),
		frames.RightElbow:    at(0.3, 0.35),
		frames.LeftWrist:     at(0.7, 0.5),
		frames.RightWrist:    at(0.3, 0.5),
		frames.LeftHip:       at(0.6, 0.5),
		frames.RightHip:      at(0.4, 0.5),
		frames.LeftKnee:      at(0.6, 0.72),
		frames.RightKnee:     at(0.4, 0.72),
		frames.LeftAnkle:     at(0.6, 0.95),
		frames.RightAnkle:    at(0.4, 0.95),
	}
}
