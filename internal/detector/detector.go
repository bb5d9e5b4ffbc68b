// Package detector provides person detection and pose estimation on top of
// model inference sessions.
package detector

import (
	"context"
	"errors"
	"sort"

	"github.com/ayusman/reptrack/internal/frames"
	"github.com/ayusman/reptrack/internal/geometry"
)

// ErrBoxNotNormalized is returned when a pixel box is passed where a normalized one is expected.
var ErrBoxNotNormalized = errors.New("bounding box is not normalized")

// Detection is a labelled box in normalized image coordinates.
type Detection struct {
	Label      string       `json:"label"`
	Box        geometry.Box `json:"box"`
	Confidence float64      `json:"confidence"`
}

// Detector defines the interface for object detection implementations.
type Detector interface {
	// Detect returns every object found in the image.
	// Returns an empty slice if nothing is detected.
	Detect(ctx context.Context, img *geometry.Image) ([]Detection, error)

	// Close releases any resources held by the detector.
	Close() error
}

// PoseEstimator defines the interface for keypoint estimation implementations.
type PoseEstimator interface {
	// Estimate returns keypoint locations for the person inside box.
	// A nil map means the person is too small to estimate.
	Estimate(ctx context.Context, img *geometry.Image, box geometry.Box) (map[string]geometry.Position, error)

	// Close releases any resources held by the estimator.
	Close() error
}

// Config holds configuration options for person detection.
type Config struct {
	// InputWidth and InputHeight are the detector model input size.
	InputWidth  int
	InputHeight int

	// Classes maps model label indices to object types.
	Classes []string

	// MinConfidence is the minimum person detection score (0.0-1.0).
	MinConfidence float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		InputWidth:    640,
		InputHeight:   640,
		Classes:       []string{frames.TypePerson, frames.TypeBarbellPlates},
		MinConfidence: 0.2,
	}
}

// PoseConfig holds configuration options for pose estimation.
type PoseConfig struct {
	InputWidth  int
	InputHeight int

	// Padding expands the person box before cropping.
	Padding float64

	// MinBoxPixels skips estimation for boxes narrower or shorter than this.
	MinBoxPixels float64

	// Keypoints names the model outputs in order.
	Keypoints []string

	// Mean and Std normalize the crop per channel.
	Mean [geometry.Channels]float32
	Std  [geometry.Channels]float32
}

// DefaultPoseConfig returns a PoseConfig with sensible default values.
func DefaultPoseConfig() PoseConfig {
	return PoseConfig{
		InputWidth:   192,
		InputHeight:  256,
		Padding:      1.25,
		MinBoxPixels: 20,
		Keypoints:    frames.KeypointNames[:frames.COCOKeypointCount],
		Mean:         geometry.CLIPMean,
		Std:          geometry.CLIPStd,
	}
}

// FindPeople keeps person detections scoring at least minConfidence, best first.
func FindPeople(detections []Detection, minConfidence float64) []Detection {
	var people []Detection
	for _, d := range detections {
		if d.Label == frames.TypePerson && d.Confidence >= minConfidence {
			people = append(people, d)
		}
	}
	sort.SliceStable(people, func(i, j int) bool {
		return people[i].Confidence > people[j].Confidence
	})
	return people
}
