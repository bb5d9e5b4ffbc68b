package detector

import (
	"context"
	"fmt"

	"github.com/ayusman/reptrack/internal/geometry"
	"github.com/ayusman/reptrack/internal/inference"
)

// Pose model tensor names.
const (
	poseInput     = "input"
	poseKeypoints = "keypoints"
	poseScores    = "scores"
)

// maxNormalizedRange is the largest box side still accepted as normalized.
const maxNormalizedRange = 2.0

// RTMPoseEstimator implements PoseEstimator with a top-down keypoint model.
type RTMPoseEstimator struct {
	session inference.Session
	config  PoseConfig
}

// NewRTMPoseEstimator creates an estimator running on session.
func NewRTMPoseEstimator(session inference.Session, config PoseConfig) *RTMPoseEstimator {
	return &RTMPoseEstimator{session: session, config: config}
}

// Estimate crops the person and maps the predicted keypoints back to the image.
func (e *RTMPoseEstimator) Estimate(ctx context.Context, img *geometry.Image, box geometry.Box) (map[string]geometry.Position, error) {
	if box.Width() > maxNormalizedRange || box.Height() > maxNormalizedRange {
		return nil, ErrBoxNotNormalized
	}

	w, h := float64(img.Width), float64(img.Height)
	if box.Width()*w < e.config.MinBoxPixels || box.Height()*h < e.config.MinBoxPixels {
		return nil, nil
	}

	pixels := [4]float64{box.TopLeft.X * w, box.TopLeft.Y * h, box.BottomRight.X * w, box.BottomRight.Y * h}
	crop, err := geometry.CenterCrop(img, pixels, e.config.InputWidth, e.config.InputHeight, e.config.Padding)
	if err != nil {
		return nil, fmt.Errorf("prepare pose input: %w", err)
	}
	normalized := geometry.Normalize(crop.Image, e.config.Mean, e.config.Std)

	outputs, err := e.session.Run(ctx, map[string]inference.Tensor{
		poseInput: inference.ImageTensor(normalized),
	})
	if err != nil {
		return nil, fmt.Errorf("run pose model: %w", err)
	}

	k := len(e.config.Keypoints)
	keypoints, err := inference.Output(outputs, poseKeypoints)
	if err != nil {
		return nil, err
	}
	if err := keypoints.ExpectShape(1, 1, k, 2); err != nil {
		return nil, fmt.Errorf("pose keypoints: %w", err)
	}
	scores, err := inference.Output(outputs, poseScores)
	if err != nil {
		return nil, err
	}
	if err := scores.ExpectShape(1, 1, k); err != nil {
		return nil, fmt.Errorf("pose scores: %w", err)
	}

	out := make(map[string]geometry.Position, k)
	for i, name := range e.config.Keypoints {
		p := crop.Transform.Invert(geometry.Point{
			X: float64(keypoints.At(0, 0, i, 0)),
			Y: float64(keypoints.At(0, 0, i, 1)),
		})
		p.Confidence = float64(scores.At(0, 0, i))
		out[name] = p
	}
	return out, nil
}

// Close releases the model session.
func (e *RTMPoseEstimator) Close() error {
	return e.session.Close()
}
