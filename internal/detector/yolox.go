package detector

import (
	"context"
	"fmt"

	"github.com/ayusman/reptrack/internal/geometry"
	"github.com/ayusman/reptrack/internal/inference"
)

// YOLOX model tensor names.
const (
	yoloxInput  = "input"
	yoloxDets   = "dets"
	yoloxLabels = "labels"
)

// YOLOXDetector implements Detector with a YOLOX model that emits boxes
// already reduced by non-maximum suppression.
type YOLOXDetector struct {
	session inference.Session
	config  Config
}

// NewYOLOXDetector creates a detector running on session.
func NewYOLOXDetector(session inference.Session, config Config) *YOLOXDetector {
	return &YOLOXDetector{session: session, config: config}
}

// Detect runs the model on the whole image.
func (d *YOLOXDetector) Detect(ctx context.Context, img *geometry.Image) ([]Detection, error) {
	whole := [4]float64{0, 0, float64(img.Width - 1), float64(img.Height - 1)}
	crop, err := geometry.CenterCrop(img, whole, d.config.InputWidth, d.config.InputHeight, 1.0)
	if err != nil {
		return nil, fmt.Errorf("prepare detector input: %w", err)
	}

	outputs, err := d.session.Run(ctx, map[string]inference.Tensor{
		yoloxInput: inference.ImageTensor(crop.Image),
	})
	if err != nil {
		return nil, fmt.Errorf("run detector model: %w", err)
	}

	dets, err := inference.Output(outputs, yoloxDets)
	if err != nil {
		return nil, err
	}
	if err := dets.ExpectShape(-1, -1, 5); err != nil {
		return nil, fmt.Errorf("detector boxes: %w", err)
	}
	labels, err := inference.Output(outputs, yoloxLabels)
	if err != nil {
		return nil, err
	}
	batch, n := dets.Shape[0], dets.Shape[1]
	if err := labels.ExpectShape(batch, n); err != nil {
		return nil, fmt.Errorf("detector labels: %w", err)
	}

	detections := make([]Detection, 0, batch*n)
	for b := 0; b < batch; b++ {
		for i := 0; i < n; i++ {
			score := float64(dets.At(b, i, 4))
			box := crop.Transform.InvertBox(
				float64(dets.At(b, i, 0)), float64(dets.At(b, i, 1)),
				float64(dets.At(b, i, 2)), float64(dets.At(b, i, 3)),
			)
			box.TopLeft.Confidence = score
			box.BottomRight.Confidence = score

			detections = append(detections, Detection{
				Label:      d.label(int(labels.At(b, i))),
				Box:        box,
				Confidence: score,
			})
		}
	}
	return detections, nil
}

func (d *YOLOXDetector) label(index int) string {
	if index < 0 || index >= len(d.config.Classes) {
		return fmt.Sprintf("class_%d", index)
	}
	return d.config.Classes[index]
}

// Close releases the model session.
func (d *YOLOXDetector) Close() error {
	return d.session.Close()
}
