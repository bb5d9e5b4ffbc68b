package detector

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/ayusman/reptrack/internal/frames"
	"github.com/ayusman/reptrack/internal/geometry"
	"github.com/ayusman/reptrack/internal/inference"
)

const epsilon = 1e-3

func TestYOLOXDetector_MapsBoxesToImage(t *testing.T) {
	img := geometry.NewBlankImage(200, 100)
	config := DefaultConfig()

	// Reproduce the detector's crop to place boxes in model space.
	crop, err := geometry.CenterCrop(img, [4]float64{0, 0, 199, 99}, config.InputWidth, config.InputHeight, 1.0)
	if err != nil {
		t.Fatalf("CenterCrop() error = %v", err)
	}
	tl := crop.Transform.Forward(geometry.NewPosition(0.25, 0.25))
	br := crop.Transform.Forward(geometry.NewPosition(0.75, 0.75))

	session := inference.NewMockSession()
	session.QueueOutputs(map[string]inference.Tensor{
		"dets": {Shape: []int{1, 3, 5}, Data: []float32{
			float32(tl.X), float32(tl.Y), float32(br.X), float32(br.Y), 0.9,
			0, 0, 10, 10, 0.4,
			0, 0, 10, 10, 0.3,
		}},
		"labels": {Shape: []int{1, 3}, Data: []float32{0, 1, 7}},
	})

	d := NewYOLOXDetector(session, config)
	dets, err := d.Detect(context.Background(), img)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(dets) != 3 {
		t.Fatalf("Detect() returned %d detections, want 3", len(dets))
	}

	got := dets[0]
	if got.Label != frames.TypePerson {
		t.Errorf("label = %q, want person", got.Label)
	}
	if math.Abs(got.Box.TopLeft.X-0.25) > epsilon || math.Abs(got.Box.BottomRight.Y-0.75) > epsilon {
		t.Errorf("box = %+v, want (0.25,0.25)-(0.75,0.75)", got.Box)
	}
	if math.Abs(got.Box.TopLeft.Confidence-0.9) > epsilon {
		t.Errorf("corner confidence = %f, want 0.9", got.Box.TopLeft.Confidence)
	}
	if dets[1].Label != frames.TypeBarbellPlates || dets[2].Label != "class_7" {
		t.Errorf("labels = %q, %q", dets[1].Label, dets[2].Label)
	}

	input := session.Calls()[0]["input"]
	if err := input.ExpectShape(1, 3, 640, 640); err != nil {
		t.Errorf("model input: %v", err)
	}
}

func TestYOLOXDetector_BadShape(t *testing.T) {
	session := inference.NewMockSession()
	session.QueueOutputs(map[string]inference.Tensor{
		"dets":   {Shape: []int{1, 1, 4}, Data: []float32{0, 0, 1, 1}},
		"labels": {Shape: []int{1, 1}, Data: []float32{0}},
	})

	d := NewYOLOXDetector(session, DefaultConfig())
	if _, err := d.Detect(context.Background(), geometry.NewBlankImage(64, 64)); !errors.Is(err, inference.ErrShape) {
		t.Errorf("Detect() error = %v, want ErrShape", err)
	}
}

func TestYOLOXDetector_SessionError(t *testing.T) {
	session := inference.NewMockSession()
	boom := errors.New("backend down")
	session.QueueError(boom)

	d := NewYOLOXDetector(session, DefaultConfig())
	if _, err := d.Detect(context.Background(), geometry.NewBlankImage(64, 64)); !errors.Is(err, boom) {
		t.Errorf("Detect() error = %v, want %v", err, boom)
	}
}

func poseOutputs(k int, points []geometry.Point) map[string]inference.Tensor {
	kp := make([]float32, 0, 2*k)
	scores := make([]float32, k)
	for i := 0; i < k; i++ {
		p := points[i%len(points)]
		kp = append(kp, float32(p.X), float32(p.Y))
		scores[i] = 0.8
	}
	return map[string]inference.Tensor{
		"keypoints": {Shape: []int{1, 1, k, 2}, Data: kp},
		"scores":    {Shape: []int{1, 1, k}, Data: scores},
	}
}

func TestRTMPoseEstimator_Estimate(t *testing.T) {
	img := geometry.NewBlankImage(200, 200)
	config := DefaultPoseConfig()
	box := geometry.NewBox(0.25, 0.1, 0.75, 0.9)

	crop, err := geometry.CenterCrop(img, [4]float64{50, 20, 150, 180}, config.InputWidth, config.InputHeight, config.Padding)
	if err != nil {
		t.Fatalf("CenterCrop() error = %v", err)
	}
	nose := crop.Transform.Forward(geometry.NewPosition(0.5, 0.15))

	session := inference.NewMockSession()
	session.QueueOutputs(poseOutputs(frames.COCOKeypointCount, []geometry.Point{nose}))

	e := NewRTMPoseEstimator(session, config)
	kps, err := e.Estimate(context.Background(), img, box)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if len(kps) != frames.COCOKeypointCount {
		t.Fatalf("Estimate() returned %d keypoints, want %d", len(kps), frames.COCOKeypointCount)
	}
	got := kps[frames.Nose]
	if math.Abs(got.X-0.5) > epsilon || math.Abs(got.Y-0.15) > epsilon {
		t.Errorf("nose = %+v, want (0.5, 0.15)", got)
	}
	if math.Abs(got.Confidence-0.8) > epsilon {
		t.Errorf("nose confidence = %f, want 0.8", got.Confidence)
	}
}

func TestRTMPoseEstimator_InputNormalization(t *testing.T) {
	tests := []struct {
		name      string
		mean, std [geometry.Channels]float32
	}{
		{"clip", geometry.CLIPMean, geometry.CLIPStd},
		{"imagenet", geometry.ImageNetMean, geometry.ImageNetStd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultPoseConfig()
			config.Mean, config.Std = tt.mean, tt.std

			session := inference.NewMockSession()
			session.QueueOutputs(poseOutputs(frames.COCOKeypointCount, []geometry.Point{{X: 1, Y: 1}}))
			e := NewRTMPoseEstimator(session, config)
			if _, err := e.Estimate(context.Background(), geometry.NewBlankImage(200, 200), geometry.NewBox(0.25, 0.1, 0.75, 0.9)); err != nil {
				t.Fatalf("Estimate() error = %v", err)
			}

			input := session.Calls()[0]["input"]
			plane := config.InputWidth * config.InputHeight
			for c := 0; c < geometry.Channels; c++ {
				want := -tt.mean[c] / tt.std[c]
				if got := input.Data[c*plane]; math.Abs(float64(got-want)) > epsilon {
					t.Errorf("channel %d = %f, want %f", c, got, want)
				}
			}
		})
	}
}

func TestRTMPoseEstimator_Errors(t *testing.T) {
	img := geometry.NewBlankImage(200, 200)

	t.Run("pixel box rejected", func(t *testing.T) {
		e := NewRTMPoseEstimator(inference.NewMockSession(), DefaultPoseConfig())
		_, err := e.Estimate(context.Background(), img, geometry.NewBox(10, 10, 150, 150))
		if !errors.Is(err, ErrBoxNotNormalized) {
			t.Errorf("Estimate() error = %v, want ErrBoxNotNormalized", err)
		}
	})

	t.Run("tiny box skipped", func(t *testing.T) {
		session := inference.NewMockSession()
		e := NewRTMPoseEstimator(session, DefaultPoseConfig())
		kps, err := e.Estimate(context.Background(), img, geometry.NewBox(0.5, 0.5, 0.55, 0.9))
		if err != nil || kps != nil {
			t.Errorf("Estimate() = %v, %v, want nil, nil", kps, err)
		}
		if len(session.Calls()) != 0 {
			t.Error("model should not run for tiny boxes")
		}
	})

	t.Run("wrong keypoint count", func(t *testing.T) {
		session := inference.NewMockSession()
		session.QueueOutputs(poseOutputs(5, []geometry.Point{{X: 1, Y: 1}}))
		e := NewRTMPoseEstimator(session, DefaultPoseConfig())
		_, err := e.Estimate(context.Background(), img, geometry.NewBox(0.2, 0.2, 0.8, 0.8))
		if !errors.Is(err, inference.ErrShape) {
			t.Errorf("Estimate() error = %v, want ErrShape", err)
		}
	})
}

func TestFindPeople(t *testing.T) {
	dets := []Detection{
		{Label: frames.TypePerson, Confidence: 0.3},
		{Label: frames.TypeBarbellPlates, Confidence: 0.99},
		{Label: frames.TypePerson, Confidence: 0.1},
		{Label: frames.TypePerson, Confidence: 0.9},
	}

	people := FindPeople(dets, 0.2)
	if len(people) != 2 {
		t.Fatalf("FindPeople() returned %d, want 2", len(people))
	}
	if people[0].Confidence != 0.9 || people[1].Confidence != 0.3 {
		t.Errorf("FindPeople() order = %v, %v", people[0].Confidence, people[1].Confidence)
	}
}
