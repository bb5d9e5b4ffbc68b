// Package tracker implements a single-object online visual tracker driven by
// a MixFormer-style template matching model.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ayusman/reptrack/internal/detector"
	"github.com/ayusman/reptrack/internal/geometry"
	"github.com/ayusman/reptrack/internal/inference"
)

// Model input and output names.
const (
	InputTemplate       = "template"
	InputOnlineTemplate = "online_template"
	InputSearch         = "search"
	OutputBoxes         = "pred_boxes"
	OutputScores        = "pred_scores"
)

var (
	// ErrNotInitialized is returned by Update before Init has succeeded.
	ErrNotInitialized = errors.New("tracker not initialized")

	// ErrBoxTooSmall is returned when a target box yields an empty crop.
	ErrBoxTooSmall = errors.New("target box too small")
)

// Config holds the tracker parameters.
type Config struct {
	// TemplateFactor scales the target side to get the template crop side.
	TemplateFactor float64

	// TemplateSize is the side of the template model input in pixels.
	TemplateSize int

	// SearchFactor scales the target side to get the search crop side.
	SearchFactor float64

	// SearchSize is the side of the search model input in pixels.
	SearchSize int

	// UpdateInterval is the number of frames between online template refreshes.
	UpdateInterval int

	// MaxScoreDecay multiplies the best online score every frame.
	MaxScoreDecay float64

	// MinConfidence is the score below which a frame counts as a failure.
	MinConfidence float64

	// MaxConsecutiveFailures is the number of failed frames after which the target is lost.
	MaxConsecutiveFailures int

	// Margin is the minimum number of pixels of the box kept inside the image.
	Margin float64
}

// DefaultConfig returns a Config with the parameters the model was trained for.
func DefaultConfig() Config {
	return Config{
		TemplateFactor:         2.0,
		TemplateSize:           112,
		SearchFactor:           4.5,
		SearchSize:             224,
		UpdateInterval:         10,
		MaxScoreDecay:          1.0,
		MinConfidence:          0.5,
		MaxConsecutiveFailures: 10,
		Margin:                 10,
	}
}

// Result is the outcome of one Update.
// Detection is nil when the frame failed the confidence check.
type Result struct {
	Detection  *detector.Detection
	IsTracking bool
}

// Tracker follows one target across frames. It is not safe for concurrent use.
type Tracker struct {
	session inference.Session
	config  Config

	initialized bool
	label       string
	box         geometry.Rect
	frameID     int
	failures    int

	template          inference.Tensor
	onlineTemplate    inference.Tensor
	onlineMaxTemplate inference.Tensor
	maxPredScore      float64
}

// New creates a tracker that runs the given model session.
func New(session inference.Session, config Config) *Tracker {
	return &Tracker{
		session:      session,
		config:       config,
		maxPredScore: -1,
	}
}

// Init starts tracking the target inside box, given in normalized x1,y1,x2,y2.
func (t *Tracker) Init(img *geometry.Image, box geometry.Box, label string) error {
	target := box.Denormalize(img.Width, img.Height)

	template, _, err := sampleTensor(img, target, t.config.TemplateFactor, t.config.TemplateSize)
	if err != nil {
		return fmt.Errorf("sample template: %w", err)
	}

	t.initialized = true
	t.label = label
	t.box = target
	t.frameID = 0
	t.failures = 0
	t.template = template
	t.onlineTemplate = template
	t.onlineMaxTemplate = template
	t.maxPredScore = -1

	return nil
}

// IsTracking reports whether the target is still considered present.
func (t *Tracker) IsTracking() bool {
	return t.initialized && t.failures < t.config.MaxConsecutiveFailures
}

// Box returns the current target box in image pixels.
func (t *Tracker) Box() geometry.Rect {
	return t.box
}

// FrameID returns the number of frames processed since Init.
func (t *Tracker) FrameID() int {
	return t.frameID
}

// Label returns the label given to Init.
func (t *Tracker) Label() string {
	return t.label
}

// Update locates the target in the next frame.
// A frame whose score is under MinConfidence leaves the box where it was and
// returns a nil Detection; after MaxConsecutiveFailures such frames the target
// is lost and Update returns without running the model until Init is called.
func (t *Tracker) Update(ctx context.Context, img *geometry.Image) (Result, error) {
	if !t.initialized {
		return Result{}, ErrNotInitialized
	}
	if !t.IsTracking() {
		return Result{IsTracking: false}, nil
	}

	search, resizeFactor, err := sampleTensor(img, t.box, t.config.SearchFactor, t.config.SearchSize)
	if err != nil {
		return Result{}, fmt.Errorf("sample search region: %w", err)
	}

	outputs, err := t.session.Run(ctx, map[string]inference.Tensor{
		InputTemplate:       t.template,
		InputOnlineTemplate: t.onlineTemplate,
		InputSearch:         search,
	})
	if err != nil {
		return Result{}, fmt.Errorf("run tracker model: %w", err)
	}

	score, predicted, err := t.decode(outputs, resizeFactor)
	if err != nil {
		return Result{}, err
	}
	clipped := predicted.Clip(img.Width, img.Height, t.config.Margin)

	// Non-finite model output is treated as a failed frame.
	if math.IsNaN(score) || math.IsInf(score, 0) || !clipped.IsFinite() {
		score = 0
	}

	var candidate *inference.Tensor
	decayed := t.maxPredScore * t.config.MaxScoreDecay
	if score > t.config.MinConfidence && score > decayed {
		tmpl, _, err := sampleTensor(img, clipped, t.config.TemplateFactor, t.config.TemplateSize)
		if err != nil {
			return Result{}, fmt.Errorf("sample online template: %w", err)
		}
		candidate = &tmpl
	}

	t.frameID++
	t.maxPredScore = decayed
	if candidate != nil {
		t.onlineMaxTemplate = *candidate
		t.maxPredScore = score
	}

	if score < t.config.MinConfidence {
		t.failures++
		return Result{IsTracking: t.IsTracking()}, nil
	}

	t.failures = 0
	t.box = clipped

	if t.config.UpdateInterval > 0 && t.frameID%t.config.UpdateInterval == 0 {
		t.onlineTemplate = t.onlineMaxTemplate
		t.maxPredScore = -1
		t.onlineMaxTemplate = t.template
	}

	return Result{
		Detection: &detector.Detection{
			Label:      t.label,
			Box:        clipped.Normalize(img.Width, img.Height, score),
			Confidence: score,
		},
		IsTracking: true,
	}, nil
}

// Close releases the model session.
func (t *Tracker) Close() error {
	return t.session.Close()
}

// decode turns the raw model outputs into a score and an image-space box.
func (t *Tracker) decode(outputs map[string]inference.Tensor, resizeFactor float64) (float64, geometry.Rect, error) {
	rawBoxes, err := inference.Output(outputs, OutputBoxes)
	if err != nil {
		return 0, geometry.Rect{}, err
	}
	boxes, err := rawBoxes.Reshape(4)
	if err != nil {
		return 0, geometry.Rect{}, fmt.Errorf("decode boxes: %w", err)
	}

	rawScores, err := inference.Output(outputs, OutputScores)
	if err != nil {
		return 0, geometry.Rect{}, err
	}
	scores, err := rawScores.Reshape(1)
	if err != nil {
		return 0, geometry.Rect{}, fmt.Errorf("decode scores: %w", err)
	}

	scale := float64(t.config.SearchSize) / resizeFactor
	cx := float64(boxes.Data[0]) * scale
	cy := float64(boxes.Data[1]) * scale
	w := float64(boxes.Data[2]) * scale
	h := float64(boxes.Data[3]) * scale

	return inference.Sigmoid(float64(scores.Data[0])), mapBoxBack(cx, cy, w, h, t.box, t.config.SearchSize, resizeFactor), nil
}
