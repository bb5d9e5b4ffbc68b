// Package geometry provides the coordinate types and image transforms shared by
// the detectors, the tracker and the movement analyzer.
package geometry

import "math"

// Position is a 2D point with a detection confidence.
// Coordinates are normalized to [0,1] of the source image unless stated otherwise.
type Position struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// NewPosition returns a Position with full confidence.
func NewPosition(x, y float64) Position {
	return Position{X: x, Y: y, Confidence: 1.0}
}

// Interpolate returns the point at fraction factor between p and other.
// The confidence of the result is the mean of both confidences.
func (p Position) Interpolate(other Position, factor float64) Position {
	return Position{
		X:          p.X + (other.X-p.X)*factor,
		Y:          p.Y + (other.Y-p.Y)*factor,
		Confidence: (p.Confidence + other.Confidence) / 2,
	}
}

// Distance returns the Euclidean distance between two positions.
func (p Position) Distance(other Position) float64 {
	return math.Hypot(p.X-other.X, p.Y-other.Y)
}

// IsFinite reports whether both coordinates are finite numbers.
func (p Position) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Box is an axis-aligned rectangle given by two corners.
// Corner ordering is not enforced.
type Box struct {
	TopLeft     Position `json:"top_left"`
	BottomRight Position `json:"bottom_right"`
}

// NewBox builds a Box from x1,y1,x2,y2 with full confidence.
func NewBox(x1, y1, x2, y2 float64) Box {
	return Box{TopLeft: NewPosition(x1, y1), BottomRight: NewPosition(x2, y2)}
}

// Width returns the horizontal extent of the box.
func (b Box) Width() float64 {
	return b.BottomRight.X - b.TopLeft.X
}

// Height returns the vertical extent of the box.
func (b Box) Height() float64 {
	return b.BottomRight.Y - b.TopLeft.Y
}

// Center returns the midpoint of the box.
func (b Box) Center() Position {
	return b.TopLeft.Interpolate(b.BottomRight, 0.5)
}

// Interpolate interpolates both corners.
func (b Box) Interpolate(other Box, factor float64) Box {
	return Box{
		TopLeft:     b.TopLeft.Interpolate(other.TopLeft, factor),
		BottomRight: b.BottomRight.Interpolate(other.BottomRight, factor),
	}
}

// Denormalize converts a normalized box to a pixel Rect on an image of the given size.
func (b Box) Denormalize(width, height int) Rect {
	w, h := float64(width), float64(height)
	return Rect{
		X: b.TopLeft.X * w,
		Y: b.TopLeft.Y * h,
		W: (b.BottomRight.X - b.TopLeft.X) * w,
		H: (b.BottomRight.Y - b.TopLeft.Y) * h,
	}
}

// IoU returns the intersection over union of two boxes.
func (b Box) IoU(other Box) float64 {
	x1 := math.Max(b.TopLeft.X, other.TopLeft.X)
	y1 := math.Max(b.TopLeft.Y, other.TopLeft.Y)
	x2 := math.Min(b.BottomRight.X, other.BottomRight.X)
	y2 := math.Min(b.BottomRight.Y, other.BottomRight.Y)
	inter := math.Max(0, x2-x1) * math.Max(0, y2-y1)
	union := b.Width()*b.Height() + other.Width()*other.Height() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Rect is a pixel-space rectangle in x, y, width, height form.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// CenterX returns the horizontal center of the rect.
func (r Rect) CenterX() float64 {
	return r.X + 0.5*r.W
}

// CenterY returns the vertical center of the rect.
func (r Rect) CenterY() float64 {
	return r.Y + 0.5*r.H
}

// Normalize converts the rect to a normalized Box, stamping both corners with confidence.
func (r Rect) Normalize(width, height int, confidence float64) Box {
	w, h := float64(width), float64(height)
	return Box{
		TopLeft:     Position{X: r.X / w, Y: r.Y / h, Confidence: confidence},
		BottomRight: Position{X: (r.X + r.W) / w, Y: (r.Y + r.H) / h, Confidence: confidence},
	}
}

// Clip constrains the rect to the image so that at least margin pixels remain
// visible in each direction. The margin shrinks to fit images smaller than it.
func (r Rect) Clip(width, height int, margin float64) Rect {
	w, h := float64(width), float64(height)
	margin = min(margin, w, h)
	x1 := math.Min(math.Max(0, r.X), w-margin)
	x2 := math.Min(math.Max(margin, r.X+r.W), w)
	y1 := math.Min(math.Max(0, r.Y), h-margin)
	y2 := math.Min(math.Max(margin, r.Y+r.H), h)
	return Rect{
		X: x1,
		Y: y1,
		W: math.Max(margin, x2-x1),
		H: math.Max(margin, y2-y1),
	}
}

// IsFinite reports whether every component is a finite number.
func (r Rect) IsFinite() bool {
	for _, v := range [4]float64{r.X, r.Y, r.W, r.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
