package tracker

import (
	"fmt"
	"math"

	"github.com/ayusman/reptrack/internal/geometry"
	"github.com/ayusman/reptrack/internal/inference"
)

// roundHalfUp rounds .5 toward positive infinity for negative values too.
func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}

// sampleTarget cuts a square region of side ceil(sqrt(w*h)*factor) centered
// on the target, zero-pads the parts that fall outside the image and resizes
// it to outputSize. It returns the patch and outputSize/side.
func sampleTarget(img *geometry.Image, target geometry.Rect, factor float64, outputSize int) (*geometry.Image, float64, error) {
	cropSize := math.Ceil(math.Sqrt(target.W*target.H) * factor)
	if !(cropSize >= 1) {
		return nil, 0, fmt.Errorf("%w: %.1fx%.1f", ErrBoxTooSmall, target.W, target.H)
	}

	x1 := roundHalfUp(target.X + 0.5*target.W - cropSize*0.5)
	x2 := x1 + cropSize
	y1 := roundHalfUp(target.Y + 0.5*target.H - cropSize*0.5)
	y2 := y1 + cropSize

	x1Pad := math.Max(0, -x1)
	x2Pad := math.Max(x2-float64(img.Width)+1, 0)
	y1Pad := math.Max(0, -y1)
	y2Pad := math.Max(y2-float64(img.Height)+1, 0)

	cropped, err := geometry.Crop(img,
		int(x1+x1Pad), int(y1+y1Pad),
		int(x2-x2Pad), int(y2-y2Pad))
	if err != nil {
		return nil, 0, fmt.Errorf("target region outside image: %w", err)
	}

	padded := geometry.CopyMakeBorder(cropped, int(y1Pad), int(y2Pad), int(x1Pad), int(x2Pad))
	resized, err := geometry.Resize(padded, outputSize, outputSize)
	if err != nil {
		return nil, 0, err
	}

	return resized, float64(outputSize) / cropSize, nil
}

// sampleTensor samples the target and normalizes it into a model input.
func sampleTensor(img *geometry.Image, target geometry.Rect, factor float64, outputSize int) (inference.Tensor, float64, error) {
	patch, resizeFactor, err := sampleTarget(img, target, factor, outputSize)
	if err != nil {
		return inference.Tensor{}, 0, err
	}
	normalized := geometry.Normalize(patch, geometry.CLIPMean, geometry.CLIPStd)
	return inference.ImageTensor(normalized), resizeFactor, nil
}

// mapBoxBack moves a box predicted in search-crop pixels (cx, cy, w, h) back
// into image pixels, using the previous target center as the crop center.
func mapBoxBack(cx, cy, w, h float64, prev geometry.Rect, searchSize int, resizeFactor float64) geometry.Rect {
	halfSide := 0.5 * float64(searchSize) / resizeFactor
	cxReal := cx + (prev.CenterX() - halfSide)
	cyReal := cy + (prev.CenterY() - halfSide)
	return geometry.Rect{X: cxReal - 0.5*w, Y: cyReal - 0.5*h, W: w, H: h}
}
