package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrDegenerateCrop is returned when a crop region or target has no area.
var ErrDegenerateCrop = errors.New("degenerate crop")

// Point is a location in crop (model input) pixel space.
type Point struct {
	X float64
	Y float64
}

// Transform maps crop pixel coordinates back to normalized source image
// coordinates. It is a plain value and safe to share.
type Transform struct {
	Scale        float64
	XOffset      float64
	YOffset      float64
	SourceWidth  int
	SourceHeight int
}

// Invert maps a crop-space point to a normalized source position.
func (t Transform) Invert(p Point) Position {
	return NewPosition(
		(p.X-t.XOffset)/t.Scale/float64(t.SourceWidth),
		(p.Y-t.YOffset)/t.Scale/float64(t.SourceHeight),
	)
}

// Forward maps a normalized source position into crop space.
func (t Transform) Forward(pos Position) Point {
	return Point{
		X: pos.X*float64(t.SourceWidth)*t.Scale + t.XOffset,
		Y: pos.Y*float64(t.SourceHeight)*t.Scale + t.YOffset,
	}
}

// InvertBox maps the two corners of a crop-space box back to the source image.
func (t Transform) InvertBox(x1, y1, x2, y2 float64) Box {
	return Box{
		TopLeft:     t.Invert(Point{X: x1, Y: y1}),
		BottomRight: t.Invert(Point{X: x2, Y: y2}),
	}
}

// CenterCropResult holds a model-input crop and the transform to undo it.
type CenterCropResult struct {
	Image     *Image
	Transform Transform
}

// ScaleBox expands a pixel box (x1, y1, x2, y2) symmetrically about its
// center by scale and clamps it to the image.
func ScaleBox(box [4]float64, scale float64, imgW, imgH int) [4]float64 {
	cx := (box[0] + box[2]) / 2
	cy := (box[1] + box[3]) / 2
	halfW := (box[2] - box[0]) * scale / 2
	halfH := (box[3] - box[1]) * scale / 2
	return [4]float64{
		math.Max(0, cx-halfW),
		math.Max(0, cy-halfH),
		math.Min(float64(imgW), cx+halfW),
		math.Min(float64(imgH), cy+halfH),
	}
}

// CenterCrop produces a targetW x targetH image holding the region around box
// (pixel x1, y1, x2, y2, first expanded by padding) at a uniform scale that
// fits the target. Target pixels that sample outside the region are zero.
func CenterCrop(img *Image, box [4]float64, targetW, targetH int, padding float64) (CenterCropResult, error) {
	if targetW <= 0 || targetH <= 0 {
		return CenterCropResult{}, fmt.Errorf("%w: target %dx%d", ErrDegenerateCrop, targetW, targetH)
	}
	region := ScaleBox(box, padding, img.Width, img.Height)
	cropW := region[2] - region[0]
	cropH := region[3] - region[1]
	if cropW <= 0 || cropH <= 0 {
		return CenterCropResult{}, fmt.Errorf("%w: region %.1fx%.1f", ErrDegenerateCrop, cropW, cropH)
	}

	scale := math.Min(float64(targetW)/cropW, float64(targetH)/cropH)
	cx := region[0] + cropW/2
	cy := region[1] + cropH/2
	halfW := float64(targetW) / 2
	halfH := float64(targetH) / 2

	out := NewBlankImage(targetW, targetH)
	for y := 0; y < targetH; y++ {
		srcY := math.Round(cy + (float64(y)-halfH)/scale)
		if srcY < region[1] || srcY >= region[1]+cropH || srcY >= float64(img.Height) || srcY < 0 {
			continue
		}
		for x := 0; x < targetW; x++ {
			srcX := math.Round(cx + (float64(x)-halfW)/scale)
			if srcX < region[0] || srcX >= region[0]+cropW || srcX >= float64(img.Width) || srcX < 0 {
				continue
			}
			for c := 0; c < Channels; c++ {
				out.Set(x, y, c, img.At(int(srcX), int(srcY), c))
			}
		}
	}

	return CenterCropResult{
		Image: out,
		Transform: Transform{
			Scale:        scale,
			XOffset:      halfW - cx*scale,
			YOffset:      halfH - cy*scale,
			SourceWidth:  img.Width,
			SourceHeight: img.Height,
		},
	}, nil
}

// Crop returns the half-open pixel rectangle [x1,x2) x [y1,y2).
// The rectangle must lie inside the image.
func Crop(img *Image, x1, y1, x2, y2 int) (*Image, error) {
	if x1 < 0 || y1 < 0 || x2 > img.Width || y2 > img.Height || x2 < x1 || y2 < y1 {
		return nil, fmt.Errorf("%w: crop (%d,%d)-(%d,%d) outside %dx%d", ErrDegenerateCrop, x1, y1, x2, y2, img.Width, img.Height)
	}
	out := NewBlankImage(x2-x1, y2-y1)
	rowLen := out.Width * Channels
	for y := 0; y < out.Height; y++ {
		src := ((y+y1)*img.Width + x1) * Channels
		copy(out.pixels[y*rowLen:(y+1)*rowLen], img.pixels[src:src+rowLen])
	}
	return out, nil
}

// CopyMakeBorder surrounds the image with zero-valued borders.
func CopyMakeBorder(img *Image, top, bottom, left, right int) *Image {
	out := NewBlankImage(img.Width+left+right, img.Height+top+bottom)
	rowLen := img.Width * Channels
	for y := 0; y < img.Height; y++ {
		dst := ((y+top)*out.Width + left) * Channels
		copy(out.pixels[dst:dst+rowLen], img.pixels[y*rowLen:(y+1)*rowLen])
	}
	return out
}

// Resize scales the image with nearest-neighbour sampling, taking source
// pixel floor(x*srcW/dstW) for every destination column (same for rows).
func Resize(img *Image, width, height int) (*Image, error) {
	if width <= 0 || height <= 0 || img.Width == 0 || img.Height == 0 {
		return nil, fmt.Errorf("%w: resize %dx%d to %dx%d", ErrDegenerateCrop, img.Width, img.Height, width, height)
	}
	out := NewBlankImage(width, height)
	for y := 0; y < height; y++ {
		srcY := y * img.Height / height
		for x := 0; x < width; x++ {
			srcX := x * img.Width / width
			src := (srcY*img.Width + srcX) * Channels
			dst := (y*width + x) * Channels
			copy(out.pixels[dst:dst+Channels], img.pixels[src:src+Channels])
		}
	}
	return out, nil
}
