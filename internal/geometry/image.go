package geometry

import (
	"errors"
	"fmt"
)

// Channels is the number of color channels carried by an Image.
const Channels = 3

// ErrInvalidImage is returned when image dimensions and buffer length disagree.
var ErrInvalidImage = errors.New("invalid image")

// Image is an RGB pixel buffer stored interleaved (height, width, channel).
// Values are either 0-255 or already normalized floats.
type Image struct {
	Width  int
	Height int
	pixels []float32
}

// NewImage wraps an interleaved RGB buffer. The buffer is not copied.
func NewImage(width, height int, pixels []float32) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: size %dx%d", ErrInvalidImage, width, height)
	}
	if len(pixels) != width*height*Channels {
		return nil, fmt.Errorf("%w: buffer has %d values, want %d", ErrInvalidImage, len(pixels), width*height*Channels)
	}
	return &Image{Width: width, Height: height, pixels: pixels}, nil
}

// NewBlankImage returns a zero-filled image. Dimensions of zero are allowed so
// that empty crops can be represented.
func NewBlankImage(width, height int) *Image {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Image{Width: width, Height: height, pixels: make([]float32, width*height*Channels)}
}

// At returns the value of channel c at pixel (x, y).
func (img *Image) At(x, y, c int) float32 {
	return img.pixels[(y*img.Width+x)*Channels+c]
}

// Set writes the value of channel c at pixel (x, y).
func (img *Image) Set(x, y, c int, v float32) {
	img.pixels[(y*img.Width+x)*Channels+c] = v
}

// Pixels exposes the interleaved buffer.
func (img *Image) Pixels() []float32 {
	return img.pixels
}

// Data returns a copy of the pixel buffer. With channelsFirst the copy is laid
// out planar (channel, height, width) as expected by NCHW models.
func (img *Image) Data(channelsFirst bool) []float32 {
	out := make([]float32, len(img.pixels))
	if !channelsFirst {
		copy(out, img.pixels)
		return out
	}
	plane := img.Width * img.Height
	for i := 0; i < plane; i++ {
		for c := 0; c < Channels; c++ {
			out[c*plane+i] = img.pixels[i*Channels+c]
		}
	}
	return out
}

// Clone returns a deep copy of the image.
func (img *Image) Clone() *Image {
	out := make([]float32, len(img.pixels))
	copy(out, img.pixels)
	return &Image{Width: img.Width, Height: img.Height, pixels: out}
}
