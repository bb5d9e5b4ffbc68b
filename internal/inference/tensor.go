// Package inference defines the tensor type and the session interface through
// which detectors and the tracker run neural-network models.
package inference

import (
	"errors"
	"fmt"
	"math"

	"github.com/ayusman/reptrack/internal/geometry"
)

// ErrShape is returned when a tensor does not have the expected shape.
var ErrShape = errors.New("unexpected tensor shape")

// Tensor is a dense float32 tensor stored row-major.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// NewTensor validates that data fills shape exactly.
func NewTensor(shape []int, data []float32) (Tensor, error) {
	if n := shapeSize(shape); n != len(data) {
		return Tensor{}, fmt.Errorf("%w: shape %v needs %d values, got %d", ErrShape, shape, n, len(data))
	}
	return Tensor{Shape: append([]int(nil), shape...), Data: data}, nil
}

// ImageTensor lays an image out as a [1,3,H,W] planar tensor.
func ImageTensor(img *geometry.Image) Tensor {
	return Tensor{
		Shape: []int{1, geometry.Channels, img.Height, img.Width},
		Data:  img.Data(true),
	}
}

// Len returns the number of elements.
func (t Tensor) Len() int {
	return len(t.Data)
}

// Reshape returns a view of t with a new shape holding the same number of elements.
func (t Tensor) Reshape(shape ...int) (Tensor, error) {
	if n := shapeSize(shape); n != len(t.Data) {
		return Tensor{}, fmt.Errorf("%w: cannot reshape %v to %v", ErrShape, t.Shape, shape)
	}
	return Tensor{Shape: shape, Data: t.Data}, nil
}

// ExpectShape checks the tensor dimensions. A negative expected dimension matches any size.
func (t Tensor) ExpectShape(shape ...int) error {
	if len(shape) != len(t.Shape) {
		return fmt.Errorf("%w: got %v, want %v", ErrShape, t.Shape, shape)
	}
	for i, d := range shape {
		if d >= 0 && t.Shape[i] != d {
			return fmt.Errorf("%w: got %v, want %v", ErrShape, t.Shape, shape)
		}
	}
	if shapeSize(t.Shape) != len(t.Data) {
		return fmt.Errorf("%w: shape %v holds %d values", ErrShape, t.Shape, len(t.Data))
	}
	return nil
}

// At returns the element at the given multi-dimensional index.
func (t Tensor) At(idx ...int) float32 {
	offset := 0
	for i, v := range idx {
		offset = offset*t.Shape[i] + v
	}
	return t.Data[offset]
}

func shapeSize(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		if d < 0 {
			return -1
		}
		n *= d
	}
	return n
}

// Sigmoid is the logistic function.
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
