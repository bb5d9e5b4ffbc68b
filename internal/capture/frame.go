package capture

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/ayusman/reptrack/internal/geometry"
)

// Frame is one decoded video frame.
type Frame struct {
	Image *geometry.Image
	// Timestamp in milliseconds.
	Timestamp int64
}

// MatToImage converts an 8-bit BGR Mat into an RGB image with values in [0,255].
func MatToImage(mat gocv.Mat) (*geometry.Image, error) {
	if mat.Empty() {
		return nil, fmt.Errorf("%w: empty mat", geometry.ErrInvalidImage)
	}
	if mat.Type() != gocv.MatTypeCV8UC3 {
		return nil, fmt.Errorf("%w: mat type %v, want 8UC3", geometry.ErrInvalidImage, mat.Type())
	}

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(mat, &rgb, gocv.ColorBGRToRGB)

	raw := rgb.ToBytes()
	pixels := make([]float32, len(raw))
	for i, b := range raw {
		pixels[i] = float32(b)
	}
	return geometry.NewImage(rgb.Cols(), rgb.Rows(), pixels)
}

// ImageToMat converts an RGB image back to an 8-bit BGR Mat. Values are
// clamped to [0,255]. The caller must Close the returned Mat.
func ImageToMat(img *geometry.Image) (gocv.Mat, error) {
	src := img.Pixels()
	raw := make([]byte, len(src))
	for i, v := range src {
		raw[i] = uint8(min(max(v, 0), 255))
	}

	rgb, err := gocv.NewMatFromBytes(img.Height, img.Width, gocv.MatTypeCV8UC3, raw)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("build mat: %w", err)
	}
	defer rgb.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(rgb, &bgr, gocv.ColorRGBToBGR)
	return bgr, nil
}
