package geometry

import (
	"errors"
	"math"
	"testing"
)

// coordinateImage stores x+1 in the red channel and y+1 in the green channel.
func coordinateImage(t *testing.T, w, h int) *Image {
	t.Helper()
	img := NewBlankImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, 0, float32(x+1))
			img.Set(x, y, 1, float32(y+1))
		}
	}
	return img
}

func TestScaleBox(t *testing.T) {
	tests := []struct {
		name  string
		box   [4]float64
		scale float64
		want  [4]float64
	}{
		{
			name:  "identity",
			box:   [4]float64{10, 20, 30, 60},
			scale: 1,
			want:  [4]float64{10, 20, 30, 60},
		},
		{
			name:  "doubles about center",
			box:   [4]float64{40, 40, 60, 60},
			scale: 2,
			want:  [4]float64{30, 30, 70, 70},
		},
		{
			name:  "clamped to image",
			box:   [4]float64{0, 0, 50, 50},
			scale: 3,
			want:  [4]float64{0, 0, 100, 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScaleBox(tt.box, tt.scale, 100, 100)
			if got != tt.want {
				t.Errorf("ScaleBox() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCenterCrop_RoundTrip(t *testing.T) {
	img := coordinateImage(t, 640, 480)
	box := [4]float64{200, 100, 360, 420}

	res, err := CenterCrop(img, box, 192, 256, 1.25)
	if err != nil {
		t.Fatalf("CenterCrop() error = %v", err)
	}
	if res.Image.Width != 192 || res.Image.Height != 256 {
		t.Fatalf("crop size = %dx%d, want 192x256", res.Image.Width, res.Image.Height)
	}

	sampled := 0
	for y := 0; y < 256; y += 7 {
		for x := 0; x < 192; x += 5 {
			r := res.Image.At(x, y, 0)
			if r == 0 {
				continue
			}
			sampled++
			pos := res.Transform.Invert(Point{X: float64(x), Y: float64(y)})
			srcX := float64(r - 1)
			srcY := float64(res.Image.At(x, y, 1) - 1)
			if math.Abs(pos.X*640-srcX) > 1 || math.Abs(pos.Y*480-srcY) > 1 {
				t.Fatalf("crop (%d,%d) inverted to (%.2f,%.2f), sampled source (%v,%v)",
					x, y, pos.X*640, pos.Y*480, srcX, srcY)
			}
		}
	}
	if sampled == 0 {
		t.Fatal("crop contains no source pixels")
	}
}

func TestTransform_ForwardInvert(t *testing.T) {
	img := coordinateImage(t, 320, 240)
	res, err := CenterCrop(img, [4]float64{50, 40, 150, 200}, 64, 64, 1.0)
	if err != nil {
		t.Fatalf("CenterCrop() error = %v", err)
	}

	for _, p := range []Position{NewPosition(0.2, 0.3), NewPosition(0.35, 0.5), NewPosition(0.4, 0.8)} {
		back := res.Transform.Invert(res.Transform.Forward(p))
		if math.Abs(back.X-p.X)*320 > 1 || math.Abs(back.Y-p.Y)*240 > 1 {
			t.Errorf("round trip of %+v = %+v", p, back)
		}
	}
}

func TestCenterCrop_OutsideIsZero(t *testing.T) {
	img := coordinateImage(t, 100, 100)
	// A tall narrow region leaves columns of the square target unfilled.
	res, err := CenterCrop(img, [4]float64{45, 0, 55, 100}, 50, 50, 1.0)
	if err != nil {
		t.Fatalf("CenterCrop() error = %v", err)
	}
	if v := res.Image.At(0, 25, 0); v != 0 {
		t.Errorf("left edge value = %v, want 0", v)
	}
	if v := res.Image.At(25, 25, 0); v == 0 {
		t.Error("center of crop should hold source pixels")
	}
}

func TestCenterCrop_Degenerate(t *testing.T) {
	img := coordinateImage(t, 100, 100)
	_, err := CenterCrop(img, [4]float64{10, 10, 10, 50}, 32, 32, 1.0)
	if !errors.Is(err, ErrDegenerateCrop) {
		t.Errorf("zero-width region error = %v, want ErrDegenerateCrop", err)
	}
	_, err = CenterCrop(img, [4]float64{10, 10, 50, 50}, 0, 32, 1.0)
	if !errors.Is(err, ErrDegenerateCrop) {
		t.Errorf("zero target error = %v, want ErrDegenerateCrop", err)
	}
}

func TestCropAndBorder(t *testing.T) {
	img := coordinateImage(t, 10, 8)

	cropped, err := Crop(img, 2, 3, 6, 7)
	if err != nil {
		t.Fatalf("Crop() error = %v", err)
	}
	if cropped.Width != 4 || cropped.Height != 4 {
		t.Fatalf("crop size = %dx%d, want 4x4", cropped.Width, cropped.Height)
	}
	if r, g := cropped.At(0, 0, 0), cropped.At(0, 0, 1); r != 3 || g != 4 {
		t.Errorf("crop origin = (%v,%v), want (3,4)", r, g)
	}

	padded := CopyMakeBorder(cropped, 1, 2, 3, 4)
	if padded.Width != 11 || padded.Height != 7 {
		t.Fatalf("padded size = %dx%d, want 11x7", padded.Width, padded.Height)
	}
	if v := padded.At(0, 0, 0); v != 0 {
		t.Errorf("border value = %v, want 0", v)
	}
	if v := padded.At(3, 1, 0); v != 3 {
		t.Errorf("shifted origin = %v, want 3", v)
	}

	if _, err := Crop(img, -1, 0, 5, 5); !errors.Is(err, ErrDegenerateCrop) {
		t.Errorf("out of bounds crop error = %v, want ErrDegenerateCrop", err)
	}
}

func TestResize_NearestFloor(t *testing.T) {
	img := coordinateImage(t, 3, 1)

	out, err := Resize(img, 2, 1)
	if err != nil {
		t.Fatalf("Resize() error = %v", err)
	}
	// floor(0*3/2)=0, floor(1*3/2)=1
	if a, b := out.At(0, 0, 0), out.At(1, 0, 0); a != 1 || b != 2 {
		t.Errorf("downscale picked %v,%v, want 1,2", a, b)
	}

	up, err := Resize(img, 6, 2)
	if err != nil {
		t.Fatalf("Resize() error = %v", err)
	}
	want := []float32{1, 1, 2, 2, 3, 3}
	for x, w := range want {
		if got := up.At(x, 1, 0); got != w {
			t.Errorf("upscale column %d = %v, want %v", x, got, w)
		}
	}
}

func TestImage_DataLayout(t *testing.T) {
	img, err := NewImage(2, 1, []float32{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("NewImage() error = %v", err)
	}

	planar := img.Data(true)
	want := []float32{1, 4, 2, 5, 3, 6}
	for i := range want {
		if planar[i] != want[i] {
			t.Fatalf("planar = %v, want %v", planar, want)
		}
	}

	if _, err := NewImage(2, 2, []float32{1}); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("short buffer error = %v, want ErrInvalidImage", err)
	}
}

func TestNormalize(t *testing.T) {
	img, _ := NewImage(1, 1, []float32{255, 0, 127.5})
	out := Normalize(img, [Channels]float32{0.5, 0.5, 0.5}, [Channels]float32{0.5, 0.5, 0.5})

	want := []float32{1, -1, 0}
	for i, v := range out.Pixels() {
		if math.Abs(float64(v-want[i])) > 1e-5 {
			t.Errorf("channel %d = %v, want %v", i, v, want[i])
		}
	}
	if img.Pixels()[0] != 255 {
		t.Error("Normalize must not modify its input")
	}
}

func TestRect_Clip(t *testing.T) {
	tests := []struct {
		name string
		in   Rect
	}{
		{"inside", Rect{X: 10, Y: 10, W: 50, H: 50}},
		{"off left", Rect{X: -80, Y: 10, W: 50, H: 50}},
		{"off right", Rect{X: 300, Y: 10, W: 50, H: 50}},
		{"huge", Rect{X: -500, Y: -500, W: 5000, H: 5000}},
		{"negative size", Rect{X: 50, Y: 50, W: -30, H: -30}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Clip(200, 100, 10)
			box := got.Normalize(200, 100, 1)
			for _, v := range []float64{box.TopLeft.X, box.TopLeft.Y, box.BottomRight.X, box.BottomRight.Y} {
				if v < 0 || v > 1 {
					t.Fatalf("clipped box %+v leaves [0,1]", box)
				}
			}
			if got.W < 10 || got.H < 10 {
				t.Errorf("clipped size %vx%v below margin", got.W, got.H)
			}
		})
	}
}

func TestRect_ClipImageSmallerThanMargin(t *testing.T) {
	for _, in := range []Rect{
		{X: -2, Y: -2, W: 12, H: 12},
		{X: 2, Y: 2, W: 4, H: 4},
		{X: 20, Y: 20, W: 1, H: 1},
	} {
		got := in.Clip(8, 6, 10)
		box := got.Normalize(8, 6, 1)
		for _, v := range []float64{box.TopLeft.X, box.TopLeft.Y, box.BottomRight.X, box.BottomRight.Y} {
			if v < 0 || v > 1 {
				t.Fatalf("Clip(%+v) = %+v, leaves [0,1]", in, box)
			}
		}
	}
}

func TestPosition_Interpolate(t *testing.T) {
	a := Position{X: 0, Y: 0, Confidence: 0.2}
	b := Position{X: 1, Y: 2, Confidence: 0.8}

	got := a.Interpolate(b, 0.25)
	if got.X != 0.25 || got.Y != 0.5 || math.Abs(got.Confidence-0.5) > 1e-9 {
		t.Errorf("Interpolate() = %+v", got)
	}
}
