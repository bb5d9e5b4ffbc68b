package geometry

// Per-channel statistics used by the tracker and pose models. Pose models
// exported with ImageNet preprocessing take ImageNetMean and ImageNetStd.
var (
	CLIPMean = [Channels]float32{0.48145466, 0.4578275, 0.40821073}
	CLIPStd  = [Channels]float32{0.26862954, 0.26130258, 0.27577711}

	ImageNetMean = [Channels]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [Channels]float32{0.229, 0.224, 0.225}
)

// Normalize returns a copy of img with (v-mean)/std applied per channel.
// Images holding 0-255 values are scaled to [0,1] first.
func Normalize(img *Image, mean, std [Channels]float32) *Image {
	out := img.Clone()
	scale := float32(1)
	for _, v := range out.pixels {
		if v > 1 {
			scale = 255
			break
		}
	}
	for i, v := range out.pixels {
		c := i % Channels
		out.pixels[i] = (v/scale - mean[c]) / std[c]
	}
	return out
}
