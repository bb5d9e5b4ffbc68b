package movement

import (
	"math"

	"github.com/ayusman/reptrack/internal/frames"
	"github.com/ayusman/reptrack/internal/geometry"
)

// Facing is the direction a person mostly faces.
type Facing string

// Facing values.
const (
	FacingLeft    Facing = "left"
	FacingRight   Facing = "right"
	FacingToward  Facing = "toward"
	FacingAway    Facing = "away"
	FacingUp      Facing = "up"
	FacingDown    Facing = "down"
	FacingUnknown Facing = "unknown"
)

// AverageKeypointLocation averages a keypoint over a track, skipping frames
// where it is missing or NaN. ok is false when no frame has it.
func AverageKeypointLocation(track []frames.FrameObject, keypoint string) (geometry.Position, bool) {
	var sum geometry.Position
	n := 0
	for _, o := range track {
		p, ok := o.KeypointLocation(keypoint)
		if !ok || !p.IsFinite() {
			continue
		}
		sum.X += p.X
		sum.Y += p.Y
		sum.Confidence += p.Confidence
		n++
	}
	if n == 0 {
		return geometry.Position{}, false
	}
	return geometry.Position{
		X:          sum.X / float64(n),
		Y:          sum.Y / float64(n),
		Confidence: sum.Confidence / float64(n),
	}, true
}

// AngleBetweenKeypoints returns the angle in degrees of the line from
// keypoint1 to keypoint2, measured from horizontal.
func AngleBetweenKeypoints(obj frames.FrameObject, keypoint1, keypoint2 string) (float64, bool) {
	p1, ok1 := obj.KeypointLocation(keypoint1)
	p2, ok2 := obj.KeypointLocation(keypoint2)
	if !ok1 || !ok2 {
		return 0, false
	}
	return math.Atan((p2.Y-p1.Y)/(p2.X-p1.X)) * 180 / math.Pi, true
}

// PersonMostlyStanding reports whether the torso and thighs are mostly
// upright. A person is lying down when shoulders, hips and knees line up
// horizontally in one direction on both sides.
func PersonMostlyStanding(track []frames.FrameObject) bool {
	avg := averages(track, frames.LeftShoulder, frames.RightShoulder,
		frames.LeftHip, frames.RightHip, frames.LeftKnee, frames.RightKnee)

	ls, rs := avg[frames.LeftShoulder].X, avg[frames.RightShoulder].X
	lh, rh := avg[frames.LeftHip].X, avg[frames.RightHip].X
	lk, rk := avg[frames.LeftKnee].X, avg[frames.RightKnee].X

	horizontal := (ls > lh && rs > rh && lh > lk && rh > rk) ||
		(ls < lh && rs < rh && lh < lk && rh < rk)
	return !horizontal
}

// PersonMostlyFacing estimates the direction the person faces over a track.
func PersonMostlyFacing(track []frames.FrameObject) Facing {
	if PersonMostlyStanding(track) {
		avg := averages(track, frames.Nose, frames.LeftHip, frames.RightHip)
		nose, lh, rh := avg[frames.Nose].X, avg[frames.LeftHip].X, avg[frames.RightHip].X

		switch {
		case nose < lh && nose < rh:
			return FacingLeft
		case nose > lh && nose > rh:
			return FacingRight
		case nose > rh && nose < lh:
			return FacingToward
		default:
			return FacingUnknown
		}
	}

	avg := averages(track, frames.LeftShoulder, frames.RightShoulder, frames.LeftWrist, frames.RightWrist)
	ls, rs := avg[frames.LeftShoulder].Y, avg[frames.RightShoulder].Y
	lw, rw := avg[frames.LeftWrist].Y, avg[frames.RightWrist].Y

	switch {
	case ls < lw && rs < rw:
		return FacingDown
	case ls > lw && rs > rw:
		return FacingUp
	default:
		return FacingUnknown
	}
}

// averages maps each keypoint to its average location. Missing keypoints get
// NaN coordinates so that every comparison against them is false.
func averages(track []frames.FrameObject, keypoints ...string) map[string]geometry.Position {
	out := make(map[string]geometry.Position, len(keypoints))
	for _, k := range keypoints {
		p, ok := AverageKeypointLocation(track, k)
		if !ok {
			p = geometry.Position{X: math.NaN(), Y: math.NaN()}
		}
		out[k] = p
	}
	return out
}
