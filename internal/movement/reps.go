package movement

import (
	"errors"
	"fmt"
	"math"

	"github.com/ayusman/reptrack/internal/frames"
)

// ErrNilFrameObject is returned when a track contains a missing frame.
var ErrNilFrameObject = errors.New("nil frame object")

// Rep is one repetition given by the frames at its boundaries.
type Rep struct {
	StartFrame  frames.FrameObject `json:"start_frame"`
	MiddleFrame frames.FrameObject `json:"middle_frame"`
	EndFrame    frames.FrameObject `json:"end_frame"`
}

// RepOptions tunes RepsByKeypointDistance.
type RepOptions struct {
	// KeypointsContract counts a rep when the keypoints move closer together.
	// Set false when the distance grows during a rep.
	KeypointsContract bool `json:"keypoints_contract"`

	// Threshold is the minimum prominence of a rep in the normalized signal.
	Threshold float64 `json:"threshold"`

	// Smoothing is the Gaussian sigma applied to the distances.
	Smoothing float64 `json:"smoothing"`

	// IgnoreStartMs and IgnoreEndMs drop time from either end of the track.
	// When nil the amount is estimated from the keypoint motion.
	IgnoreStartMs *int64 `json:"ignore_start_ms,omitempty"`
	IgnoreEndMs   *int64 `json:"ignore_end_ms,omitempty"`
}

// DefaultRepOptions returns the options used when a caller supplies none.
func DefaultRepOptions() RepOptions {
	return RepOptions{
		KeypointsContract: true,
		Threshold:         0.2,
		Smoothing:         2.0,
	}
}

// Millis returns a pointer to ms, for RepOptions trim fields.
func Millis(ms int64) *int64 {
	return &ms
}

// RepsByKeypointDistance segments a person's track into repetitions using the
// vertical distance between two keypoints, e.g. hip and ankle for squats.
func RepsByKeypointDistance(track []*frames.FrameObject, keypoint1, keypoint2 string, opts RepOptions) ([]Rep, error) {
	objs := make([]frames.FrameObject, len(track))
	for i, o := range track {
		if o == nil {
			return nil, fmt.Errorf("%w at index %d", ErrNilFrameObject, i)
		}
		objs[i] = *o
	}
	return Reps(objs, keypoint1, keypoint2, opts)
}

// Reps is RepsByKeypointDistance for a track held by value.
func Reps(objs []frames.FrameObject, keypoint1, keypoint2 string, opts RepOptions) ([]Rep, error) {
	if len(objs) == 0 {
		return nil, nil
	}

	ignoreStart, ignoreEnd := int64(0), int64(0)
	if opts.IgnoreStartMs == nil || opts.IgnoreEndMs == nil {
		ignoreStart, ignoreEnd = EstimateTrim(objs, DefaultTrimThreshold)
	}
	if opts.IgnoreStartMs != nil {
		ignoreStart = *opts.IgnoreStartMs
	}
	if opts.IgnoreEndMs != nil {
		ignoreEnd = *opts.IgnoreEndMs
	}

	first := objs[0].Timestamp
	last := int64(math.MinInt64)
	for _, o := range objs {
		last = max(last, o.Timestamp)
	}
	start := first + ignoreStart
	end := max(last-ignoreEnd, start+1)

	// sampleFrames[i] is the index into objs of distances[i].
	var distances []float64
	var sampleFrames []int
	for i, o := range objs {
		if o.Timestamp < start || o.Timestamp > end {
			continue
		}
		p1, ok1 := o.KeypointLocation(keypoint1)
		p2, ok2 := o.KeypointLocation(keypoint2)
		if !ok1 || !ok2 || !p1.IsFinite() || !p2.IsFinite() {
			continue
		}
		distances = append(distances, math.Abs(p1.Y-p2.Y))
		sampleFrames = append(sampleFrames, i)
	}

	signals := Signals(distances, !opts.KeypointsContract, opts.Threshold, opts.Smoothing)

	reps := make([]Rep, 0, len(signals))
	for _, s := range signals {
		reps = append(reps, Rep{
			StartFrame:  objs[sampleFrames[s.Start]],
			MiddleFrame: objs[sampleFrames[s.Middle]],
			EndFrame:    objs[sampleFrames[s.End]],
		})
	}
	return reps, nil
}
