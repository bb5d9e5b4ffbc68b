package movement

import (
	"math"
	"slices"

	"github.com/ayusman/reptrack/internal/frames"
)

// DefaultTrimThreshold is the percentile of per-frame displacement below
// which a frame counts as part of the steady exercise region.
const DefaultTrimThreshold = 0.75

// trimWindow is the moving average window applied to displacements.
const trimWindow = 4

// EstimateTrim guesses how many milliseconds to drop from the start and end
// of a recording, where the person walks into or out of position. The middle
// third of the recording is taken as the reference pose; frames whose
// smoothed displacement from it stays under the threshold percentile form the
// steady region. Implausible regions fall back to no trim.
func EstimateTrim(objs []frames.FrameObject, threshold float64) (ignoreStartMs, ignoreEndMs int64) {
	n := len(objs)
	if n == 0 {
		return 0, 0
	}

	mid := averageKeypointLocations(objs, n/3, 2*n/3)
	running := runningDifference(objs, mid)
	cutoff := Percentile(running, threshold)
	sliding := MovingAverage(running, trimWindow)

	pred := ValuesAtMost(sliding, cutoff)
	if len(pred) < 2 {
		return 0, 0
	}

	start, end := pred[0], pred[len(pred)-1]
	if start > n/3 || end < 2*n/3 {
		start, end = 0, n-1
	}

	return objs[start].Timestamp - objs[0].Timestamp, objs[n-1].Timestamp - objs[end].Timestamp
}

// averageKeypointLocations returns the mean location of every keypoint over
// objs[from:to], ignoring frames where the keypoint is missing or NaN.
// Keypoints never seen are left out of the result.
func averageKeypointLocations(objs []frames.FrameObject, from, to int) map[string][2]float64 {
	to = min(to, len(objs))
	out := make(map[string][2]float64, len(frames.KeypointNames))
	if from >= to {
		return out
	}

	for _, name := range frames.KeypointNames {
		var sumX, sumY float64
		count := 0
		for _, o := range objs[from:to] {
			p, ok := o.KeypointLocation(name)
			if !ok || !p.IsFinite() {
				continue
			}
			sumX += p.X
			sumY += p.Y
			count++
		}
		if count > 0 {
			out[name] = [2]float64{sumX / float64(count), sumY / float64(count)}
		}
	}
	return out
}

// runningDifference sums, for each frame, the distance of every keypoint from
// its reference location.
func runningDifference(objs []frames.FrameObject, reference map[string][2]float64) []float64 {
	out := make([]float64, len(objs))
	for i, o := range objs {
		for _, name := range frames.KeypointNames {
			ref, ok := reference[name]
			if !ok {
				continue
			}
			p, ok := o.KeypointLocation(name)
			if !ok || !p.IsFinite() {
				continue
			}
			out[i] += math.Hypot(p.X-ref[0], p.Y-ref[1])
		}
	}
	return out
}

// Percentile returns the p-quantile (0..1) of values by linear interpolation
// between the two closest ranks.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	index := float64(len(sorted)-1) * p
	lower := int(math.Floor(index))
	fraction := index - float64(lower)
	if lower+1 < len(sorted) {
		return sorted[lower] + fraction*(sorted[lower+1]-sorted[lower])
	}
	return sorted[lower]
}

// MovingAverage returns the trailing mean over window samples. The first
// window-1 outputs are still divided by window.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 0 {
		return out
	}
	for i := range values {
		var sum float64
		for j := 0; j < window && i-j >= 0; j++ {
			sum += values[i-j]
		}
		out[i] = sum / float64(window)
	}
	return out
}

// ValuesAtMost returns the indices of values that are <= cutoff.
func ValuesAtMost(values []float64, cutoff float64) []int {
	var out []int
	for i, v := range values {
		if v <= cutoff {
			out = append(out, i)
		}
	}
	return out
}
