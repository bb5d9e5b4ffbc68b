package movement

import (
	"math"

	"github.com/ayusman/reptrack/internal/frames"
)

// PathPoint is the offset of one keypoint from another at a timestamp.
type PathPoint struct {
	X         float64
	Y         float64
	Timestamp int64
}

// KeypointPath returns the offset of keypoint2 from keypoint1 for every frame
// between startMs and endMs inclusive. Frames missing either keypoint are skipped.
func KeypointPath(objs []frames.FrameObject, keypoint1, keypoint2 string, startMs, endMs int64) []PathPoint {
	var path []PathPoint
	for _, o := range objs {
		if o.Timestamp < startMs || o.Timestamp > endMs {
			continue
		}
		p1, ok1 := o.KeypointLocation(keypoint1)
		p2, ok2 := o.KeypointLocation(keypoint2)
		if !ok1 || !ok2 || !p1.IsFinite() || !p2.IsFinite() {
			continue
		}
		path = append(path, PathPoint{X: p2.X - p1.X, Y: p2.Y - p1.Y, Timestamp: o.Timestamp})
	}
	return path
}

// RepConsistency scores how closely each rep follows the movement of the
// first one, as 1/(1+d) where d is the DTW distance between the normalized
// keypoint offset paths. The first rep always scores 1.
func RepConsistency(objs []frames.FrameObject, keypoint1, keypoint2 string, reps []Rep) []float64 {
	if len(reps) == 0 {
		return nil
	}

	paths := make([][]PathPoint, len(reps))
	for i, r := range reps {
		paths[i] = normalizePath(KeypointPath(objs, keypoint1, keypoint2, r.StartFrame.Timestamp, r.EndFrame.Timestamp))
	}

	scores := make([]float64, len(reps))
	scores[0] = 1
	for i := 1; i < len(reps); i++ {
		d := DTWDistance(paths[0], paths[i])
		if math.IsInf(d, 1) {
			continue
		}
		scores[i] = 1 / (1 + d)
	}
	return scores
}

// DTWDistance calculates Dynamic Time Warping distance between two paths.
// Returns infinity if either path is empty.
// The distance is normalized by the longer path length.
func DTWDistance(path1, path2 []PathPoint) float64 {
	n, m := len(path1), len(path2)
	if n == 0 || m == 0 {
		return math.Inf(1)
	}

	// Two rows of the (n+1) x (m+1) cost matrix.
	prev := make([]float64, m+1)
	curr := make([]float64, m+1)
	for j := range prev {
		prev[j] = math.Inf(1)
	}
	prev[0] = 0

	for i := 1; i <= n; i++ {
		curr[0] = math.Inf(1)
		for j := 1; j <= m; j++ {
			cost := math.Hypot(path1[i-1].X-path2[j-1].X, path1[i-1].Y-path2[j-1].Y)
			curr[j] = cost + min(prev[j], curr[j-1], prev[j-1])
		}
		prev, curr = curr, prev
	}

	return prev[m] / float64(max(n, m))
}

// normalizePath scales each axis of the path to the 0-1 range.
// A constant axis maps to 0. Timestamps are preserved.
func normalizePath(path []PathPoint) []PathPoint {
	if len(path) == 0 {
		return nil
	}

	minX, maxX := path[0].X, path[0].X
	minY, maxY := path[0].Y, path[0].Y
	for _, p := range path {
		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)
	}
	rangeX, rangeY := maxX-minX, maxY-minY

	normalized := make([]PathPoint, len(path))
	for i, p := range path {
		var x, y float64
		if rangeX > 0 {
			x = (p.X - minX) / rangeX
		}
		if rangeY > 0 {
			y = (p.Y - minY) / rangeY
		}
		normalized[i] = PathPoint{X: x, Y: y, Timestamp: p.Timestamp}
	}
	return normalized
}
