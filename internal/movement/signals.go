// Package movement turns per-frame keypoint measurements into repetition
// segments and posture summaries.
package movement

import (
	"log"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Signal is one repetition found in a series, as indices into the series.
type Signal struct {
	Start  int `json:"start"`
	Middle int `json:"middle"`
	End    int `json:"end"`
}

// Signals finds repetition segments in a time series. With findPeaks the
// segments are centered on maxima, otherwise on minima. Peaks whose
// prominence in the smoothed, normalized series is below prominence are
// discarded. sigma controls the Gaussian smoothing applied first.
func Signals(numbers []float64, findPeaks bool, prominence, sigma float64) []Signal {
	series := make([]float64, len(numbers))
	copy(series, numbers)
	if !findPeaks {
		for i, x := range series {
			series[i] = 1 - x
		}
	}

	series = NormalizeNumbers(GaussianSmooth(series, sigma))

	var kept []int
	peaks := Peaks(series)
	for i, p := range PeakProminences(series, peaks) {
		if p >= prominence {
			kept = append(kept, peaks[i])
		}
	}

	return signalBoundaries(series, Velocities(series), kept)
}

// GaussianSmooth convolves the series with a Gaussian kernel of radius
// ceil(3*sigma). Samples past either end are left out of the sum rather than
// padded. A non-positive sigma returns an unsmoothed copy.
func GaussianSmooth(data []float64, sigma float64) []float64 {
	out := make([]float64, len(data))
	if !(sigma > 0) {
		copy(out, data)
		return out
	}

	radius := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		x := float64(i - radius)
		kernel[i] = math.Exp(-(x * x) / (2 * sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)

	for i := range data {
		var sum float64
		for k, w := range kernel {
			j := i + k - radius
			if j >= 0 && j < len(data) {
				sum += data[j] * w
			}
		}
		out[i] = sum
	}
	return out
}

// NormalizeNumbers rescales the series to span [0,1]. Series shorter than two
// samples are returned unchanged; a flat series becomes all zeros.
func NormalizeNumbers(numbers []float64) []float64 {
	out := make([]float64, len(numbers))
	copy(out, numbers)
	if len(out) < 2 {
		return out
	}

	lo, hi := floats.Min(out), floats.Max(out)
	if hi == lo {
		for i := range out {
			out[i] = 0
		}
		return out
	}
	floats.AddConst(-lo, out)
	floats.Scale(1/(hi-lo), out)
	return out
}

// Peaks returns the indices of strict interior local maxima.
func Peaks(numbers []float64) []int {
	var maxima []int
	for i := 1; i < len(numbers)-1; i++ {
		if numbers[i] > numbers[i-1] && numbers[i] > numbers[i+1] {
			maxima = append(maxima, i)
		}
	}
	return maxima
}

// PeakProminences measures how far each peak rises above the higher of the
// lowest points reached walking away from it on either side until the series
// climbs above the peak.
func PeakProminences(numbers []float64, peaks []int) []float64 {
	out := make([]float64, len(peaks))
	for n, peak := range peaks {
		height := numbers[peak]

		leftMin := height
		for i := peak - 1; i >= 0 && numbers[i] <= height; i-- {
			leftMin = math.Min(leftMin, numbers[i])
		}

		rightMin := height
		for i := peak + 1; i < len(numbers) && numbers[i] <= height; i++ {
			rightMin = math.Min(rightMin, numbers[i])
		}

		out[n] = height - math.Max(leftMin, rightMin)
		if out[n] == 0 {
			log.Printf("movement: peak at index %d has zero prominence", peak)
		}
	}
	return out
}

// Velocities returns first differences with a leading zero, so the result has
// the same length as the input.
func Velocities(numbers []float64) []float64 {
	if len(numbers) == 0 {
		return nil
	}
	out := make([]float64, len(numbers))
	for i := 1; i < len(numbers); i++ {
		out[i] = numbers[i] - numbers[i-1]
	}
	return out
}

// signalBoundaries expands each peak into a segment. Going left from the peak,
// the segment starts just after the velocity turns from rising to
// non-rising; going right, it ends just before the velocity turns from
// falling to non-falling. Segments never reach past the neighbouring peaks,
// and adjacent segments that would overlap are split at the lowest sample
// between their peaks.
func signalBoundaries(series, velocities []float64, peaks []int) []Signal {
	signals := make([]Signal, 0, len(peaks))
	for i, peak := range peaks {
		prev := -1
		if i > 0 {
			prev = peaks[i-1]
		}
		next := len(velocities) - 1
		if i < len(peaks)-1 {
			next = peaks[i+1]
		}

		leftEdge := prev + 1
		start := leftEdge
		seenPositive := false
		for j := peak - 1; j >= leftEdge; j-- {
			if velocities[j] > 0 {
				seenPositive = true
			} else if seenPositive {
				start = j + 1
				break
			}
		}

		rightEdge := next - 1
		end := rightEdge
		seenNegative := false
		for j := peak + 1; j < rightEdge; j++ {
			if velocities[j] < 0 {
				seenNegative = true
			} else if seenNegative {
				end = j - 1
				break
			}
		}

		if i > 0 && start <= signals[i-1].End {
			valley := prev + 1 + floats.MinIdx(series[prev+1:peak])
			signals[i-1].End = min(signals[i-1].End, valley)
			start = max(start, signals[i-1].End+1)
		}

		signals = append(signals, Signal{Start: start, Middle: peak, End: end})
	}
	return signals
}
