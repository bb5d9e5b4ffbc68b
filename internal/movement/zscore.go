package movement

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ErrSeriesTooShort is returned when a series has too few samples for the lag.
var ErrSeriesTooShort = errors.New("series too short")

// ZScoreParams configures SmoothedZScore.
type ZScoreParams struct {
	Lag       int
	Threshold float64
	Influence float64
}

// DefaultZScoreParams returns lag 5, threshold 3.5 and influence 0.5.
func DefaultZScoreParams() ZScoreParams {
	return ZScoreParams{Lag: 5, Threshold: 3.5, Influence: 0.5}
}

// SmoothedZScore flags samples that deviate from the trailing mean by more
// than Threshold standard deviations: +1 above, -1 below, 0 otherwise.
// Flagged samples feed back into the trailing window damped by Influence.
func SmoothedZScore(values []float64, params ZScoreParams) ([]int, error) {
	if len(values) == 0 {
		return nil, nil
	}
	if params.Lag <= 0 {
		params.Lag = 5
	}
	lag := params.Lag
	if len(values) < lag+2 {
		return nil, fmt.Errorf("%w: %d samples for lag %d", ErrSeriesTooShort, len(values), lag)
	}

	signals := make([]int, len(values))
	filtered := make([]float64, len(values))
	copy(filtered, values)

	avg, std := popMeanStd(values[:lag])
	for i := lag; i < len(values); i++ {
		if math.Abs(values[i]-avg) > params.Threshold*std {
			if values[i] > avg {
				signals[i] = 1
			} else {
				signals[i] = -1
			}
			filtered[i] = params.Influence*values[i] + (1-params.Influence)*filtered[i-1]
		}
		avg, std = popMeanStd(filtered[i-lag+1 : i+1])
	}
	return signals, nil
}

func popMeanStd(x []float64) (float64, float64) {
	mean, variance := stat.PopMeanVariance(x, nil)
	return mean, math.Sqrt(variance)
}
