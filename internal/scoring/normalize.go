package scoring

import (
	"math"
	"sort"
)

// Raw BM25 scores are unbounded and corpus-dependent, so they are squashed
// through a sigmoid calibrated from the score distribution of the result
// list itself. The midpoint sits at the median and the slope is set so the
// p90 score lands near 0.9.

// SigmoidParams derives the sigmoid steepness k and midpoint x0 from a raw
// score sample. An empty sample yields the identity-ish (1.0, 0.0).
func SigmoidParams(rawScores []float64) (k, x0 float64) {
	xs := make([]float64, 0, len(rawScores))
	xs = append(xs, rawScores...)
	if len(xs) == 0 {
		return 1.0, 0.0
	}
	sort.Float64s(xs)

	p50 := xs[len(xs)/2]
	p90 := xs[max(0, int(float64(len(xs))*0.9)-1)]

	x0 = p50
	denom := p90 - p50
	if denom == 0 {
		denom = math.Abs(p50) + 1e-6
	}
	k = 2.2 / denom
	return k, x0
}

// Sigmoid maps a raw score into (0, 1) using the given calibration.
func Sigmoid(x, k, x0 float64) float64 {
	return 1.0 / (1.0 + math.Exp(-k*(x-x0)))
}

// NormalizeScores applies the sigmoid to every raw score.
func NormalizeScores(rawScores []float64, k, x0 float64) []float64 {
	out := make([]float64, len(rawScores))
	for i, s := range rawScores {
		out[i] = Sigmoid(s, k, x0)
	}
	return out
}
