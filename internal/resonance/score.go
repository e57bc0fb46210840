// Package resonance holds the bounded record window and threshold verdicts
// shared by every scoring manager in the node.
package resonance

import "math"

// Clamp limits x to [0,1]. NaN maps to 0.
func Clamp(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Normalize maps x from [lo,hi] onto [0,1].
func Normalize(x, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	return Clamp((x - lo) / (hi - lo))
}

// Mean returns the arithmetic mean, or 0 for no values.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Verdict is the outcome of comparing a score against a threshold or bands.
type Verdict struct {
	Crossed bool    `json:"crossed"`
	Level   string  `json:"level,omitempty"`
	Score   float64 `json:"score"`
}

// Threshold reports whether score reaches t.
func Threshold(score, t float64) Verdict {
	score = Clamp(score)
	return Verdict{Crossed: score >= t, Score: score}
}

// Band is a named score floor.
type Band struct {
	Floor float64
	Level string
}

// Classify returns the first band whose floor is <= score. Bands must be
// ordered from highest floor to lowest; the last band acts as the fallback.
func Classify(score float64, bands []Band) Verdict {
	score = Clamp(score)
	v := Verdict{Score: score}
	for i, b := range bands {
		if score >= b.Floor || i == len(bands)-1 {
			v.Level = b.Level
			v.Crossed = i == 0
			return v
		}
	}
	return v
}
