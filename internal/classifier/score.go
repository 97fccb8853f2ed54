package classifier

import (
	"errors"
	"math"
)

// ErrEmptyOutput is returned when the model produced no values at all.
var ErrEmptyOutput = errors.New("classifier produced empty output")

// UnsafeScore reduces raw classifier outputs to one probability in [0,1] that
// the image is unsafe. Handled shapes:
//
//   - one value: a logit, squashed with a sigmoid;
//   - two values: class logits, softmaxed, second (unsafe) class taken;
//   - anything else: first value clamped into [0,1].
//
// The boolean reports whether the shape was one of the expected two; callers
// log a warning for the clamp path instead of crashing.
func UnsafeScore(outputs []float32) (float64, bool, error) {
	switch len(outputs) {
	case 0:
		return 0, false, ErrEmptyOutput
	case 1:
		return sigmoid(float64(outputs[0])), true, nil
	case 2:
		return softmaxSecond(float64(outputs[0]), float64(outputs[1])), true, nil
	default:
		return clamp01(float64(outputs[0])), false, nil
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// softmaxSecond computes softmax([a,b])[1] with the usual max-shift for
// numerical stability.
func softmaxSecond(a, b float64) float64 {
	m := math.Max(a, b)
	ea := math.Exp(a - m)
	eb := math.Exp(b - m)
	return eb / (ea + eb)
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
