package postprocess

import (
	"math"
)

// sigmoid maps a raw classification logit to a probability in (0,1)
func sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(-float64(x))))
}

// clamp restricts val to the range [min, max]
func clamp(val, min, max float32) float32 {

	if val < min {
		return min
	}

	if val > max {
		return max
	}

	return val
}

// iou calculates the Intersection over Union of two normalized boxes given
// as [x_min, y_min, x_max, y_max].  Returns 0 when the union area is zero
func iou(a, b [4]float32) float32 {

	interW := minf(a[2], b[2]) - maxf(a[0], b[0])
	interH := minf(a[3], b[3]) - maxf(a[1], b[1])

	if interW <= 0 || interH <= 0 {
		return 0.0
	}

	intersection := interW * interH

	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])

	union := areaA + areaB - intersection

	if union <= 0 {
		return 0.0
	}

	return intersection / union
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
