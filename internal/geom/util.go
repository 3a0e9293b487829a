package geom

import (
	"math"
	"math/rand/v2"
)

// Clamp restricts v to [min, max]
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// ScaleNumber maps n from the range [x1, x2] onto [z1, z2], optionally clamping the result.
func ScaleNumber(n, x1, x2, z1, z2 float64, clamp bool) float64 {
	ratio := (n - x1) / (x2 - x1)
	result := ratio*(z2-z1) + z1
	if !clamp {
		return result
	}
	if z1 > z2 {
		return Clamp(result, z2, z1)
	}
	return Clamp(result, z1, z2)
}

// Round rounds n to the given number of decimal places
func Round(n float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(n*p) / p
}

// Lerp interpolates between a (n=0) and b (n=1)
func Lerp(a, b, n float64) float64 {
	return a*(1-n) + b*n
}

// Sign returns -1, 0 or 1
func Sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// NormalizeAngle wraps angle to (-PI, PI]
func NormalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// RandRange returns a non-deterministic float in [min, max)
func RandRange(min, max float64) float64 {
	return rand.Float64()*(max-min) + min
}
