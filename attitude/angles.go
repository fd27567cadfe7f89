package attitude

import (
	"math"

	"golang.org/x/exp/constraints"
)

const (
	Deg = 180 / math.Pi // Deg converts radians to degrees.
	Rad = math.Pi / 180 // Rad converts degrees to radians.
)

// Clamp limits v to [lo, hi].
func Clamp[T constraints.Float | constraints.Integer](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// WrapPi maps an angle in radians to (-π, π].
func WrapPi(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// WrapDeg maps an angle in degrees to (-180, 180].
func WrapDeg(a float64) float64 {
	return WrapPi(a*Rad) * Deg
}

// blendAngle mixes two angles on the circle: w*a + (1-w)*b, taking the short
// way round. The result is wrapped to (-π, π].
func blendAngle(a, b, w float64) float64 {
	return WrapPi(b + w*WrapPi(a-b))
}

// smoothstep is the cubic Hermite ramp 3x²-2x³ on [0, 1].
func smoothstep(x float64) float64 {
	x = Clamp(x, 0, 1)
	return x * x * (3 - 2*x)
}
