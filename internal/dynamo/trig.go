package dynamo

import "math"

// WrapAngle maps any angle into (-π, π].
func WrapAngle(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return 0
	}
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

// WrapDifference returns angle-alpha wrapped into (-π, π].
// WrapDifference(a, a) is exactly 0.
func WrapDifference(angle, alpha float64) float64 {
	if angle == alpha {
		return 0
	}
	return WrapAngle(angle - alpha)
}
