// Package utils contains small numeric helpers shared by the control components.
package utils

import "math"

// Clamp limits value to [lo, hi].
func Clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// ClampInt limits value to [lo, hi].
func ClampInt(value, lo, hi int) int {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// ClampUnit limits value to the normalized range [-1, 1].
func ClampUnit(value float64) float64 {
	return Clamp(value, -1, 1)
}

// StepToward moves current toward target by at most step. It returns the new value and whether
// the step was limited, i.e. target has not been reached yet.
func StepToward(current, target, step float64) (float64, bool) {
	delta := target - current
	if step <= 0 || math.Abs(delta) <= step {
		return target, false
	}
	if delta > 0 {
		return current + step, true
	}
	return current - step, true
}

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}
