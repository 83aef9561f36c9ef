// Package util provides common utility functions for price calculations.
package util

import "math"

// RoundToTick rounds x to the nearest tick increment, ties away from zero.
// For example, with tick=0.01, 1.2345 becomes 1.23 and 1.235 becomes 1.24.
// A zero tick, NaN, or infinite input returns x unchanged.
func RoundToTick(x, tick float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	tick = math.Abs(tick)
	if tick == 0 {
		return x
	}
	// Division noise can drop a true half-boundary (123.5) to
	// 123.49999...; the nudge keeps ties rounding away from zero.
	q := math.Abs(x/tick) + 1e-9
	return math.Copysign(math.Floor(q+0.5)*tick, x)
}

// FloorToTick rounds x down to the nearest tick increment.
func FloorToTick(x, tick float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	tick = math.Abs(tick)
	if tick == 0 {
		return x
	}
	return math.Floor(x/tick) * tick
}

// CeilToTick rounds x up to the nearest tick increment.
func CeilToTick(x, tick float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	tick = math.Abs(tick)
	if tick == 0 {
		return x
	}
	return math.Ceil(x/tick) * tick
}
