// math/math.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import gomath "math"

const Pi = gomath.Pi

func Radians(d float64) float64 {
	return d / 180 * gomath.Pi
}

func Degrees(r float64) float64 {
	return r * 180 / gomath.Pi
}

func Sqr(x float64) float64 { return x * x }

func Clamp[T float64 | float32 | int](x T, low T, high T) T {
	if x < low {
		return low
	} else if x > high {
		return high
	}
	return x
}

// Lerp interpolates x of the way between a and b. x==0 corresponds to a,
// x==1 corresponds to b, etc.
func Lerp(x, a, b float64) float64 {
	return (1-x)*a + x*b
}

// Mod2Pi maps an angle in radians into [0, 2*pi).
func Mod2Pi(theta float64) float64 {
	return theta - 2*gomath.Pi*gomath.Floor(theta/(2*gomath.Pi))
}

// NormalizeHeading maps a heading in degrees into [0, 360).
func NormalizeHeading(h float64) float64 {
	h = gomath.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}
