// nav/dubins.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package nav

import (
	gomath "math"

	"github.com/firewatch-uas/firewatch/math"
)

// DubinsConfig is an oriented planar configuration: position (x, y) in
// meters and heading theta in radians.
type DubinsConfig struct {
	X, Y, Theta float64
}

type DubinsPathType int

const (
	DubinsLSL DubinsPathType = iota
	DubinsRSR
	DubinsLSR
	DubinsRSL
	DubinsRLR
	DubinsLRL
)

func (t DubinsPathType) String() string {
	return []string{"LSL", "RSR", "LSR", "RSL", "RLR", "LRL"}[t]
}

// DubinsPath is a minimum-length path between two oriented configurations
// under a turning-radius constraint. Segments holds the three segment
// lengths (t, p, q) normalized to the unit-radius frame; for the CSC
// families p is the straight segment, for CCC it is the middle arc.
type DubinsPath struct {
	Type     DubinsPathType
	Segments [3]float64
	Radius   float64
}

// Length returns the total path length in meters.
func (p DubinsPath) Length() float64 {
	return (p.Segments[0] + p.Segments[1] + p.Segments[2]) * p.Radius
}

// PlanDubinsPath returns the shortest path from start to goal among the
// six canonical Dubins families, or ErrInfeasiblePath if no family is
// feasible. The planner is pure and deterministic.
func PlanDubinsPath(start, goal DubinsConfig, radius float64) (DubinsPath, error) {
	// Normalize to the unit-radius frame: translate start to the origin
	// and rotate so that the start-goal vector lies along +x.
	dx := goal.X - start.X
	dy := goal.Y - start.Y
	d := gomath.Sqrt(dx*dx+dy*dy) / radius

	theta := gomath.Atan2(dy, dx)
	alpha := math.Mod2Pi(start.Theta - theta)
	beta := math.Mod2Pi(goal.Theta - theta)

	type family struct {
		ty DubinsPathType
		fn func(alpha, beta, d float64) ([3]float64, bool)
	}
	families := [6]family{
		{DubinsLSL, dubinsLSL},
		{DubinsRSR, dubinsRSR},
		{DubinsLSR, dubinsLSR},
		{DubinsRSL, dubinsRSL},
		{DubinsRLR, dubinsRLR},
		{DubinsLRL, dubinsLRL},
	}

	best := DubinsPath{Radius: radius}
	bestLength := gomath.Inf(1)
	found := false
	for _, f := range families {
		if seg, ok := f.fn(alpha, beta, d); ok {
			if l := seg[0] + seg[1] + seg[2]; l < bestLength {
				best = DubinsPath{Type: f.ty, Segments: seg, Radius: radius}
				bestLength = l
				found = true
			}
		}
	}

	if !found {
		return DubinsPath{}, ErrInfeasiblePath
	}
	return best, nil
}

// primitives returns the three {L, S, R} primitives of the family.
func (t DubinsPathType) primitives() [3]byte {
	switch t {
	case DubinsLSL:
		return [3]byte{'L', 'S', 'L'}
	case DubinsRSR:
		return [3]byte{'R', 'S', 'R'}
	case DubinsLSR:
		return [3]byte{'L', 'S', 'R'}
	case DubinsRSL:
		return [3]byte{'R', 'S', 'L'}
	case DubinsRLR:
		return [3]byte{'R', 'L', 'R'}
	default:
		return [3]byte{'L', 'R', 'L'}
	}
}

// advance integrates a configuration along arc length s with curvature
// kappa (0 for a straight segment).
func advance(c DubinsConfig, kappa, s float64) DubinsConfig {
	if kappa == 0 {
		sin, cos := gomath.Sincos(c.Theta)
		return DubinsConfig{X: c.X + s*cos, Y: c.Y + s*sin, Theta: c.Theta}
	}
	theta := c.Theta + kappa*s
	return DubinsConfig{
		X:     c.X + (gomath.Sin(theta)-gomath.Sin(c.Theta))/kappa,
		Y:     c.Y - (gomath.Cos(theta)-gomath.Cos(c.Theta))/kappa,
		Theta: theta,
	}
}

// Sample returns configurations spaced roughly ds meters apart along the
// path starting from start, including the endpoint.
func (p DubinsPath) Sample(start DubinsConfig, ds float64) []DubinsConfig {
	cfgs := []DubinsConfig{start}
	cur := start

	prims := p.Type.primitives()
	for i, segLen := range p.Segments {
		length := segLen * p.Radius

		var kappa float64
		switch prims[i] {
		case 'L':
			kappa = 1 / p.Radius
		case 'R':
			kappa = -1 / p.Radius
		}

		for travelled := ds; travelled < length; travelled += ds {
			cfgs = append(cfgs, advance(cur, kappa, travelled))
		}
		cur = advance(cur, kappa, length)
		cfgs = append(cfgs, cur)
	}
	return cfgs
}

func dubinsLSL(alpha, beta, d float64) ([3]float64, bool) {
	sa, ca := gomath.Sincos(alpha)
	sb, cb := gomath.Sincos(beta)

	tmp := 2 + d*d - 2*gomath.Cos(alpha-beta) + 2*d*(sa-sb)
	if tmp < 0 {
		return [3]float64{}, false
	}

	t := math.Mod2Pi(-alpha + gomath.Atan2(cb-ca, d+sa-sb))
	p := gomath.Sqrt(max(0, tmp))
	q := math.Mod2Pi(beta - gomath.Atan2(cb-ca, d+sa-sb))
	return [3]float64{t, p, q}, true
}

func dubinsRSR(alpha, beta, d float64) ([3]float64, bool) {
	sa, ca := gomath.Sincos(alpha)
	sb, cb := gomath.Sincos(beta)

	tmp := 2 + d*d - 2*gomath.Cos(alpha-beta) + 2*d*(sb-sa)
	if tmp < 0 {
		return [3]float64{}, false
	}

	t := math.Mod2Pi(alpha - gomath.Atan2(ca-cb, d-sa+sb))
	p := gomath.Sqrt(max(0, tmp))
	q := math.Mod2Pi(-beta + gomath.Atan2(ca-cb, d-sa+sb))
	return [3]float64{t, p, q}, true
}

func dubinsLSR(alpha, beta, d float64) ([3]float64, bool) {
	sa, ca := gomath.Sincos(alpha)
	sb, cb := gomath.Sincos(beta)

	psq := -2 + d*d + 2*gomath.Cos(alpha-beta) + 2*d*(sa+sb)
	if psq < 0 {
		return [3]float64{}, false
	}

	p := gomath.Sqrt(psq)
	t := math.Mod2Pi(-alpha + gomath.Atan2(-ca-cb, d+sa+sb) - gomath.Atan2(-2, p))
	q := math.Mod2Pi(-beta + gomath.Atan2(-ca-cb, d+sa+sb) - gomath.Atan2(-2, p))
	return [3]float64{t, p, q}, true
}

func dubinsRSL(alpha, beta, d float64) ([3]float64, bool) {
	sa, ca := gomath.Sincos(alpha)
	sb, cb := gomath.Sincos(beta)

	psq := -2 + d*d + 2*gomath.Cos(alpha-beta) - 2*d*(sa+sb)
	if psq < 0 {
		return [3]float64{}, false
	}

	p := gomath.Sqrt(psq)
	t := math.Mod2Pi(alpha - gomath.Atan2(ca+cb, d-sa-sb) + gomath.Atan2(2, p))
	q := math.Mod2Pi(beta - gomath.Atan2(ca+cb, d-sa-sb) + gomath.Atan2(2, p))
	return [3]float64{t, p, q}, true
}

func dubinsRLR(alpha, beta, d float64) ([3]float64, bool) {
	sa, ca := gomath.Sincos(alpha)
	sb, cb := gomath.Sincos(beta)

	tmp := (6 - d*d + 2*gomath.Cos(alpha-beta) + 2*d*(sa-sb)) / 8
	if gomath.Abs(tmp) > 1 {
		return [3]float64{}, false
	}

	p := math.Mod2Pi(2*gomath.Pi - gomath.Acos(tmp))
	t := math.Mod2Pi(alpha - gomath.Atan2(ca-cb, d-sa+sb) + p/2)
	q := math.Mod2Pi(alpha - beta - t + p)
	return [3]float64{t, p, q}, true
}

func dubinsLRL(alpha, beta, d float64) ([3]float64, bool) {
	sa, ca := gomath.Sincos(alpha)
	sb, cb := gomath.Sincos(beta)

	tmp := (6 - d*d + 2*gomath.Cos(alpha-beta) + 2*d*(sb-sa)) / 8
	if gomath.Abs(tmp) > 1 {
		return [3]float64{}, false
	}

	p := math.Mod2Pi(2*gomath.Pi - gomath.Acos(tmp))
	t := math.Mod2Pi(-alpha - gomath.Atan2(ca-cb, d+sa-sb) + p/2)
	q := math.Mod2Pi(beta - alpha - t + p)
	return [3]float64{t, p, q}, true
}
