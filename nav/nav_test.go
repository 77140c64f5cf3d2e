// nav/nav_test.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package nav

import (
	"errors"
	gomath "math"
	"math/rand"
	"testing"

	"github.com/firewatch-uas/firewatch/math"
)

func TestDubinsStraight(t *testing.T) {
	// Aligned configurations on the x axis admit a pure straight segment,
	// so the shortest path length equals the Euclidean distance.
	start := DubinsConfig{X: 0, Y: 0, Theta: 0}
	goal := DubinsConfig{X: 4, Y: 0, Theta: 0}

	path, err := PlanDubinsPath(start, goal, 1)
	if err != nil {
		t.Fatalf("PlanDubinsPath: %v", err)
	}
	if l := path.Length(); gomath.Abs(l-4) > 1e-9 {
		t.Errorf("straight path length %g, expected 4", l)
	}
}

func TestDubinsLowerBound(t *testing.T) {
	// The Dubins path can never be shorter than the straight-line
	// distance between the endpoints.
	r := rand.New(rand.NewSource(1))
	for range 100 {
		start := DubinsConfig{X: 10 * r.Float64(), Y: 10 * r.Float64(), Theta: 2 * gomath.Pi * r.Float64()}
		goal := DubinsConfig{X: 10 * r.Float64(), Y: 10 * r.Float64(), Theta: 2 * gomath.Pi * r.Float64()}
		radius := 0.5 + r.Float64()

		path, err := PlanDubinsPath(start, goal, radius)
		if err != nil {
			// Short hops inside the turning circle may be infeasible for
			// all six families.
			continue
		}

		dist := gomath.Hypot(goal.X-start.X, goal.Y-start.Y)
		if path.Length() < dist-1e-6 {
			t.Errorf("%v: length %g shorter than straight-line distance %g",
				path.Type, path.Length(), dist)
		}
	}
}

func TestDubinsSymmetricFamilies(t *testing.T) {
	// Mirroring a problem across the x axis swaps left and right turns
	// but preserves the optimal length.
	start := DubinsConfig{X: 0, Y: 0, Theta: gomath.Pi / 4}
	goal := DubinsConfig{X: 6, Y: 3, Theta: -gomath.Pi / 3}

	mirror := func(c DubinsConfig) DubinsConfig {
		return DubinsConfig{X: c.X, Y: -c.Y, Theta: math.Mod2Pi(-c.Theta)}
	}

	p0, err0 := PlanDubinsPath(start, goal, 1)
	p1, err1 := PlanDubinsPath(mirror(start), mirror(goal), 1)
	if err0 != nil || err1 != nil {
		t.Fatalf("PlanDubinsPath: %v / %v", err0, err1)
	}
	if gomath.Abs(p0.Length()-p1.Length()) > 1e-9 {
		t.Errorf("mirrored problem length %g, expected %g", p1.Length(), p0.Length())
	}
}

func TestAStarOpenGrid(t *testing.T) {
	g := MakeGrid(8, 8, nil)

	path, err := g.FindPath(GridCell{0, 0}, GridCell{4, 4})
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	// Pure diagonal: 4 steps at 1.4 each, 5 cells inclusive.
	if len(path) != 5 {
		t.Errorf("got %d cells, expected 5: %v", len(path), path)
	}
	if path[0] != (GridCell{0, 0}) || path[len(path)-1] != (GridCell{4, 4}) {
		t.Errorf("path endpoints wrong: %v", path)
	}
	if cost := pathCost(path); gomath.Abs(cost-4*1.4) > 1e-9 {
		t.Errorf("path cost %g, expected %g", cost, 4*1.4)
	}
}

func TestAStarDetour(t *testing.T) {
	// A wall with a single gap forces the path through the gap.
	var obstacles []GridCell
	for y := range 10 {
		if y != 7 {
			obstacles = append(obstacles, GridCell{5, y})
		}
	}
	g := MakeGrid(10, 10, obstacles)

	path, err := g.FindPath(GridCell{0, 0}, GridCell{9, 0})
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	for _, c := range path {
		if g.Blocked(c) {
			t.Errorf("path passes through obstacle %v", c)
		}
	}
	if !containsCell(path, GridCell{5, 7}) {
		t.Errorf("path does not pass through the gap: %v", path)
	}
}

func TestAStarUnreachable(t *testing.T) {
	// Enclose the goal corner of a 5x5 grid.
	obstacles := []GridCell{{3, 4}, {3, 3}, {4, 3}}
	g := MakeGrid(5, 5, obstacles)

	if _, err := g.FindPath(GridCell{0, 0}, GridCell{4, 4}); !errors.Is(err, ErrUnreachableGoal) {
		t.Errorf("got %v, expected ErrUnreachableGoal", err)
	}
}

func TestAStarInvalid(t *testing.T) {
	g := MakeGrid(5, 5, nil)
	if _, err := g.FindPath(GridCell{0, 0}, GridCell{5, 5}); !errors.Is(err, ErrInvalidGrid) {
		t.Errorf("got %v, expected ErrInvalidGrid", err)
	}
	if _, err := g.FindPath(GridCell{-1, 0}, GridCell{2, 2}); !errors.Is(err, ErrInvalidGrid) {
		t.Errorf("got %v, expected ErrInvalidGrid", err)
	}
}

func pathCost(path []GridCell) float64 {
	var cost float64
	for i := 1; i < len(path); i++ {
		dx := path[i][0] - path[i-1][0]
		dy := path[i][1] - path[i-1][1]
		if dx != 0 && dy != 0 {
			cost += 1.4
		} else {
			cost += 1.0
		}
	}
	return cost
}

func containsCell(path []GridCell, c GridCell) bool {
	for _, p := range path {
		if p == c {
			return true
		}
	}
	return false
}

func TestLawnmower(t *testing.T) {
	center := math.MakePoint2LL(39.5, -120.5)

	wps, err := Lawnmower(center, 400, 300, 50, 100, 0)
	if err != nil {
		t.Fatalf("Lawnmower: %v", err)
	}
	// int(300/50)+1 = 7 passes, two waypoints each.
	if len(wps) != 14 {
		t.Errorf("got %d waypoints, expected 14", len(wps))
	}

	for i, wp := range wps {
		if wp.Altitude != 100 {
			t.Errorf("waypoint %d altitude %g, expected 100", i, wp.Altitude)
		}
		if d := math.HaversineDistance(center, wp.Position()); d > 400 {
			t.Errorf("waypoint %d is %g m from center", i, d)
		}
	}

	// Alternating passes start where the previous one ended, so
	// consecutive pass boundaries share an endpoint's easting.
	d01 := math.HaversineDistance(wps[1].Position(), wps[2].Position())
	if d01 > 60 {
		t.Errorf("pass transition spans %g m, expected about the row spacing", d01)
	}

	if _, err := Lawnmower(center, -1, 300, 50, 100, 0); !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("got %v, expected ErrInvalidPattern", err)
	}
}

func TestSpiral(t *testing.T) {
	center := math.MakePoint2LL(39.5, -120.5)

	wps, err := Spiral(center, 500, 40, 120, 100)
	if err != nil {
		t.Fatalf("Spiral: %v", err)
	}
	if len(wps) != 100 {
		t.Errorf("got %d waypoints, expected 100", len(wps))
	}

	// Radius grows monotonically from the center.
	prev := -1.0
	for i, wp := range wps {
		d := math.HaversineDistance(center, wp.Position())
		if d < prev-1e-6 {
			t.Errorf("waypoint %d radius %g decreased from %g", i, d, prev)
		}
		if d > 500+1 {
			t.Errorf("waypoint %d radius %g exceeds max radius", i, d)
		}
		prev = d
	}
}

func TestSectorScan(t *testing.T) {
	center := math.MakePoint2LL(39.5, -120.5)

	wps, err := SectorScan(center, 300, 0, 90, 5, 80)
	if err != nil {
		t.Fatalf("SectorScan: %v", err)
	}
	if len(wps) != 10 {
		t.Errorf("got %d waypoints, expected 10", len(wps))
	}

	// Even indices are the centroid, odd the perimeter.
	for i := 0; i < len(wps); i += 2 {
		if d := math.HaversineDistance(center, wps[i].Position()); d > 1 {
			t.Errorf("waypoint %d is %g m from center, expected centroid", i, d)
		}
		if d := math.HaversineDistance(center, wps[i+1].Position()); gomath.Abs(d-300) > 3 {
			t.Errorf("waypoint %d radius %g, expected 300", i+1, d)
		}
	}

	if _, err := SectorScan(center, 300, 0, 90, 1, 80); !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("got %v, expected ErrInvalidPattern", err)
	}
}
