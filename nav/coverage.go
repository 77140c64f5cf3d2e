// nav/coverage.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package nav

import (
	gomath "math"

	"github.com/firewatch-uas/firewatch/math"
)

// Waypoint is a single instruction along a mission path. Speed, Heading
// and Action are optional; zero values mean unset. Waypoints are
// immutable once attached to a mission.
type Waypoint struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Altitude  float64 `json:"alt"`
	Speed     float64 `json:"speed,omitempty"`
	Heading   float64 `json:"heading,omitempty"`
	Action    string  `json:"action,omitempty"`
}

func (w Waypoint) Position() math.Point2LL {
	return math.MakePoint2LL(w.Latitude, w.Longitude)
}

func MakeWaypoint(p math.Point2LL, altitude float64) Waypoint {
	return Waypoint{Latitude: p.Latitude(), Longitude: p.Longitude(), Altitude: altitude}
}

// The coverage generators below work in the local tangent plane around
// the pattern centroid and project back to lat-long with the
// meters-per-degree factors at the centroid latitude; they know nothing
// about airspace or obstacles. Combine with the grid planner when the
// region has known obstacles.

// Lawnmower generates alternating east/west passes covering a width x
// height meter rectangle centered at center, rotated by heading degrees,
// with the given row spacing.
func Lawnmower(center math.Point2LL, width, height, spacing, altitude, heading float64) ([]Waypoint, error) {
	if width <= 0 || height <= 0 || spacing <= 0 {
		return nil, ErrInvalidPattern
	}

	rotate := func(p [2]float64) [2]float64 {
		s, c := gomath.Sincos(math.Radians(heading))
		return [2]float64{c*p[0] + s*p[1], -s*p[0] + c*p[1]}
	}

	numPasses := int(height/spacing) + 1
	wps := make([]Waypoint, 0, 2*numPasses)
	for i := range numPasses {
		y := -height/2 + float64(i)*spacing

		xStart, xEnd := -width/2, width/2
		if i%2 == 1 {
			xStart, xEnd = xEnd, xStart
		}

		for _, x := range [2]float64{xStart, xEnd} {
			p := math.Meters2LL(rotate([2]float64{x, y}), center)
			wps = append(wps, MakeWaypoint(p, altitude))
		}
	}
	return wps, nil
}

// Spiral generates an Archimedean spiral r = a*theta with a =
// spacing/(2*pi), sampled at numPoints configurations out to maxRadius
// meters.
func Spiral(center math.Point2LL, maxRadius, spacing, altitude float64, numPoints int) ([]Waypoint, error) {
	if maxRadius <= 0 || spacing <= 0 || numPoints <= 0 {
		return nil, ErrInvalidPattern
	}

	a := spacing / (2 * gomath.Pi)
	maxTheta := maxRadius / a

	wps := make([]Waypoint, 0, numPoints)
	for i := range numPoints {
		theta := float64(i) / float64(numPoints) * maxTheta
		r := a * theta

		p := math.Meters2LL([2]float64{r * gomath.Cos(theta), r * gomath.Sin(theta)}, center)
		wps = append(wps, MakeWaypoint(p, altitude))
	}
	return wps, nil
}

// SectorScan generates numRadials out-and-back legs from center over the
// angular wedge [startAngle, endAngle] (degrees), alternating centroid
// and perimeter waypoints.
func SectorScan(center math.Point2LL, radius, startAngle, endAngle float64, numRadials int, altitude float64) ([]Waypoint, error) {
	if radius <= 0 || numRadials < 2 {
		return nil, ErrInvalidPattern
	}

	step := (endAngle - startAngle) / float64(numRadials-1)

	wps := make([]Waypoint, 0, 2*numRadials)
	for i := range numRadials {
		angle := math.Radians(startAngle + float64(i)*step)
		perimeter := math.Meters2LL([2]float64{radius * gomath.Cos(angle), radius * gomath.Sin(angle)}, center)

		wps = append(wps, MakeWaypoint(center, altitude))
		wps = append(wps, MakeWaypoint(perimeter, altitude))
	}
	return wps, nil
}
