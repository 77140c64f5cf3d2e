// math/latlong.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	"fmt"
	gomath "math"
)

// EarthRadiusMeters is the spherical-earth radius used for great-circle
// distances.
const EarthRadiusMeters = 6371000

// MetersPerDegreeLatitude is the (latitude-independent) length of one
// degree of latitude on the spherical earth.
const MetersPerDegreeLatitude = 111320.0

// Point2LL represents a 2D point on the Earth in latitude-longitude.
// Important: 0 (x) is longitude, 1 (y) is latitude.
type Point2LL [2]float64

func MakePoint2LL(latitude, longitude float64) Point2LL {
	return Point2LL{longitude, latitude}
}

func (p Point2LL) Longitude() float64 {
	return p[0]
}

func (p Point2LL) Latitude() float64 {
	return p[1]
}

func (p Point2LL) IsZero() bool {
	return p[0] == 0 && p[1] == 0
}

// DDString returns the position in decimal degrees, e.g.:
// (39.860901, -75.274864)
func (p Point2LL) DDString() string {
	return fmt.Sprintf("(%f, %f)", p[1], p[0]) // latitude, longitude
}

// Valid reports whether the point lies on the Earth.
func (p Point2LL) Valid() bool {
	return p[1] >= -90 && p[1] <= 90 && p[0] >= -180 && p[0] <= 180
}

// HaversineDistance returns the great-circle distance in meters between
// two lat-long points.
func HaversineDistance(a, b Point2LL) float64 {
	// https://www.movable-type.co.uk/scripts/latlong.html
	lat1, lon1 := Radians(a[1]), Radians(a[0])
	lat2, lon2 := Radians(b[1]), Radians(b[0])
	dlat, dlon := lat2-lat1, lon2-lon1

	x := Sqr(gomath.Sin(dlat/2)) + gomath.Cos(lat1)*gomath.Cos(lat2)*Sqr(gomath.Sin(dlon/2))
	c := 2 * gomath.Atan2(gomath.Sqrt(x), gomath.Sqrt(1-x))
	return EarthRadiusMeters * c
}

// MetersPerDegreeLongitude gives the length of a degree of longitude at
// the given latitude.
func MetersPerDegreeLongitude(latitude float64) float64 {
	return MetersPerDegreeLatitude * gomath.Cos(Radians(latitude))
}

// LL2Meters converts p to local-tangent-plane meter coordinates (x east,
// y north) around the given center, under a small-angle approximation.
func LL2Meters(p Point2LL, center Point2LL) [2]float64 {
	return [2]float64{
		(p[0] - center[0]) * MetersPerDegreeLongitude(center[1]),
		(p[1] - center[1]) * MetersPerDegreeLatitude,
	}
}

// Meters2LL converts local-tangent-plane meter coordinates around center
// back to lat-long.
func Meters2LL(m [2]float64, center Point2LL) Point2LL {
	return Point2LL{
		center[0] + m[0]/MetersPerDegreeLongitude(center[1]),
		center[1] + m[1]/MetersPerDegreeLatitude,
	}
}

// Offset2LL returns the point at distance dist meters along the vector
// with heading hdg degrees (0 = north) from the given point. It assumes a
// (locally) flat earth.
func Offset2LL(p Point2LL, hdg float64, dist float64) Point2LL {
	h := Radians(hdg)
	v := [2]float64{gomath.Sin(h) * dist, gomath.Cos(h) * dist}
	return Meters2LL(v, p)
}
