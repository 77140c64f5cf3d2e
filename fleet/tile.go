// fleet/tile.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package fleet

import (
	gomath "math"
	"sync"

	"github.com/firewatch-uas/firewatch/math"
	"github.com/firewatch-uas/firewatch/util"

	"github.com/mmp/earcut-go"
)

type TileStatus string

const (
	TileUnmonitored   TileStatus = "unmonitored"
	TileMonitored     TileStatus = "monitored"
	TileInvestigating TileStatus = "investigating"
)

// Tile is a polygonal region of the monitored area. Tiles are created at
// bootstrap and never destroyed; only their status changes at runtime.
type Tile struct {
	ID       string          `json:"id"`
	Polygon  []math.Point2LL `json:"polygon"`
	Centroid math.Point2LL   `json:"centroid"`
	Priority int             `json:"priority"`
	Status   TileStatus      `json:"status"`
}

func MakeTile(id string, polygon []math.Point2LL, priority int) Tile {
	return Tile{
		ID:       id,
		Polygon:  polygon,
		Centroid: polygonCentroid(polygon),
		Priority: priority,
		Status:   TileUnmonitored,
	}
}

func polygonCentroid(poly []math.Point2LL) math.Point2LL {
	var c math.Point2LL
	for _, p := range poly {
		c = math.Add2(c, p)
	}
	return math.Scale2(c, 1/max(1, float64(len(poly)))) // (0,0) if there are no verts
}

// AreaSqMeters returns the tile's area, computed by triangulating the
// polygon in the local tangent plane around its centroid. Handles
// non-convex tiles.
func (t *Tile) AreaSqMeters() float64 {
	if len(t.Polygon) < 3 {
		return 0
	}

	vertices := make([]earcut.Vertex, len(t.Polygon))
	for i, p := range t.Polygon {
		vertices[i].P = math.LL2Meters(p, t.Centroid)
	}

	var area float64
	for _, tri := range earcut.Triangulate(earcut.Polygon{Rings: [][]earcut.Vertex{vertices}}) {
		a, b, c := tri.Vertices[0].P, tri.Vertices[1].P, tri.Vertices[2].P
		area += gomath.Abs((b[0]-a[0])*(c[1]-a[1])-(c[0]-a[0])*(b[1]-a[1])) / 2
	}
	return area
}

// Contains reports whether the point lies inside the tile polygon, by
// ray crossing in lat-long space.
func (t *Tile) Contains(p math.Point2LL) bool {
	inside := false
	n := len(t.Polygon)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := t.Polygon[i], t.Polygon[j]
		if (a[1] > p[1]) != (b[1] > p[1]) &&
			p[0] < (b[0]-a[0])*(p[1]-a[1])/(b[1]-a[1])+a[0] {
			inside = !inside
		}
	}
	return inside
}

///////////////////////////////////////////////////////////////////////////
// TileSet

// TileSet holds the monitored tiles for the lifetime of the process.
// Tiles are seeded at bootstrap; only status changes afterwards.
type TileSet struct {
	mu    sync.Mutex
	tiles map[string]*Tile
}

func NewTileSet(tiles []Tile) *TileSet {
	ts := &TileSet{tiles: make(map[string]*Tile, len(tiles))}
	for _, tile := range tiles {
		t := tile
		ts.tiles[t.ID] = &t
	}
	return ts
}

func (ts *TileSet) Get(id string) (Tile, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	t, ok := ts.tiles[id]
	if !ok {
		return Tile{}, false
	}
	return *t, true
}

func (ts *TileSet) SetStatus(id string, status TileStatus) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	t, ok := ts.tiles[id]
	if !ok {
		return ErrNoSuchTile
	}
	t.Status = status
	return nil
}

// Snapshot returns copies of all tiles, sorted by id.
func (ts *TileSet) Snapshot() []Tile {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ids := util.SortedMapKeys(ts.tiles)
	return util.MapSlice(ids, func(id string) Tile { return *ts.tiles[id] })
}

// FindContaining returns the tile containing the given point, if any.
func (ts *TileSet) FindContaining(p math.Point2LL) (Tile, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	for _, id := range util.SortedMapKeys(ts.tiles) {
		if t := ts.tiles[id]; t.Contains(p) {
			return *t, true
		}
	}
	return Tile{}, false
}
