// server/server_test.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/firewatch-uas/firewatch/fleet"
	"github.com/firewatch-uas/firewatch/log"
	"github.com/firewatch-uas/firewatch/math"
)

func TestSnapshotRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.snap")

	cfg := Config{
		SnapshotPath: path,
		Tiles: []fleet.Tile{fleet.MakeTile("T1", []math.Point2LL{
			math.MakePoint2LL(37.77, -122.43),
			math.MakePoint2LL(37.79, -122.43),
			math.MakePoint2LL(37.79, -122.41),
			math.MakePoint2LL(37.77, -122.41),
		}, 5)},
		UAVs: []fleet.UAV{{
			ID:       "U1",
			Name:     "Unit 1",
			Position: math.MakePoint2LL(37.7749, -122.4194),
			Home:     math.MakePoint2LL(37.7749, -122.4194),
			Battery:  100,
			Status:   fleet.UAVAvailable,
		}},
	}

	// The snapshot file doesn't exist yet, so this is a cold start.
	srv, err := New(ctx, cfg, log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	srv.writeSnapshot(ctx)

	// A coordinator with no seeds resumes from the snapshot alone.
	srv2, err := New(ctx, Config{SnapshotPath: path}, log.Discard())
	if err != nil {
		t.Fatal(err)
	}

	u, ok := srv2.registry.Get("U1")
	if !ok || u.Name != "Unit 1" || u.Battery != 100 {
		t.Fatalf("restored uav %+v, %v", u, ok)
	}
	if u.Connected {
		t.Error("restored uav should start disconnected")
	}
	if tile, ok := srv2.tiles.Get("T1"); !ok || tile.Priority != 5 {
		t.Errorf("restored tile %+v, %v", tile, ok)
	}
}
