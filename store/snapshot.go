// store/snapshot.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package store

import (
	"context"
	"os"
	"time"

	"github.com/firewatch-uas/firewatch/fleet"
	"github.com/firewatch-uas/firewatch/util"

	"github.com/vmihailenco/msgpack/v5"
)

// Snapshot is a point-in-time image of the coordination state, written
// as zstd-compressed msgpack. It backs fast restarts and offline
// inspection; the transactional store remains the durability source of
// record.
type Snapshot struct {
	Taken    time.Time
	Tiles    []fleet.Tile
	UAVs     []fleet.UAV
	Missions []fleet.Mission
	Alerts   []fleet.Alert
}

// TakeSnapshot assembles a snapshot from the store's current contents.
func TakeSnapshot(ctx context.Context, st Store) (Snapshot, error) {
	snap := Snapshot{Taken: time.Now()}

	var err error
	if snap.Tiles, err = st.Tiles(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.UAVs, err = st.UAVs(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Missions, err = st.ActiveMissions(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Alerts, err = st.PendingAlerts(ctx); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Write serializes the snapshot to the given path. The file is written
// to a temporary name and renamed so readers never see a partial
// snapshot.
func (s Snapshot) Write(path string) error {
	b, err := msgpack.Marshal(s)
	if err != nil {
		return err
	}
	if b, err = util.ZstdCompress(b); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadSnapshot loads a snapshot previously written with Write.
func ReadSnapshot(path string) (Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	if b, err = util.ZstdDecompress(b); err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	err = msgpack.Unmarshal(b, &snap)
	return snap, err
}
