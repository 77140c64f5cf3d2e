// store/store.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package store

import (
	"context"
	"errors"
	"time"

	"github.com/firewatch-uas/firewatch/fleet"
	"github.com/firewatch-uas/firewatch/util"
)

var (
	ErrNotFound = errors.New("Record not found")
)

// writeTimeout bounds every persistent write issued through the journal
// and the snapshotter.
const writeTimeout = 5 * time.Second

// Store is the persistence boundary for the coordinator. In-memory
// state is authoritative at runtime; the store provides durability and
// crash recovery. Save operations are upserts keyed on the record id.
type Store interface {
	SaveTile(ctx context.Context, tile fleet.Tile) error
	Tiles(ctx context.Context) ([]fleet.Tile, error)

	SaveUAV(ctx context.Context, uav fleet.UAV) error
	UAVs(ctx context.Context) ([]fleet.UAV, error)

	SaveMission(ctx context.Context, m fleet.Mission) error
	Mission(ctx context.Context, id string) (fleet.Mission, error)
	ActiveMissions(ctx context.Context) ([]fleet.Mission, error)

	SaveAlert(ctx context.Context, a fleet.Alert) error
	Alert(ctx context.Context, id string) (fleet.Alert, error)
	PendingAlerts(ctx context.Context) ([]fleet.Alert, error)

	SaveDetection(ctx context.Context, d fleet.Detection) error
	Detections(ctx context.Context, missionID string) ([]fleet.Detection, error)

	SaveTelemetry(ctx context.Context, s fleet.TelemetrySample) error
	Telemetry(ctx context.Context, uavID string, n int) ([]fleet.TelemetrySample, error)

	Close() error
}

// UAVJournal adapts a Store to the registry's synchronous journal,
// applying the write deadline and bounded retry that direct registry
// callers shouldn't have to think about.
type UAVJournal struct {
	st Store
}

func NewUAVJournal(st Store) *UAVJournal {
	return &UAVJournal{st: st}
}

func (j *UAVJournal) JournalUAV(uav fleet.UAV) error {
	return util.Retry(context.Background(), 3, 250*time.Millisecond, 2*time.Second, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		return j.st.SaveUAV(ctx, uav)
	})
}
