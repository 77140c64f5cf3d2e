// store/sql.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/firewatch-uas/firewatch/fleet"
	"github.com/firewatch-uas/firewatch/log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Each table carries the columns we filter on plus the full record as
// JSONB; the Go structs are the schema of record. Geometry is WGS84
// lat-long inside the JSON. Create-if-absent: no migration machinery.
const schema = `
CREATE TABLE IF NOT EXISTS tiles (
    id     TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    record JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS uavs (
    id     TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    record JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS missions (
    id     TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    record JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS alerts (
    id     TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    record JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS detections (
    id         TEXT PRIMARY KEY,
    mission_id TEXT NOT NULL DEFAULT '',
    record     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS detections_mission ON detections (mission_id);
CREATE TABLE IF NOT EXISTS telemetry (
    uav_id TEXT NOT NULL,
    ts     TIMESTAMPTZ NOT NULL,
    record JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS telemetry_uav_ts ON telemetry (uav_id, ts);
`

// SQLStore is the Postgres-backed Store.
type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(ctx context.Context, dsn string, lg *log.Logger) (*SQLStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, err
	}

	lg.Infof("store: connected to postgres")
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func upsert(ctx context.Context, db *sqlx.DB, table, id, status string, record any) error {
	rec, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO `+table+` (id, status, record) VALUES ($1, $2, $3)
         ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, record = EXCLUDED.record`,
		id, status, rec)
	return err
}

func queryRecords[T any](ctx context.Context, db *sqlx.DB, query string, args ...any) ([]T, error) {
	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []T
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func queryRecord[T any](ctx context.Context, db *sqlx.DB, query string, args ...any) (T, error) {
	var rec T
	var raw []byte
	if err := db.QueryRowxContext(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, ErrNotFound
		}
		return rec, err
	}
	return rec, json.Unmarshal(raw, &rec)
}

func (s *SQLStore) SaveTile(ctx context.Context, tile fleet.Tile) error {
	return upsert(ctx, s.db, "tiles", tile.ID, string(tile.Status), tile)
}

func (s *SQLStore) Tiles(ctx context.Context) ([]fleet.Tile, error) {
	return queryRecords[fleet.Tile](ctx, s.db, `SELECT record FROM tiles ORDER BY id`)
}

func (s *SQLStore) SaveUAV(ctx context.Context, uav fleet.UAV) error {
	return upsert(ctx, s.db, "uavs", uav.ID, string(uav.Status), uav)
}

func (s *SQLStore) UAVs(ctx context.Context) ([]fleet.UAV, error) {
	return queryRecords[fleet.UAV](ctx, s.db, `SELECT record FROM uavs ORDER BY id`)
}

func (s *SQLStore) SaveMission(ctx context.Context, m fleet.Mission) error {
	return upsert(ctx, s.db, "missions", m.ID, string(m.Status), m)
}

func (s *SQLStore) Mission(ctx context.Context, id string) (fleet.Mission, error) {
	return queryRecord[fleet.Mission](ctx, s.db, `SELECT record FROM missions WHERE id = $1`, id)
}

func (s *SQLStore) ActiveMissions(ctx context.Context) ([]fleet.Mission, error) {
	return queryRecords[fleet.Mission](ctx, s.db,
		`SELECT record FROM missions WHERE status NOT IN ('completed', 'failed', 'aborted') ORDER BY id`)
}

func (s *SQLStore) SaveAlert(ctx context.Context, a fleet.Alert) error {
	return upsert(ctx, s.db, "alerts", a.ID, string(a.Status), a)
}

func (s *SQLStore) Alert(ctx context.Context, id string) (fleet.Alert, error) {
	return queryRecord[fleet.Alert](ctx, s.db, `SELECT record FROM alerts WHERE id = $1`, id)
}

func (s *SQLStore) PendingAlerts(ctx context.Context) ([]fleet.Alert, error) {
	return queryRecords[fleet.Alert](ctx, s.db,
		`SELECT record FROM alerts WHERE status IN ('new', 'queued') ORDER BY id`)
}

func (s *SQLStore) SaveDetection(ctx context.Context, d fleet.Detection) error {
	rec, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO detections (id, mission_id, record) VALUES ($1, $2, $3)
         ON CONFLICT (id) DO NOTHING`,
		d.ID, d.MissionID, rec)
	return err
}

func (s *SQLStore) Detections(ctx context.Context, missionID string) ([]fleet.Detection, error) {
	return queryRecords[fleet.Detection](ctx, s.db,
		`SELECT record FROM detections WHERE mission_id = $1 ORDER BY id`, missionID)
}

func (s *SQLStore) SaveTelemetry(ctx context.Context, sample fleet.TelemetrySample) error {
	rec, err := json.Marshal(sample)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO telemetry (uav_id, ts, record) VALUES ($1, $2, $3)`,
		sample.UAVID, sample.Timestamp, rec)
	return err
}

func (s *SQLStore) Telemetry(ctx context.Context, uavID string, n int) ([]fleet.TelemetrySample, error) {
	samples, err := queryRecords[fleet.TelemetrySample](ctx, s.db,
		`SELECT record FROM telemetry WHERE uav_id = $1 ORDER BY ts DESC LIMIT $2`, uavID, n)
	if err != nil {
		return nil, err
	}

	// Newest-first from the query; callers expect oldest first.
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
	return samples, nil
}
