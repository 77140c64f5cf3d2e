// store/mem.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package store

import (
	"context"
	"sync"

	"github.com/firewatch-uas/firewatch/fleet"
	"github.com/firewatch-uas/firewatch/util"
)

// telemetryRingSize bounds the per-UAV telemetry history held in memory.
const telemetryRingSize = 1024

// MemStore is the in-memory Store used for tests and broker-less
// development runs. Contents do not survive a restart.
type MemStore struct {
	mu         sync.Mutex
	tiles      map[string]fleet.Tile
	uavs       map[string]fleet.UAV
	missions   map[string]fleet.Mission
	alerts     map[string]fleet.Alert
	detections []fleet.Detection
	telemetry  map[string]*util.RingBuffer[fleet.TelemetrySample]
}

func NewMemStore() *MemStore {
	return &MemStore{
		tiles:     make(map[string]fleet.Tile),
		uavs:      make(map[string]fleet.UAV),
		missions:  make(map[string]fleet.Mission),
		alerts:    make(map[string]fleet.Alert),
		telemetry: make(map[string]*util.RingBuffer[fleet.TelemetrySample]),
	}
}

func (s *MemStore) SaveTile(ctx context.Context, tile fleet.Tile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiles[tile.ID] = tile
	return nil
}

func (s *MemStore) Tiles(ctx context.Context) ([]fleet.Tile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.tiles), nil
}

func (s *MemStore) SaveUAV(ctx context.Context, uav fleet.UAV) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uavs[uav.ID] = uav
	return nil
}

func (s *MemStore) UAVs(ctx context.Context) ([]fleet.UAV, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.uavs), nil
}

func (s *MemStore) SaveMission(ctx context.Context, m fleet.Mission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missions[m.ID] = m
	return nil
}

func (s *MemStore) Mission(ctx context.Context, id string) (fleet.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.missions[id]
	if !ok {
		return fleet.Mission{}, ErrNotFound
	}
	return m, nil
}

func (s *MemStore) ActiveMissions(ctx context.Context) ([]fleet.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return util.FilterSlice(sortedValues(s.missions),
		func(m fleet.Mission) bool { return !m.Status.Terminal() }), nil
}

func (s *MemStore) SaveAlert(ctx context.Context, a fleet.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[a.ID] = a
	return nil
}

func (s *MemStore) Alert(ctx context.Context, id string) (fleet.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return fleet.Alert{}, ErrNotFound
	}
	return a, nil
}

func (s *MemStore) PendingAlerts(ctx context.Context) ([]fleet.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return util.FilterSlice(sortedValues(s.alerts), func(a fleet.Alert) bool {
		return a.Status == fleet.AlertNew || a.Status == fleet.AlertQueued
	}), nil
}

func (s *MemStore) SaveDetection(ctx context.Context, d fleet.Detection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detections = append(s.detections, d)
	return nil
}

func (s *MemStore) Detections(ctx context.Context, missionID string) ([]fleet.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return util.FilterSlice(s.detections,
		func(d fleet.Detection) bool { return d.MissionID == missionID }), nil
}

func (s *MemStore) SaveTelemetry(ctx context.Context, sample fleet.TelemetrySample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rb, ok := s.telemetry[sample.UAVID]
	if !ok {
		rb = util.NewRingBuffer[fleet.TelemetrySample](telemetryRingSize)
		s.telemetry[sample.UAVID] = rb
	}
	rb.Add(sample)
	return nil
}

func (s *MemStore) Telemetry(ctx context.Context, uavID string, n int) ([]fleet.TelemetrySample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rb, ok := s.telemetry[uavID]
	if !ok {
		return nil, nil
	}

	// Most recent n samples, oldest first.
	start := max(0, rb.Size()-n)
	var samples []fleet.TelemetrySample
	for i := start; i < rb.Size(); i++ {
		samples = append(samples, rb.Get(i))
	}
	return samples, nil
}

func (s *MemStore) Close() error { return nil }

func sortedValues[V any](m map[string]V) []V {
	return util.MapSlice(util.SortedMapKeys(m), func(id string) V { return m[id] })
}
