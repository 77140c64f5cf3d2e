// fleet/mission.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package fleet

import (
	"log/slog"
	"time"

	"github.com/firewatch-uas/firewatch/nav"
)

type MissionStatus string

const (
	MissionPending   MissionStatus = "pending"
	MissionAssigned  MissionStatus = "assigned"
	MissionActive    MissionStatus = "active"
	MissionCompleted MissionStatus = "completed"
	MissionFailed    MissionStatus = "failed"
	MissionAborted   MissionStatus = "aborted"
)

// Terminal reports whether no further transitions are possible.
func (s MissionStatus) Terminal() bool {
	return s == MissionCompleted || s == MissionFailed || s == MissionAborted
}

// CanTransition reports whether the mission state machine permits the
// given transition. Abort is reachable from any non-terminal state; the
// rest follow pending -> assigned -> active -> completed | failed.
func (s MissionStatus) CanTransition(to MissionStatus) bool {
	if s.Terminal() {
		return false
	}
	switch to {
	case MissionAssigned:
		return s == MissionPending
	case MissionActive:
		return s == MissionAssigned
	case MissionCompleted, MissionFailed:
		return s == MissionActive || s == MissionAssigned
	case MissionAborted:
		return true
	}
	return false
}

// Mission is a scheduled unit of UAV work. The record is written once at
// creation; afterwards only status and timing fields change, and only
// through the dispatcher's state machine.
type Mission struct {
	ID        string         `json:"id"`
	UAVID     string         `json:"uav_id"`
	TileID    string         `json:"tile_id"`
	AlertID   string         `json:"alert_id"`
	Priority  int            `json:"priority"`
	Waypoints []nav.Waypoint `json:"waypoints"`
	Status    MissionStatus  `json:"status"`

	Created time.Time `json:"created"`
	Started time.Time `json:"started,omitzero"`
	Ended   time.Time `json:"ended,omitzero"`

	EstimatedDuration time.Duration `json:"estimated_duration"`
	ActualDuration    time.Duration `json:"actual_duration,omitempty"`
}

func (m Mission) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", m.ID),
		slog.String("uav", m.UAVID),
		slog.String("tile", m.TileID),
		slog.String("status", string(m.Status)),
		slog.Int("waypoints", len(m.Waypoints)))
}
