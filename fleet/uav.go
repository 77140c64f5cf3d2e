// fleet/uav.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package fleet

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/firewatch-uas/firewatch/math"
)

type UAVStatus string

const (
	UAVAvailable   UAVStatus = "available"
	UAVAssigned    UAVStatus = "assigned"
	UAVInMission   UAVStatus = "in_mission"
	UAVReturning   UAVStatus = "returning"
	UAVCharging    UAVStatus = "charging"
	UAVUnreachable UAVStatus = "unreachable"
)

// HasMission reports whether the status implies an active mission
// reference.
func (s UAVStatus) HasMission() bool {
	return s == UAVAssigned || s == UAVInMission || s == UAVReturning
}

// UAV is the authoritative record for a single vehicle. It is owned by
// the Registry; all mutation goes through Registry.Update so that the
// invariants below hold at all times.
type UAV struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Position     math.Point2LL `json:"position"`
	Altitude     float64       `json:"altitude"`
	Battery      float64       `json:"battery"`
	Speed        float64       `json:"speed"`
	Heading      float64       `json:"heading"`
	Status       UAVStatus     `json:"status"`
	MissionID    string        `json:"mission_id,omitempty"`
	Home         math.Point2LL `json:"home"`
	Capabilities []string      `json:"capabilities,omitempty"`
	Connected    bool          `json:"connected"`
	LastSeen     time.Time     `json:"last_seen"`
}

// CheckInvariants validates the record's internal consistency: a UAV
// holds a mission reference exactly when its status says so, and the
// battery stays in [0, 100].
func (u *UAV) CheckInvariants() error {
	if u.MissionID != "" && !u.Status.HasMission() {
		return fmt.Errorf("uav %s: mission %s held with status %s: %w",
			u.ID, u.MissionID, u.Status, ErrStateInvariant)
	}
	if u.MissionID == "" && u.Status.HasMission() {
		return fmt.Errorf("uav %s: status %s without a mission: %w", u.ID, u.Status, ErrStateInvariant)
	}
	if u.Battery < 0 || u.Battery > 100 {
		return fmt.Errorf("uav %s: battery %g out of range: %w", u.ID, u.Battery, ErrStateInvariant)
	}
	return nil
}

func (u UAV) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", u.ID),
		slog.String("status", string(u.Status)),
		slog.Float64("battery", u.Battery),
		slog.String("position", u.Position.DDString()),
		slog.String("mission", u.MissionID))
}
