// fleet/detection.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package fleet

import (
	"time"

	"github.com/firewatch-uas/firewatch/math"
)

// Detection is a single object sighting reported by a UAV or the
// inference stage. Append-only.
type Detection struct {
	ID          string        `json:"id"`
	UAVID       string        `json:"uav_id"`
	MissionID   string        `json:"mission_id,omitempty"`
	ObjectClass string        `json:"object_class"`
	Confidence  float64       `json:"confidence"`
	Position    math.Point2LL `json:"position"`
	BBox        []float64     `json:"bbox,omitempty"`
	EvidenceURL string        `json:"evidence_url,omitempty"`
	Created     time.Time     `json:"created"`
}

// TelemetrySample is one applied telemetry report. Append-only and
// ring-buffered in memory.
type TelemetrySample struct {
	UAVID     string        `json:"uav_id"`
	Position  math.Point2LL `json:"position"`
	Altitude  float64       `json:"altitude"`
	Battery   float64       `json:"battery"`
	Speed     float64       `json:"speed"`
	Heading   float64       `json:"heading"`
	Status    UAVStatus     `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
}
