// bus/messages.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/firewatch-uas/firewatch/nav"

	"github.com/go-playground/validator/v10"
)

// Wire shapes for the bus topics. Validation happens at the ingest
// boundary: a payload that unmarshals but fails validation is a protocol
// violation and is dropped by the caller, never propagated.

var validate = validator.New()

// AlertMessage arrives on satellite/alerts.
type AlertMessage struct {
	AlertID    string         `json:"alert_id" validate:"required"`
	TileID     string         `json:"tile_id" validate:"required"`
	EventType  string         `json:"event_type" validate:"required"`
	Priority   int            `json:"priority" validate:"gte=0"`
	Confidence float64        `json:"confidence" validate:"gte=0,lte=1"`
	Latitude   float64        `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude  float64        `json:"longitude" validate:"gte=-180,lte=180"`
	Severity   string         `json:"severity" validate:"required,oneof=low medium high critical"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// CommandMessage is published on commands/<uav_id>.
type CommandMessage struct {
	MissionID string         `json:"mission_id,omitempty"`
	Command   string         `json:"command" validate:"required,oneof=goto return land abort"`
	Waypoints []nav.Waypoint `json:"waypoints,omitempty"`
}

// TelemetryMessage arrives on uav/<uav_id>/telemetry.
type TelemetryMessage struct {
	UAVID     string    `json:"uav_id" validate:"required"`
	Latitude  float64   `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64   `json:"longitude" validate:"gte=-180,lte=180"`
	Altitude  float64   `json:"altitude"`
	Battery   float64   `json:"battery" validate:"gte=0,lte=100"`
	Speed     float64   `json:"speed" validate:"gte=0"`
	Heading   float64   `json:"heading"`
	Status    string    `json:"status" validate:"required"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

// StatusMessage arrives on uav/<uav_id>/status.
type StatusMessage struct {
	UAVID     string `json:"uav_id" validate:"required"`
	Status    string `json:"status" validate:"required"`
	Connected *bool  `json:"connected,omitempty"`
}

// DetectionMessage arrives on detections and inference/results.
type DetectionMessage struct {
	UAVID       string    `json:"uav_id" validate:"required"`
	MissionID   string    `json:"mission_id,omitempty"`
	ObjectClass string    `json:"object_class" validate:"required"`
	Confidence  float64   `json:"confidence" validate:"gte=0,lte=1"`
	Latitude    float64   `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude   float64   `json:"longitude" validate:"gte=-180,lte=180"`
	BBox        []float64 `json:"bbox,omitempty" validate:"omitempty,len=4"`
	Timestamp   time.Time `json:"timestamp" validate:"required"`

	// Optional captured frame, base64 on the wire. Archived to the
	// evidence store, never the relational one.
	Frame []byte `json:"frame,omitempty"`
}

// UnmarshalValidate decodes a JSON payload into T and validates it,
// wrapping failures as ErrProtocolViolation.
func UnmarshalValidate[T any](payload []byte) (T, error) {
	var msg T
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	if err := validate.Struct(msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	return msg, nil
}
