// bus/bus_test.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package bus

import (
	"errors"
	"testing"
)

func TestTopicShapes(t *testing.T) {
	if got := CommandTopic("U1"); got != "commands/U1" {
		t.Errorf("CommandTopic: %s", got)
	}
	if got := TelemetryTopic("U1"); got != "uav/U1/telemetry" {
		t.Errorf("TelemetryTopic: %s", got)
	}
	if got := StatusTopic("U1"); got != "uav/U1/status" {
		t.Errorf("StatusTopic: %s", got)
	}

	for topic, want := range map[string]string{
		"uav/U7/telemetry":  "U7",
		"uav/U7/status":     "U7",
		"commands/U7":       "",
		"uav/U7":            "",
		"satellite/alerts":  "",
		"uav/U7/telemetry/": "",
	} {
		if got := TopicUAV(topic); got != want {
			t.Errorf("TopicUAV(%q) = %q, expected %q", topic, got, want)
		}
	}
}

func TestMatchTopic(t *testing.T) {
	for _, tc := range []struct {
		pattern, topic string
		match          bool
	}{
		{"uav/+/telemetry", "uav/U1/telemetry", true},
		{"uav/+/telemetry", "uav/U1/status", false},
		{"uav/+/telemetry", "uav/U1/telemetry/x", false},
		{"uav/#", "uav/U1/telemetry", true},
		{"satellite/alerts", "satellite/alerts", true},
		{"satellite/alerts", "satellite", false},
		{"#", "anything/at/all", true},
	} {
		if got := MatchTopic(tc.pattern, tc.topic); got != tc.match {
			t.Errorf("MatchTopic(%q, %q) = %v, expected %v", tc.pattern, tc.topic, got, tc.match)
		}
	}
}

func TestUnmarshalValidate(t *testing.T) {
	msg, err := UnmarshalValidate[AlertMessage]([]byte(`{
		"alert_id": "A1", "tile_id": "T10", "event_type": "smoke",
		"priority": 8, "confidence": 0.9, "latitude": 37.78,
		"longitude": -122.42, "severity": "high"}`))
	if err != nil {
		t.Fatalf("valid alert rejected: %v", err)
	}
	if msg.AlertID != "A1" || msg.Severity != "high" || msg.Priority != 8 {
		t.Errorf("decoded %+v", msg)
	}

	for name, payload := range map[string]string{
		"bad json":        `{`,
		"missing id":      `{"tile_id": "T10", "event_type": "smoke", "confidence": 0.5, "latitude": 0, "longitude": 0, "severity": "low"}`,
		"confidence > 1":  `{"alert_id": "A1", "tile_id": "T10", "event_type": "smoke", "confidence": 1.5, "latitude": 0, "longitude": 0, "severity": "low"}`,
		"latitude off":    `{"alert_id": "A1", "tile_id": "T10", "event_type": "smoke", "confidence": 0.5, "latitude": 91, "longitude": 0, "severity": "low"}`,
		"severity bogus":  `{"alert_id": "A1", "tile_id": "T10", "event_type": "smoke", "confidence": 0.5, "latitude": 0, "longitude": 0, "severity": "urgent"}`,
	} {
		if _, err := UnmarshalValidate[AlertMessage]([]byte(payload)); !errors.Is(err, ErrProtocolViolation) {
			t.Errorf("%s: got %v, expected ErrProtocolViolation", name, err)
		}
	}
}

func TestUnmarshalValidateCommand(t *testing.T) {
	cmd, err := UnmarshalValidate[CommandMessage]([]byte(`{
		"mission_id": "M1", "command": "goto",
		"waypoints": [{"lat": 37.78, "lon": -122.42, "alt": 60}]}`))
	if err != nil {
		t.Fatalf("valid command rejected: %v", err)
	}
	if len(cmd.Waypoints) != 1 || cmd.Waypoints[0].Altitude != 60 {
		t.Errorf("decoded %+v", cmd)
	}

	if _, err := UnmarshalValidate[CommandMessage]([]byte(`{"command": "explode"}`)); !errors.Is(err, ErrProtocolViolation) {
		t.Errorf("unknown command: got %v, expected ErrProtocolViolation", err)
	}
}
