// bus/topics.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package bus

import "strings"

// Topic layout. Single-UAV topics embed the vehicle id; subscription
// patterns use the MQTT single-level wildcard.
const (
	TopicAlerts           = "satellite/alerts"
	TopicDetections       = "detections"
	TopicInferenceResults = "inference/results"

	TopicTelemetryPattern = "uav/+/telemetry"
	TopicStatusPattern    = "uav/+/status"
)

func CommandTopic(uavID string) string { return "commands/" + uavID }

func TelemetryTopic(uavID string) string { return "uav/" + uavID + "/telemetry" }

func StatusTopic(uavID string) string { return "uav/" + uavID + "/status" }

// TopicUAV extracts the vehicle id from a uav/<id>/... topic, returning
// "" if the topic has a different shape.
func TopicUAV(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) == 3 && parts[0] == "uav" {
		return parts[1]
	}
	return ""
}

// MatchTopic reports whether a concrete topic matches a subscription
// pattern with + and # wildcards.
func MatchTopic(pattern, topic string) bool {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")

	for i, p := range pp {
		if p == "#" {
			return true
		}
		if i >= len(tp) || (p != "+" && p != tp[i]) {
			return false
		}
	}
	return len(pp) == len(tp)
}
