// agent/agent_test.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package agent

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/firewatch-uas/firewatch/bus"
	"github.com/firewatch-uas/firewatch/fleet"
	"github.com/firewatch-uas/firewatch/log"
	"github.com/firewatch-uas/firewatch/math"
	"github.com/firewatch-uas/firewatch/nav"
)

var simHome = math.MakePoint2LL(37.7749, -122.4194)

func makeSim(t *testing.T, cfg SimConfig) *SimVehicle {
	t.Helper()
	cfg.UAVID = "U1"
	cfg.Home = simHome
	return NewSimVehicle(cfg)
}

func gotoCommand(dist float64) bus.CommandMessage {
	wp := nav.MakeWaypoint(math.Offset2LL(simHome, 90, dist), 80)
	wp.Speed = 10
	return bus.CommandMessage{MissionID: "M1", Command: "goto", Waypoints: []nav.Waypoint{wp}}
}

func TestSimFliesMission(t *testing.T) {
	v := makeSim(t, SimConfig{DetectionRate: 1})

	if err := v.OnCommand(gotoCommand(500)); err != nil {
		t.Fatal(err)
	}

	seen := make(map[fleet.UAVStatus]bool)
	var detections int
	minBattery := 100.0
	for range 200 {
		u := v.Tick(time.Second)
		seen[fleet.UAVStatus(u.Telemetry.Status)] = true
		minBattery = min(minBattery, u.Telemetry.Battery)
		detections += len(u.Detections)
		for _, d := range u.Detections {
			if d.MissionID != "M1" || d.Confidence < 0.5 {
				t.Errorf("bad synthetic detection %+v", d)
			}
		}
	}

	for _, want := range []fleet.UAVStatus{fleet.UAVInMission, fleet.UAVReturning, fleet.UAVAvailable} {
		if !seen[want] {
			t.Errorf("vehicle never reported %s", want)
		}
	}
	if detections != 1 {
		t.Errorf("got %d detections, expected 1 at the mission waypoint", detections)
	}

	u := v.Tick(time.Second)
	if d := math.HaversineDistance(
		math.MakePoint2LL(u.Telemetry.Latitude, u.Telemetry.Longitude), simHome); d > 15 {
		t.Errorf("vehicle ended %.0f m from home", d)
	}
	if minBattery >= 100 {
		t.Error("flight drained no battery")
	}
}

func TestSimLowBatteryReturn(t *testing.T) {
	v := makeSim(t, SimConfig{Battery: lowBattery + 0.01})

	if err := v.OnCommand(gotoCommand(5000)); err != nil {
		t.Fatal(err)
	}

	u := v.Tick(time.Second)
	if u.Telemetry.Status != string(fleet.UAVReturning) {
		t.Errorf("status %s, expected low battery to force a return", u.Telemetry.Status)
	}
}

func TestSimCharging(t *testing.T) {
	v := makeSim(t, SimConfig{Battery: 50})

	u := v.Tick(10 * time.Second)
	if u.Telemetry.Battery <= 50 {
		t.Errorf("battery %g, expected ground charging", u.Telemetry.Battery)
	}
}

func TestSimCommands(t *testing.T) {
	v := makeSim(t, SimConfig{})

	if err := v.OnCommand(bus.CommandMessage{Command: "selfdestruct"}); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("got %v, expected ErrUnknownCommand", err)
	}
	if err := v.OnCommand(bus.CommandMessage{Command: "goto"}); !errors.Is(err, ErrNoWaypoints) {
		t.Errorf("got %v, expected ErrNoWaypoints", err)
	}

	if err := v.OnCommand(gotoCommand(500)); err != nil {
		t.Fatal(err)
	}
	if err := v.OnCommand(bus.CommandMessage{Command: "abort"}); err != nil {
		t.Fatal(err)
	}
	if u := v.Tick(time.Second); u.Telemetry.Status != string(fleet.UAVReturning) {
		t.Errorf("status %s, expected returning after abort", u.Telemetry.Status)
	}

	if err := v.OnCommand(bus.CommandMessage{Command: "land"}); err != nil {
		t.Fatal(err)
	}
	u := v.Tick(time.Second)
	if u.Telemetry.Status != string(fleet.UAVAvailable) || u.Telemetry.Altitude != 0 {
		t.Errorf("telemetry %+v, expected landed", u.Telemetry)
	}
}

type capturedPublish struct {
	Topic string
	Msg   any
}

type captureBus struct {
	mu        sync.Mutex
	published []capturedPublish
	handlers  map[string]bus.Handler
}

func (cb *captureBus) Publish(topic string, msg any) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.published = append(cb.published, capturedPublish{Topic: topic, Msg: msg})
	return nil
}

func (cb *captureBus) Subscribe(topic string, handler bus.Handler) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.handlers == nil {
		cb.handlers = make(map[string]bus.Handler)
	}
	cb.handlers[topic] = handler
	return nil
}

func TestAgentPublishes(t *testing.T) {
	cb := &captureBus{}
	v := makeSim(t, SimConfig{})
	a := New(cb, v, Config{UAVID: "U1"}, log.Discard())

	payload, _ := json.Marshal(gotoCommand(500))
	a.handleCommand(bus.CommandTopic("U1"), payload)
	a.handleCommand(bus.CommandTopic("U1"), []byte(`{"command":"warp"}`))

	a.step(time.Second)
	a.step(time.Second)

	var telemetry, status int
	for _, p := range cb.published {
		switch p.Topic {
		case bus.TelemetryTopic("U1"):
			telemetry++
			msg := p.Msg.(bus.TelemetryMessage)
			if msg.UAVID != "U1" || msg.Status != string(fleet.UAVInMission) {
				t.Errorf("unexpected telemetry %+v", msg)
			}
		case bus.StatusTopic("U1"):
			status++
		default:
			t.Errorf("unexpected topic %s", p.Topic)
		}
	}
	if telemetry != 2 {
		t.Errorf("got %d telemetry publishes, expected one per tick", telemetry)
	}
	if status != 1 {
		t.Errorf("got %d status publishes, expected one for the change to in_mission", status)
	}
}
