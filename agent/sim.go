// agent/sim.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package agent

import (
	"context"
	gomath "math"
	"math/rand"
	"sync"
	"time"

	"github.com/firewatch-uas/firewatch/bus"
	"github.com/firewatch-uas/firewatch/fleet"
	"github.com/firewatch-uas/firewatch/math"
	"github.com/firewatch-uas/firewatch/nav"
)

const (
	// Battery percent per second of flight and of ground charging.
	flightDrainRate = 0.05
	chargeRate      = 0.25

	// Below this battery level a flying vehicle abandons its mission and
	// returns home.
	lowBattery = 25

	simArrivalRadius = 10 // meters
)

type SimConfig struct {
	UAVID    string        `json:"uav_id"`
	Home     math.Point2LL `json:"home"`
	Battery  float64       `json:"battery"`
	Speed    float64       `json:"speed"` // default cruise, m/s
	Altitude float64       `json:"altitude"`

	// Probability of reporting a synthetic sighting at each mission
	// waypoint.
	DetectionRate float64 `json:"detection_rate"`
	Seed          int64   `json:"seed"`
}

func (c *SimConfig) SetDefaults() {
	if c.Battery == 0 {
		c.Battery = 100
	}
	if c.Speed == 0 {
		c.Speed = 12
	}
	if c.Altitude == 0 {
		c.Altitude = 80
	}
}

// SimVehicle is a software vehicle: it flies commanded waypoints at a
// constant speed, drains its battery in flight, recharges on the
// ground, and reports synthetic detections along mission patterns.
type SimVehicle struct {
	mu sync.Mutex

	cfg SimConfig
	rng *rand.Rand

	position  math.Point2LL
	altitude  float64
	battery   float64
	speed     float64
	heading   float64
	status    fleet.UAVStatus
	missionID string

	waypoints []nav.Waypoint
	wpIndex   int

	lastStatus fleet.UAVStatus
}

func NewSimVehicle(cfg SimConfig) *SimVehicle {
	cfg.SetDefaults()
	return &SimVehicle{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		position: cfg.Home,
		battery:  cfg.Battery,
		status:   fleet.UAVAvailable,
	}
}

func (v *SimVehicle) Connect(ctx context.Context) error { return nil }

func (v *SimVehicle) OnCommand(cmd bus.CommandMessage) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch cmd.Command {
	case "goto":
		if len(cmd.Waypoints) == 0 {
			return ErrNoWaypoints
		}
		v.waypoints = cmd.Waypoints
		v.wpIndex = 0
		v.missionID = cmd.MissionID
		v.status = fleet.UAVInMission
		v.speed = v.cfg.Speed
		if s := cmd.Waypoints[0].Speed; s > 0 {
			v.speed = s
		}

	case "return", "abort":
		v.returnHomeLocked()

	case "land":
		v.waypoints = nil
		v.altitude = 0
		v.speed = 0
		v.missionID = ""
		v.status = fleet.UAVAvailable

	default:
		return ErrUnknownCommand
	}
	return nil
}

func (v *SimVehicle) returnHomeLocked() {
	wp := nav.MakeWaypoint(v.cfg.Home, v.cfg.Altitude)
	wp.Speed = v.cfg.Speed
	v.waypoints = []nav.Waypoint{wp}
	v.wpIndex = 0
	v.speed = v.cfg.Speed
	v.status = fleet.UAVReturning
}

// Tick advances the vehicle by dt: one movement step toward the current
// waypoint, battery drain or charge, and the publishable snapshot.
func (v *SimVehicle) Tick(dt time.Duration) Update {
	v.mu.Lock()
	defer v.mu.Unlock()

	var detections []bus.DetectionMessage
	now := time.Now()

	if v.flying() {
		detections = v.advance(dt, now)
		v.battery = gomath.Max(0, v.battery-flightDrainRate*dt.Seconds())

		if v.battery < lowBattery && v.status == fleet.UAVInMission {
			v.returnHomeLocked()
		}
	} else {
		v.battery = gomath.Min(100, v.battery+chargeRate*dt.Seconds())
	}

	u := Update{
		Telemetry: &bus.TelemetryMessage{
			UAVID:     v.cfg.UAVID,
			Latitude:  v.position.Latitude(),
			Longitude: v.position.Longitude(),
			Altitude:  v.altitude,
			Battery:   v.battery,
			Speed:     v.speed,
			Heading:   v.heading,
			Status:    string(v.status),
			Timestamp: now,
		},
		Detections: detections,
	}
	if v.status != v.lastStatus {
		v.lastStatus = v.status
		connected := true
		u.Status = &bus.StatusMessage{
			UAVID:     v.cfg.UAVID,
			Status:    string(v.status),
			Connected: &connected,
		}
	}
	return u
}

func (v *SimVehicle) flying() bool {
	return v.status == fleet.UAVInMission || v.status == fleet.UAVReturning
}

// advance moves toward the current waypoint, consuming as many
// waypoints as the step covers.
func (v *SimVehicle) advance(dt time.Duration, now time.Time) []bus.DetectionMessage {
	var detections []bus.DetectionMessage

	remaining := v.speed * dt.Seconds()
	for remaining > 0 && v.wpIndex < len(v.waypoints) {
		wp := v.waypoints[v.wpIndex]
		target := wp.Position()

		d := math.HaversineDistance(v.position, target)
		if d > simArrivalRadius {
			v.heading = bearing(v.position, target)
			step := gomath.Min(remaining, d)
			v.position = math.Offset2LL(v.position, v.heading, step)
			if wp.Altitude > 0 {
				v.altitude = wp.Altitude
			}
			remaining -= step
			continue
		}

		// Waypoint reached.
		v.wpIndex++
		if v.status == fleet.UAVInMission && v.rng.Float64() < v.cfg.DetectionRate {
			detections = append(detections, bus.DetectionMessage{
				UAVID:       v.cfg.UAVID,
				MissionID:   v.missionID,
				ObjectClass: "smoke",
				Confidence:  0.5 + 0.5*v.rng.Float64(),
				Latitude:    v.position.Latitude(),
				Longitude:   v.position.Longitude(),
				Timestamp:   now,
			})
		}
	}

	if v.wpIndex >= len(v.waypoints) {
		switch v.status {
		case fleet.UAVInMission:
			// Pattern done; head home.
			v.returnHomeLocked()
		case fleet.UAVReturning:
			v.position = v.cfg.Home
			v.altitude = 0
			v.speed = 0
			v.missionID = ""
			v.status = fleet.UAVAvailable
		}
	}
	return detections
}

// bearing returns the initial course from p to q in degrees from north,
// computed in the local tangent plane.
func bearing(p, q math.Point2LL) float64 {
	m := math.LL2Meters(q, p)
	return math.NormalizeHeading(math.Degrees(gomath.Atan2(m[0], m[1])))
}
