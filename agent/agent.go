// agent/agent.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package agent runs the vehicle side of the system: it connects a
// vehicle backend to the bus, publishes its telemetry and status, and
// forwards mission commands to it. The simulated backend flies missions
// in software; real vehicles plug in through the same Vehicle contract.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/firewatch-uas/firewatch/bus"
	"github.com/firewatch-uas/firewatch/log"
)

// Vehicle is the capability contract a backend implements. Tick and
// OnCommand are called from different goroutines; implementations
// synchronize internally.
type Vehicle interface {
	// Connect establishes the link to the vehicle hardware (a no-op for
	// the simulator).
	Connect(ctx context.Context) error

	// Tick advances the vehicle by dt and returns what to publish.
	Tick(dt time.Duration) Update

	// OnCommand applies a mission command.
	OnCommand(cmd bus.CommandMessage) error
}

// Update is a vehicle's output for one tick. Telemetry is published
// every tick; Status only when the vehicle's state changed.
type Update struct {
	Telemetry  *bus.TelemetryMessage
	Status     *bus.StatusMessage
	Detections []bus.DetectionMessage
}

// Bus is the slice of the bus client the agent needs.
type Bus interface {
	Publish(topic string, msg any) error
	Subscribe(topic string, handler bus.Handler) error
}

type Config struct {
	UAVID        string        `json:"uav_id"`
	TickInterval time.Duration `json:"tick_interval"`
}

func (c *Config) SetDefaults() {
	if c.TickInterval == 0 {
		c.TickInterval = time.Second
	}
}

type Agent struct {
	bc  Bus
	v   Vehicle
	cfg Config
	lg  *log.Logger
}

func New(bc Bus, v Vehicle, cfg Config, lg *log.Logger) *Agent {
	cfg.SetDefaults()
	return &Agent{bc: bc, v: v, cfg: cfg, lg: lg}
}

// Run drives the vehicle until the context is canceled, announcing
// connection on entry and disconnection on exit.
func (a *Agent) Run(ctx context.Context) error {
	defer a.lg.CatchAndReportCrash()

	if err := a.v.Connect(ctx); err != nil {
		return fmt.Errorf("agent %s: connecting vehicle: %w", a.cfg.UAVID, err)
	}
	if err := a.bc.Subscribe(bus.CommandTopic(a.cfg.UAVID), a.handleCommand); err != nil {
		return fmt.Errorf("agent %s: subscribing: %w", a.cfg.UAVID, err)
	}
	a.publishConnected(true)

	ticker := time.NewTicker(a.cfg.TickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			a.publishConnected(false)
			return nil
		case now := <-ticker.C:
			a.step(now.Sub(last))
			last = now
		}
	}
}

func (a *Agent) handleCommand(topic string, payload []byte) {
	cmd, err := bus.UnmarshalValidate[bus.CommandMessage](payload)
	if err != nil {
		a.lg.Warnf("agent %s: %s: %v", a.cfg.UAVID, topic, err)
		return
	}

	a.lg.Infof("agent %s: command %s, mission %s, %d waypoints", a.cfg.UAVID,
		cmd.Command, cmd.MissionID, len(cmd.Waypoints))
	if err := a.v.OnCommand(cmd); err != nil {
		a.lg.Warnf("agent %s: command %s: %v", a.cfg.UAVID, cmd.Command, err)
	}
}

func (a *Agent) step(dt time.Duration) {
	u := a.v.Tick(dt)

	if u.Telemetry != nil {
		if err := a.bc.Publish(bus.TelemetryTopic(a.cfg.UAVID), *u.Telemetry); err != nil {
			a.lg.Warnf("agent %s: publishing telemetry: %v", a.cfg.UAVID, err)
		}
	}
	if u.Status != nil {
		if err := a.bc.Publish(bus.StatusTopic(a.cfg.UAVID), *u.Status); err != nil {
			a.lg.Warnf("agent %s: publishing status: %v", a.cfg.UAVID, err)
		}
	}
	for _, d := range u.Detections {
		if err := a.bc.Publish(bus.TopicInferenceResults, d); err != nil {
			a.lg.Warnf("agent %s: publishing detection: %v", a.cfg.UAVID, err)
		}
	}
}

func (a *Agent) publishConnected(connected bool) {
	status := "available"
	if !connected {
		status = "unreachable"
	}
	if err := a.bc.Publish(bus.StatusTopic(a.cfg.UAVID), bus.StatusMessage{
		UAVID:     a.cfg.UAVID,
		Status:    status,
		Connected: &connected,
	}); err != nil {
		a.lg.Warnf("agent %s: publishing status: %v", a.cfg.UAVID, err)
	}
}
