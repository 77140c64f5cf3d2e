// ops/telemetry.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package ops

import (
	"context"
	"sync"
	"time"

	"github.com/firewatch-uas/firewatch/bus"
	"github.com/firewatch-uas/firewatch/fleet"
	"github.com/firewatch-uas/firewatch/log"
	"github.com/firewatch-uas/firewatch/math"
	"github.com/firewatch-uas/firewatch/store"
	"github.com/firewatch-uas/firewatch/util"
)

type TelemetryConfig struct {
	// Samples are coalesced to the most recent per UAV and applied once
	// per interval; 100 ms caps the applied rate at 10 Hz per vehicle.
	CoalesceInterval time.Duration `json:"coalesce_interval"`

	// A UAV within this many meters of a waypoint has arrived at it.
	ArrivalRadius float64 `json:"arrival_radius"`

	// A UAV silent for longer than this is quarantined as unreachable.
	CommTimeout   time.Duration `json:"comm_timeout"`
	SweepInterval time.Duration `json:"sweep_interval"`
}

func (c *TelemetryConfig) SetDefaults() {
	if c.CoalesceInterval == 0 {
		c.CoalesceInterval = 100 * time.Millisecond
	}
	if c.ArrivalRadius == 0 {
		c.ArrivalRadius = 25
	}
	if c.CommTimeout == 0 {
		c.CommTimeout = 5 * time.Minute
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 30 * time.Second
	}
}

// TelemetryIngestor consumes uav/+/telemetry and uav/+/status, applies
// samples to the registry, and drives mission activation, arrival, and
// communication-loss handling.
type TelemetryIngestor struct {
	bc         *bus.Client
	registry   *fleet.Registry
	missions   *MissionManager
	dispatcher *Dispatcher
	st         store.Store
	es         *EventStream
	lg         *log.Logger
	cfg        TelemetryConfig

	mu          sync.Mutex
	lastApplied map[string]time.Time
	pending     map[string]fleet.TelemetrySample
}

func NewTelemetryIngestor(bc *bus.Client, registry *fleet.Registry, missions *MissionManager,
	dispatcher *Dispatcher, st store.Store, es *EventStream, cfg TelemetryConfig,
	lg *log.Logger) *TelemetryIngestor {
	cfg.SetDefaults()
	return &TelemetryIngestor{
		bc:          bc,
		registry:    registry,
		missions:    missions,
		dispatcher:  dispatcher,
		st:          st,
		es:          es,
		cfg:         cfg,
		lg:          lg,
		lastApplied: make(map[string]time.Time),
		pending:     make(map[string]fleet.TelemetrySample),
	}
}

// Start subscribes to the telemetry topics and launches the apply and
// communication-loss sweeps.
func (ti *TelemetryIngestor) Start(ctx context.Context) error {
	if err := ti.bc.Subscribe(bus.TopicTelemetryPattern, ti.handleTelemetry); err != nil {
		return err
	}
	if err := ti.bc.Subscribe(bus.TopicStatusPattern, ti.handleStatus); err != nil {
		return err
	}

	go ti.run(ctx)
	return nil
}

// handleTelemetry admits a sample into the coalescing buffer. Stale
// timestamps (at or before the last applied or pending sample for the
// UAV) are dropped here, so applied telemetry is per-UAV monotonic.
func (ti *TelemetryIngestor) handleTelemetry(topic string, payload []byte) {
	msg, err := bus.UnmarshalValidate[bus.TelemetryMessage](payload)
	if err != nil {
		ti.lg.Warnf("telemetry: %s: %v", topic, err)
		return
	}
	if id := bus.TopicUAV(topic); id != "" && id != msg.UAVID {
		ti.lg.Warnf("telemetry: %s: payload names %s", topic, msg.UAVID)
		return
	}

	sample := fleet.TelemetrySample{
		UAVID:     msg.UAVID,
		Position:  math.MakePoint2LL(msg.Latitude, msg.Longitude),
		Altitude:  msg.Altitude,
		Battery:   msg.Battery,
		Speed:     msg.Speed,
		Heading:   msg.Heading,
		Status:    fleet.UAVStatus(msg.Status),
		Timestamp: msg.Timestamp,
	}

	ti.mu.Lock()
	defer ti.mu.Unlock()

	if !sample.Timestamp.After(ti.lastApplied[sample.UAVID]) {
		ti.lg.Debugf("telemetry: %s: dropping stale sample %s", sample.UAVID, sample.Timestamp)
		return
	}
	if prev, ok := ti.pending[sample.UAVID]; !ok || sample.Timestamp.After(prev.Timestamp) {
		ti.pending[sample.UAVID] = sample
	}
}

func (ti *TelemetryIngestor) handleStatus(topic string, payload []byte) {
	msg, err := bus.UnmarshalValidate[bus.StatusMessage](payload)
	if err != nil {
		ti.lg.Warnf("status: %s: %v", topic, err)
		return
	}

	err = ti.registry.Update(msg.UAVID, func(u *fleet.UAV) error {
		if msg.Connected != nil {
			u.Connected = *msg.Connected
		}
		// Trust explicit status reports only when they don't contradict
		// an active mission reference.
		status := fleet.UAVStatus(msg.Status)
		if (u.MissionID == "") == !status.HasMission() {
			u.Status = status
		}
		u.LastSeen = time.Now()
		return nil
	})
	if err != nil {
		ti.lg.Warnf("status: %s: %v", msg.UAVID, err)
	}
}

func (ti *TelemetryIngestor) run(ctx context.Context) {
	defer ti.lg.CatchAndReportCrash()

	apply := time.NewTicker(ti.cfg.CoalesceInterval)
	sweep := time.NewTicker(ti.cfg.SweepInterval)
	defer apply.Stop()
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-apply.C:
			ti.flush(ctx)
		case <-sweep.C:
			ti.sweepCommLoss(ctx, time.Now())
		}
	}
}

// flush applies the most recent pending sample for each UAV.
func (ti *TelemetryIngestor) flush(ctx context.Context) {
	ti.mu.Lock()
	pending := ti.pending
	ti.pending = make(map[string]fleet.TelemetrySample)
	for id, sample := range pending {
		ti.lastApplied[id] = sample.Timestamp
	}
	ti.mu.Unlock()

	for _, id := range util.SortedMapKeys(pending) {
		ti.apply(ctx, pending[id])
	}
}

func (ti *TelemetryIngestor) apply(ctx context.Context, sample fleet.TelemetrySample) {
	var missionID string
	var activate, returned bool

	err := ti.registry.Update(sample.UAVID, func(u *fleet.UAV) error {
		u.Position = sample.Position
		u.Altitude = sample.Altitude
		u.Speed = sample.Speed
		u.Heading = sample.Heading
		u.LastSeen = time.Now()
		u.Connected = true

		// Battery is non-increasing while flying; a jump up mid-mission
		// is a sensor glitch, not a recharge.
		if (u.Status == fleet.UAVInMission || u.Status == fleet.UAVReturning) && sample.Battery > u.Battery {
			ti.lg.Debugf("telemetry: %s: ignoring battery increase %g -> %g mid-flight",
				u.ID, u.Battery, sample.Battery)
		} else {
			u.Battery = sample.Battery
		}

		missionID = u.MissionID
		reported := sample.Status
		switch {
		case u.MissionID == "":
			if !reported.HasMission() && reported != "" {
				u.Status = reported
			}
		case reported == fleet.UAVInMission && u.Status == fleet.UAVAssigned:
			u.Status = fleet.UAVInMission
			activate = true
		case reported == fleet.UAVReturning:
			u.Status = fleet.UAVReturning
		case reported == fleet.UAVAvailable:
			// Mission completion; the dispatcher frees the record.
			returned = true
		}
		return nil
	})
	if err != nil {
		ti.lg.Warnf("telemetry: %s: %v", sample.UAVID, err)
		return
	}

	if err := ti.st.SaveTelemetry(ctx, sample); err != nil {
		ti.lg.Warnf("telemetry: %s: persisting: %v", sample.UAVID, err)
	}
	ti.es.Post(Event{Type: TelemetryEvent, Time: sample.Timestamp, Telemetry: &sample})

	if missionID == "" {
		return
	}
	if activate {
		if err := ti.missions.Transition(ctx, missionID, fleet.MissionActive); err != nil {
			ti.lg.Warnf("mission %s: activating: %v", missionID, err)
		}
	}
	ti.checkArrival(missionID, sample)
	if returned {
		if err := ti.dispatcher.CompleteMission(ctx, missionID); err != nil {
			ti.lg.Warnf("mission %s: completing: %v", missionID, err)
		}
	}
}

// checkArrival reports to the dispatcher every mission waypoint the
// sample lies within the arrival radius of, so mission progress tracks
// the route actually flown.
func (ti *TelemetryIngestor) checkArrival(missionID string, sample fleet.TelemetrySample) {
	m, ok := ti.missions.Get(missionID)
	if !ok {
		return
	}
	for i, wp := range m.Waypoints {
		if math.HaversineDistance(sample.Position, wp.Position()) <= ti.cfg.ArrivalRadius {
			ti.dispatcher.WaypointReached(missionID, i)
			ti.lg.Debugf("mission %s: %s at waypoint %d/%d", missionID, sample.UAVID,
				i+1, len(m.Waypoints))
		}
	}
}

// sweepCommLoss quarantines UAVs that have been silent past the
// communication timeout and fails their missions.
func (ti *TelemetryIngestor) sweepCommLoss(ctx context.Context, now time.Time) {
	deadline := now.Add(-ti.cfg.CommTimeout)
	for _, u := range ti.registry.Candidates(fleet.StaleSince(deadline)) {
		ti.lg.Warnf("uav %s: no contact since %s; quarantining", u.ID, u.LastSeen)

		if u.MissionID != "" {
			// Fails the mission and clears the record's mission
			// reference.
			ti.dispatcher.FailMission(ctx, u.MissionID)
		}
		if err := ti.registry.Update(u.ID, func(u *fleet.UAV) error {
			u.MissionID = ""
			u.Status = fleet.UAVUnreachable
			u.Connected = false
			return nil
		}); err != nil {
			ti.lg.Errorf("uav %s: quarantining: %v", u.ID, err)
		}
		ti.es.Post(Event{Type: SystemStatusEvent, Time: now,
			Message: "uav " + u.ID + " unreachable"})
	}
}
