// ops/dispatcher.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package ops

import (
	"context"
	"errors"
	"fmt"
	gomath "math"
	"sync"
	"time"

	"github.com/firewatch-uas/firewatch/bus"
	"github.com/firewatch-uas/firewatch/fleet"
	"github.com/firewatch-uas/firewatch/log"
	"github.com/firewatch-uas/firewatch/math"
	"github.com/firewatch-uas/firewatch/nav"
	"github.com/firewatch-uas/firewatch/store"
	"github.com/firewatch-uas/firewatch/util"
)

type DispatcherConfig struct {
	CruiseAltitude float64 `json:"cruise_altitude"`
	CruiseSpeed    float64 `json:"cruise_speed"`
	TurningRadius  float64 `json:"turning_radius"`

	// Sector scan parameters for investigate missions.
	ScanRadius  float64 `json:"scan_radius"`
	ScanRadials int     `json:"scan_radials"`

	// Lawnmower parameters for survey missions.
	SurveyWidth   float64 `json:"survey_width"`
	SurveyHeight  float64 `json:"survey_height"`
	SurveySpacing float64 `json:"survey_spacing"`

	// Spacing of smoothed transit waypoints, and the minimum transit
	// length that gets a smoothed leg at all; shorter hops fly straight
	// to the pattern entry.
	SampleSpacing  float64 `json:"sample_spacing"`
	SmoothMinRange float64 `json:"smooth_min_range"`
}

func (c *DispatcherConfig) SetDefaults() {
	if c.CruiseAltitude == 0 {
		c.CruiseAltitude = 80
	}
	if c.CruiseSpeed == 0 {
		c.CruiseSpeed = 15
	}
	if c.TurningRadius == 0 {
		c.TurningRadius = 30
	}
	if c.ScanRadius == 0 {
		c.ScanRadius = 150
	}
	if c.ScanRadials == 0 {
		c.ScanRadials = 6
	}
	if c.SurveyWidth == 0 {
		c.SurveyWidth = 400
	}
	if c.SurveyHeight == 0 {
		c.SurveyHeight = 300
	}
	if c.SurveySpacing == 0 {
		c.SurveySpacing = 50
	}
	if c.SampleSpacing == 0 {
		c.SampleSpacing = 100
	}
	if c.SmoothMinRange == 0 {
		c.SmoothMinRange = 1000
	}
}

// ObstacleField is an optional occupancy grid over part of the operating
// area; when a planned route lies inside it, transit legs are planned
// with grid search instead of Dubins smoothing.
type ObstacleField struct {
	Grid     nav.Grid
	Origin   math.Point2LL // southwest corner of cell (0, 0)
	CellSize float64       // meters per cell edge
}

func (f *ObstacleField) cell(p math.Point2LL) nav.GridCell {
	m := math.LL2Meters(p, f.Origin)
	return nav.GridCell{int(m[0] / f.CellSize), int(m[1] / f.CellSize)}
}

func (f *ObstacleField) cellCenter(c nav.GridCell) math.Point2LL {
	return math.Meters2LL([2]float64{
		(float64(c[0]) + 0.5) * f.CellSize,
		(float64(c[1]) + 0.5) * f.CellSize,
	}, f.Origin)
}

func (f *ObstacleField) covers(p math.Point2LL) bool {
	c := f.cell(p)
	return c[0] >= 0 && c[0] < f.Grid.Width && c[1] >= 0 && c[1] < f.Grid.Height
}

// Publisher is the outbound half of the bus client, split out so the
// dispatcher can be exercised without a broker.
type Publisher interface {
	Publish(topic string, msg any) error
}

// Dispatcher turns (UAV, alert) pairs into dispatched missions: it plans
// the waypoint route, persists the mission, publishes the command, and
// arms the failure watchdog. It also finalizes missions when the
// telemetry path reports arrival, return, or loss.
type Dispatcher struct {
	bc       Publisher
	missions *MissionManager
	registry *fleet.Registry
	tiles    *fleet.TileSet
	queue    *fleet.AlertQueue
	st       store.Store
	es       *EventStream
	lg       *log.Logger

	cfg       DispatcherConfig
	obstacles *ObstacleField

	// Highest 1-based waypoint index each in-flight mission has reached,
	// reported by the telemetry path.
	progressMu sync.Mutex
	progress   map[string]int

	// After this many failed dispatch attempts an alert is written off
	// as a false positive.
	maxDemotions int
}

func NewDispatcher(bc Publisher, missions *MissionManager, registry *fleet.Registry,
	tiles *fleet.TileSet, queue *fleet.AlertQueue, st store.Store, es *EventStream,
	cfg DispatcherConfig, obstacles *ObstacleField, lg *log.Logger) *Dispatcher {
	cfg.SetDefaults()

	d := &Dispatcher{
		bc:           bc,
		missions:     missions,
		registry:     registry,
		tiles:        tiles,
		queue:        queue,
		st:           st,
		es:           es,
		cfg:          cfg,
		obstacles:    obstacles,
		progress:     make(map[string]int),
		maxDemotions: 3,
		lg:           lg,
	}
	missions.SetFailureHandler(d.FailMission)
	return d
}

// Dispatch plans and launches the mission shell created by the
// scheduler: the caller has already reserved the UAV under missionID and
// transitioned the alert to assigned.
func (d *Dispatcher) Dispatch(ctx context.Context, uav fleet.UAV, alert fleet.Alert, missionID string) (fleet.Mission, error) {
	transit, transitDist, err := d.planTransit(uav, alert.Position)
	if err != nil {
		return fleet.Mission{}, err
	}

	pattern, patternDist, err := d.planPattern(alert)
	if err != nil {
		return fleet.Mission{}, err
	}

	waypoints := append(transit, pattern...)
	est := time.Duration((transitDist+patternDist)/d.cfg.CruiseSpeed) * time.Second

	m := fleet.Mission{
		ID:                missionID,
		UAVID:             uav.ID,
		TileID:            alert.TileID,
		AlertID:           alert.ID,
		Priority:          alert.Priority,
		Waypoints:         waypoints,
		Status:            fleet.MissionAssigned,
		Created:           time.Now(),
		EstimatedDuration: est,
	}
	if err := d.missions.Create(ctx, m); err != nil {
		return fleet.Mission{}, err
	}

	if err := d.bc.Publish(bus.CommandTopic(uav.ID), bus.CommandMessage{
		MissionID: m.ID,
		Command:   "goto",
		Waypoints: waypoints,
	}); err != nil {
		// The UAV never heard the command, so the freshly created record
		// must not linger as an active mission.
		if terr := d.missions.Transition(ctx, m.ID, fleet.MissionFailed); terr != nil {
			d.lg.Errorf("mission %s: failing after publish error: %v", m.ID, terr)
		}
		return fleet.Mission{}, err
	}

	d.missions.StartWatchdog(m.ID)
	d.lg.Infof("mission %s: dispatched %s to alert %s, %d waypoints, estimated %s",
		m.ID, uav.ID, alert.ID, len(waypoints), est)
	return m, nil
}

// planTransit plans the leg from the UAV's position to the target. With
// an obstacle field covering both endpoints the route is grid-planned;
// otherwise Dubins smoothing respects the UAV's current heading.
func (d *Dispatcher) planTransit(uav fleet.UAV, target math.Point2LL) ([]nav.Waypoint, float64, error) {
	if d.obstacles != nil && d.obstacles.covers(uav.Position) && d.obstacles.covers(target) {
		return d.planGridTransit(uav.Position, target)
	}

	// Work in the local tangent plane around the UAV. Heading is
	// degrees from north; Dubins theta is radians from east.
	start := nav.DubinsConfig{Theta: math.Radians(90 - uav.Heading)}
	tm := math.LL2Meters(target, uav.Position)
	goal := nav.DubinsConfig{X: tm[0], Y: tm[1], Theta: gomath.Atan2(tm[1], tm[0])}

	path, err := nav.PlanDubinsPath(start, goal, d.cfg.TurningRadius)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrPlanningInfeasible, err)
	}

	// Short hops fly straight to the pattern entry; the Dubins length
	// still feeds the duration estimate.
	if path.Length() < d.cfg.SmoothMinRange {
		return nil, path.Length(), nil
	}

	var wps []nav.Waypoint
	for _, cfg := range path.Sample(start, d.cfg.SampleSpacing)[1:] {
		p := math.Meters2LL([2]float64{cfg.X, cfg.Y}, uav.Position)
		wp := nav.MakeWaypoint(p, d.cfg.CruiseAltitude)
		wp.Speed = d.cfg.CruiseSpeed
		wps = append(wps, wp)
	}
	return wps, path.Length(), nil
}

func (d *Dispatcher) planGridTransit(from, to math.Point2LL) ([]nav.Waypoint, float64, error) {
	cells, err := d.obstacles.Grid.FindPath(d.obstacles.cell(from), d.obstacles.cell(to))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrPlanningInfeasible, err)
	}

	var wps []nav.Waypoint
	var dist float64
	prev := from
	for _, c := range cells[1:] {
		p := d.obstacles.cellCenter(c)
		wp := nav.MakeWaypoint(p, d.cfg.CruiseAltitude)
		wp.Speed = d.cfg.CruiseSpeed
		wps = append(wps, wp)

		dist += math.HaversineDistance(prev, p)
		prev = p
	}
	return wps, dist, nil
}

// planPattern generates the on-site coverage pattern: a lawnmower sweep
// for survey alerts, a sector scan otherwise.
func (d *Dispatcher) planPattern(alert fleet.Alert) ([]nav.Waypoint, float64, error) {
	var wps []nav.Waypoint
	var err error
	if alert.EventType == "survey" {
		wps, err = nav.Lawnmower(alert.Position, d.cfg.SurveyWidth, d.cfg.SurveyHeight,
			d.cfg.SurveySpacing, d.cfg.CruiseAltitude, 0)
	} else {
		wps, err = nav.SectorScan(alert.Position, d.cfg.ScanRadius, 0, 360,
			d.cfg.ScanRadials, d.cfg.CruiseAltitude)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrPlanningInfeasible, err)
	}

	var dist float64
	for i := 1; i < len(wps); i++ {
		dist += math.HaversineDistance(wps[i-1].Position(), wps[i].Position())
	}
	return wps, dist, nil
}

// WaypointReached records mission progress reported by the telemetry
// path. Repeated and out-of-order arrivals only ever advance the high
// water mark.
func (d *Dispatcher) WaypointReached(missionID string, index int) {
	d.progressMu.Lock()
	defer d.progressMu.Unlock()
	if index+1 > d.progress[missionID] {
		d.progress[missionID] = index + 1
	}
}

// Progress returns the number of waypoints the mission has reached so
// far.
func (d *Dispatcher) Progress(missionID string) (int, bool) {
	d.progressMu.Lock()
	defer d.progressMu.Unlock()
	n, ok := d.progress[missionID]
	return n, ok
}

func (d *Dispatcher) clearProgress(missionID string) int {
	d.progressMu.Lock()
	defer d.progressMu.Unlock()
	n := d.progress[missionID]
	delete(d.progress, missionID)
	return n
}

// Abort cancels an in-flight mission. The UAV is commanded to return (or
// land); the mission is finalized as aborted only once the UAV is
// observed back at available.
func (d *Dispatcher) Abort(ctx context.Context, missionID string, land bool) error {
	m, ok := d.missions.Get(missionID)
	if !ok {
		return ErrUnknownMission
	}
	if err := d.missions.RequestAbort(missionID); err != nil {
		return err
	}

	cmd := util.Select(land, "land", "return")
	if err := d.bc.Publish(bus.CommandTopic(m.UAVID), bus.CommandMessage{
		MissionID: m.ID,
		Command:   cmd,
	}); err != nil {
		return err
	}

	return d.registry.Update(m.UAVID, func(u *fleet.UAV) error {
		if u.MissionID == m.ID {
			u.Status = fleet.UAVReturning
		}
		return nil
	})
}

// CompleteMission finalizes a mission whose UAV has returned to
// available: the UAV is freed, the tile goes back to monitored, and the
// alert resolves to verified or false_positive depending on whether the
// mission produced detections.
func (d *Dispatcher) CompleteMission(ctx context.Context, missionID string) error {
	m, ok := d.missions.Get(missionID)
	if !ok {
		return ErrUnknownMission
	}

	if err := d.missions.FinalizeReturn(ctx, missionID); err != nil {
		return err
	}

	if reached := d.clearProgress(missionID); reached < len(m.Waypoints) {
		d.lg.Warnf("mission %s: finished with %d/%d waypoints visited",
			missionID, reached, len(m.Waypoints))
	}

	if err := d.registry.Update(m.UAVID, func(u *fleet.UAV) error {
		if u.MissionID == m.ID {
			u.MissionID = ""
			if u.Status != fleet.UAVUnreachable && u.Status != fleet.UAVCharging {
				u.Status = fleet.UAVAvailable
			}
		}
		return nil
	}); err != nil {
		d.lg.Errorf("mission %s: freeing %s: %v", missionID, m.UAVID, err)
	}

	if err := d.tiles.SetStatus(m.TileID, fleet.TileMonitored); err == nil {
		if tile, ok := d.tiles.Get(m.TileID); ok {
			_ = d.st.SaveTile(ctx, tile)
		}
	}

	d.resolveAlert(ctx, m)
	return nil
}

func (d *Dispatcher) resolveAlert(ctx context.Context, m fleet.Mission) {
	alert, err := d.st.Alert(ctx, m.AlertID)
	if err != nil {
		return
	}

	detections, err := d.st.Detections(ctx, m.ID)
	if err == nil && len(detections) > 0 {
		alert.Status = fleet.AlertVerified
	} else {
		alert.Status = fleet.AlertFalsePositive
	}
	if err := d.st.SaveAlert(ctx, alert); err != nil {
		d.lg.Warnf("alert %s: persisting resolution: %v", alert.ID, err)
	}
	d.es.Post(Event{Type: AlertEvent, Time: time.Now(), Alert: &alert})
}

// FailMission fails a mission, frees its UAV, and returns its alert to
// the queue with a demotion; after maxDemotions the alert resolves to
// false_positive instead. Also the watchdog's target.
func (d *Dispatcher) FailMission(ctx context.Context, missionID string) {
	m, ok := d.missions.Get(missionID)
	if !ok {
		return
	}

	if err := d.missions.Transition(ctx, missionID, fleet.MissionFailed); err != nil {
		if !errors.Is(err, ErrInvalidTransition) {
			d.lg.Errorf("mission %s: fail: %v", missionID, err)
		}
		return
	}
	d.clearProgress(missionID)

	if err := d.registry.Update(m.UAVID, func(u *fleet.UAV) error {
		if u.MissionID == m.ID {
			u.MissionID = ""
			if u.Status != fleet.UAVUnreachable && u.Status != fleet.UAVCharging {
				u.Status = fleet.UAVAvailable
			}
		}
		return nil
	}); err != nil {
		d.lg.Errorf("mission %s: freeing %s: %v", missionID, m.UAVID, err)
	}

	d.RequeueAlert(ctx, m.AlertID)
}

// RequeueAlert returns an alert to the queue after a failed dispatch,
// charging one demotion.
func (d *Dispatcher) RequeueAlert(ctx context.Context, alertID string) {
	alert, err := d.st.Alert(ctx, alertID)
	if err != nil {
		return
	}

	alert.Demotions++
	if alert.Demotions >= d.maxDemotions {
		alert.Status = fleet.AlertFalsePositive
		d.lg.Infof("alert %s: false positive after %d demotions", alert.ID, alert.Demotions)
	} else {
		alert.Status = fleet.AlertQueued
		if err := d.queue.Offer(alert); err != nil {
			d.lg.Warnf("alert %s: requeue: %v", alert.ID, err)
		}
	}

	if err := d.st.SaveAlert(ctx, alert); err != nil {
		d.lg.Warnf("alert %s: persisting requeue: %v", alert.ID, err)
	}
	d.es.Post(Event{Type: AlertEvent, Time: time.Now(), Alert: &alert})
}
