// ops/scheduler.go
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

	"github.com/google/uuid"
)

type SchedulerConfig struct {
	TickInterval  time.Duration `json:"tick_interval"`
	PollLimit     int           `json:"poll_limit"`
	MinBattery    float64       `json:"min_battery"`
	ChargeBattery float64       `json:"charge_battery"`
	AlertTTL      time.Duration `json:"alert_ttl"`

	// UAVs farther than this from the alert are never dispatched to it.
	MaxRange float64 `json:"max_range"`

	// Alerts at or above this severity wake the scheduler immediately
	// instead of waiting for the next tick.
	FastPathSeverity fleet.AlertSeverity `json:"fast_path_severity"`
}

func (c *SchedulerConfig) SetDefaults() {
	if c.TickInterval == 0 {
		c.TickInterval = time.Minute
	}
	if c.PollLimit == 0 {
		c.PollLimit = 32
	}
	if c.MinBattery == 0 {
		c.MinBattery = 30
	}
	if c.ChargeBattery == 0 {
		c.ChargeBattery = 20
	}
	if c.AlertTTL == 0 {
		c.AlertTTL = 30 * time.Minute
	}
	if c.MaxRange == 0 {
		c.MaxRange = 20000
	}
	if c.FastPathSeverity == "" {
		c.FastPathSeverity = fleet.SeverityHigh
	}
}

// Scheduler matches pending alerts to available UAVs. It runs on a fixed
// tick plus an on-demand fast path for severe alerts; two ticks never
// run concurrently, and the loop holds no global lock: only individual
// registry updates and queue operations take short-lived locks.
type Scheduler struct {
	registry   *fleet.Registry
	queue      *fleet.AlertQueue
	tiles      *fleet.TileSet
	dispatcher *Dispatcher
	st         store.Store
	es         *EventStream
	lg         *log.Logger

	cfg     SchedulerConfig
	pub     Publisher // nil until Start
	wake    chan struct{}
	ticking util.AtomicBool

	// Recently admitted alert ids; the broker delivers at least once, so
	// redelivered alerts must not enqueue twice.
	dedupMu sync.Mutex
	seen    *util.TransientMap[string, bool]
}

func NewScheduler(registry *fleet.Registry, queue *fleet.AlertQueue, tiles *fleet.TileSet,
	dispatcher *Dispatcher, st store.Store, es *EventStream, cfg SchedulerConfig,
	lg *log.Logger) *Scheduler {
	cfg.SetDefaults()
	return &Scheduler{
		registry:   registry,
		queue:      queue,
		tiles:      tiles,
		dispatcher: dispatcher,
		st:         st,
		es:         es,
		cfg:        cfg,
		wake:       make(chan struct{}, 1),
		seen:       util.NewTransientMap[string, bool](),
		lg:         lg,
	}
}

// Restore rebuilds the queue from persisted pending alerts after a
// restart.
func (s *Scheduler) Restore(ctx context.Context) error {
	alerts, err := s.st.PendingAlerts(ctx)
	if err != nil {
		return err
	}
	s.queue.Rebuild(alerts)
	if len(alerts) > 0 {
		s.lg.Infof("scheduler: rebuilt queue with %d pending alerts", len(alerts))
	}
	return nil
}

// EnqueueAlert admits an alert into the system: persist, queue, and
// wake the scheduler if the alert is severe enough for the fast path.
// A full queue degrades to persisting only; the alert is picked up by a
// later Restore or requeue.
func (s *Scheduler) EnqueueAlert(ctx context.Context, a fleet.Alert) error {
	if a.Status == "" || a.Status == fleet.AlertNew {
		a.Status = fleet.AlertQueued
	}
	if a.Created.IsZero() {
		a.Created = time.Now()
	}

	if err := s.st.SaveAlert(ctx, a); err != nil {
		return err
	}
	if err := s.queue.Offer(a); err != nil {
		s.lg.Warnf("alert %s: %v; persisted only", a.ID, err)
	}
	s.es.Post(Event{Type: AlertEvent, Time: time.Now(), Alert: &a})

	if a.Severity.Level() >= s.cfg.FastPathSeverity.Level() {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// Subscriber is the inbound half of the bus client.
type Subscriber interface {
	Subscribe(topic string, handler bus.Handler) error
}

// Bus is the full bus client surface the scheduler needs.
type Bus interface {
	Publisher
	Subscriber
}

// Start subscribes to the satellite alert feed and launches the tick
// loop.
func (s *Scheduler) Start(ctx context.Context, bc Bus) error {
	if err := bc.Subscribe(bus.TopicAlerts, s.handleAlert); err != nil {
		return err
	}
	s.pub = bc
	go s.Run(ctx)
	return nil
}

func (s *Scheduler) handleAlert(topic string, payload []byte) {
	msg, err := bus.UnmarshalValidate[bus.AlertMessage](payload)
	if err != nil {
		s.lg.Warnf("alert: %s: %v", topic, err)
		return
	}

	s.dedupMu.Lock()
	_, dup := s.seen.Get(msg.AlertID)
	if !dup {
		s.seen.Add(msg.AlertID, true, s.cfg.AlertTTL)
	}
	s.dedupMu.Unlock()
	if dup {
		s.lg.Debugf("alert %s: duplicate delivery dropped", msg.AlertID)
		return
	}

	a := fleet.Alert{
		ID:         msg.AlertID,
		TileID:     msg.TileID,
		EventType:  msg.EventType,
		Confidence: msg.Confidence,
		Severity:   fleet.AlertSeverity(msg.Severity),
		Priority:   msg.Priority,
		Position:   math.MakePoint2LL(msg.Latitude, msg.Longitude),
		Metadata:   msg.Metadata,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.EnqueueAlert(ctx, a); err != nil {
		s.lg.Warnf("alert %s: enqueueing: %v", a.ID, err)
	}
}

// Run drives the scheduler until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	defer s.lg.CatchAndReportCrash()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.wake:
		}
		if err := s.RunTick(ctx, time.Now()); err != nil {
			s.lg.Warnf("scheduler: tick: %v", err)
		}
	}
}

// RunTick runs one scheduling cycle. Returns ErrSchedulerBusy if a tick
// is already in flight.
func (s *Scheduler) RunTick(ctx context.Context, now time.Time) error {
	if !s.ticking.CompareAndSwap(false, true) {
		return ErrSchedulerBusy
	}
	defer s.ticking.Store(false)

	s.expireAlerts(ctx, now)
	s.batterySweep(ctx)

	alerts := s.queue.Poll(s.cfg.PollLimit)
	if len(alerts) == 0 {
		return nil
	}

	taken := make(map[string]bool)
	for _, alert := range alerts {
		s.assign(ctx, alert, taken)
	}
	return nil
}

// assign finds the nearest eligible UAV for the alert and launches the
// mission. Unmatched alerts simply stay queued.
func (s *Scheduler) assign(ctx context.Context, alert fleet.Alert, taken map[string]bool) {
	tried := make(map[string]bool)
	for {
		uav, ok := s.pickUAV(alert.Position, taken, tried)
		if !ok {
			s.lg.Debugf("alert %s: no eligible UAV; stays queued", alert.ID)
			return
		}
		tried[uav.ID] = true

		missionID := uuid.NewString()

		// Reserve the UAV; it may have become unavailable since the
		// snapshot, in which case try the next-best candidate.
		err := s.registry.Update(uav.ID, func(u *fleet.UAV) error {
			if u.Status != fleet.UAVAvailable || u.Battery < s.cfg.MinBattery {
				return ErrNoEligibleUAV
			}
			u.Status = fleet.UAVAssigned
			u.MissionID = missionID
			return nil
		})
		if err != nil {
			continue
		}
		taken[uav.ID] = true

		s.launch(ctx, uav, alert, missionID)
		return
	}
}

func (s *Scheduler) launch(ctx context.Context, uav fleet.UAV, alert fleet.Alert, missionID string) {
	s.queue.Remove(alert.ID)
	alert.Status = fleet.AlertAssigned
	if err := s.st.SaveAlert(ctx, alert); err != nil {
		s.lg.Warnf("alert %s: persisting assignment: %v", alert.ID, err)
	}
	s.es.Post(Event{Type: AlertEvent, Time: time.Now(), Alert: &alert})

	if err := s.tiles.SetStatus(alert.TileID, fleet.TileInvestigating); err == nil {
		if tile, ok := s.tiles.Get(alert.TileID); ok {
			_ = s.st.SaveTile(ctx, tile)
		}
	}

	if _, err := s.dispatcher.Dispatch(ctx, uav, alert, missionID); err != nil {
		s.lg.Warnf("alert %s: dispatch to %s: %v", alert.ID, uav.ID, err)

		// Free the reservation and charge a demotion.
		if err := s.registry.Update(uav.ID, func(u *fleet.UAV) error {
			if u.MissionID == missionID {
				u.MissionID = ""
				u.Status = fleet.UAVAvailable
			}
			return nil
		}); err != nil {
			s.lg.Errorf("uav %s: releasing reservation: %v", uav.ID, err)
		}
		s.dispatcher.RequeueAlert(ctx, alert.ID)
		return
	}

	s.lg.Infof("alert %s: assigned to %s as mission %s", alert.ID, uav.ID, missionID)
}

// pickUAV returns the nearest eligible UAV by great-circle distance;
// ties prefer higher battery, then lower id. The id order comes from the
// registry's sorted snapshot.
func (s *Scheduler) pickUAV(target math.Point2LL, taken, tried map[string]bool) (fleet.UAV, bool) {
	eligible := fleet.Available(s.cfg.MinBattery)
	inRange := fleet.Within(target, s.cfg.MaxRange)
	candidates := s.registry.Candidates(func(u fleet.UAV) bool { return eligible(u) && inRange(u) })

	var best fleet.UAV
	bestDist := 0.0
	found := false
	for _, u := range candidates {
		if taken[u.ID] || tried[u.ID] {
			continue
		}

		d := math.HaversineDistance(u.Position, target)
		if !found || d < bestDist || (d == bestDist && u.Battery > best.Battery) {
			best, bestDist, found = u, d, true
		}
	}
	return best, found
}

// expireAlerts removes queued alerts older than the TTL.
func (s *Scheduler) expireAlerts(ctx context.Context, now time.Time) {
	for _, alert := range s.queue.Poll(s.queue.Len()) {
		if now.Sub(alert.Created) <= s.cfg.AlertTTL {
			continue
		}

		s.queue.Remove(alert.ID)
		alert.Status = fleet.AlertExpired
		if err := s.st.SaveAlert(ctx, alert); err != nil {
			s.lg.Warnf("alert %s: persisting expiry: %v", alert.ID, err)
		}
		s.lg.Infof("alert %s: expired after %s", alert.ID, now.Sub(alert.Created).Round(time.Second))
		s.es.Post(Event{Type: AlertEvent, Time: now, Alert: &alert})
	}
}

// batterySweep moves drained idle UAVs to charging and recovered ones
// back to available.
func (s *Scheduler) batterySweep(ctx context.Context) {
	for _, u := range s.registry.Snapshot() {
		switch {
		case u.Status == fleet.UAVAvailable && u.Battery < s.cfg.ChargeBattery:
			if err := s.registry.Update(u.ID, func(u *fleet.UAV) error {
				if u.Status == fleet.UAVAvailable && u.Battery < s.cfg.ChargeBattery {
					u.Status = fleet.UAVCharging
				}
				return nil
			}); err != nil {
				s.lg.Warnf("uav %s: charging sweep: %v", u.ID, err)
			} else {
				s.publishStatus(u.ID, fleet.UAVCharging)
			}

		case u.Status == fleet.UAVCharging && u.Battery >= s.cfg.MinBattery:
			if err := s.registry.Update(u.ID, func(u *fleet.UAV) error {
				if u.Status == fleet.UAVCharging && u.Battery >= s.cfg.MinBattery {
					u.Status = fleet.UAVAvailable
				}
				return nil
			}); err != nil {
				s.lg.Warnf("uav %s: charging sweep: %v", u.ID, err)
			} else {
				s.publishStatus(u.ID, fleet.UAVAvailable)
			}
		}
	}
}

// publishStatus announces a coordinator-driven status change on the
// vehicle's status topic so that other bus listeners see it too.
func (s *Scheduler) publishStatus(id string, status fleet.UAVStatus) {
	if s.pub == nil {
		return
	}
	msg := bus.StatusMessage{UAVID: id, Status: string(status)}
	if err := s.pub.Publish(bus.StatusTopic(id), msg); err != nil {
		s.lg.Warnf("uav %s: publishing status: %v", id, err)
	}
}
