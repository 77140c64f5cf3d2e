// ops/mission.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package ops

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/firewatch-uas/firewatch/fleet"
	"github.com/firewatch-uas/firewatch/log"
	"github.com/firewatch-uas/firewatch/store"
	"github.com/firewatch-uas/firewatch/util"
)

const (
	watchdogMin = time.Minute
	watchdogMax = 2 * time.Hour
)

// MissionManager owns the mission records and their state machine.
// Transitions are totally ordered per mission by a per-mission mutex;
// cross-mission ordering is unspecified. Every committed transition is
// persisted and posted to the event stream.
type MissionManager struct {
	st store.Store
	es *EventStream
	lg *log.Logger

	// guards map membership only.
	mu       sync.Mutex
	missions map[string]*missionEntry

	// onFailure, when set, handles watchdog expiry: the handler owns the
	// failed transition plus any cleanup (freeing the UAV, requeueing
	// the alert).
	onFailure func(ctx context.Context, missionID string)
}

type missionEntry struct {
	mu             sync.Mutex
	m              fleet.Mission
	watchdog       *time.Timer
	abortRequested bool
}

func NewMissionManager(st store.Store, es *EventStream, lg *log.Logger) *MissionManager {
	return &MissionManager{
		st:       st,
		es:       es,
		lg:       lg,
		missions: make(map[string]*missionEntry),
	}
}

// Restore reloads non-terminal missions from the store after a restart.
func (mm *MissionManager) Restore(ctx context.Context) error {
	missions, err := mm.st.ActiveMissions(ctx)
	if err != nil {
		return err
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()
	for _, m := range missions {
		mm.missions[m.ID] = &missionEntry{m: m}
	}
	if len(missions) > 0 {
		mm.lg.Infof("restored %d active missions", len(missions))
	}
	return nil
}

// Create registers and persists a new mission record.
func (mm *MissionManager) Create(ctx context.Context, m fleet.Mission) error {
	mm.mu.Lock()
	if _, ok := mm.missions[m.ID]; ok {
		mm.mu.Unlock()
		return ErrDuplicateMission
	}
	entry := &missionEntry{m: m}
	mm.missions[m.ID] = entry
	mm.mu.Unlock()

	if err := mm.st.SaveMission(ctx, m); err != nil {
		return err
	}
	mm.es.Post(Event{Type: MissionUpdateEvent, Time: time.Now(), Mission: &m})
	return nil
}

func (mm *MissionManager) entry(id string) (*missionEntry, bool) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	e, ok := mm.missions[id]
	return e, ok
}

// Get returns a copy of the mission record.
func (mm *MissionManager) Get(id string) (fleet.Mission, bool) {
	e, ok := mm.entry(id)
	if !ok {
		return fleet.Mission{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.m, true
}

// Active returns copies of all non-terminal missions.
func (mm *MissionManager) Active() []fleet.Mission {
	mm.mu.Lock()
	entries := make([]*missionEntry, 0, len(mm.missions))
	for _, id := range util.SortedMapKeys(mm.missions) {
		entries = append(entries, mm.missions[id])
	}
	mm.mu.Unlock()

	var active []fleet.Mission
	for _, e := range entries {
		e.mu.Lock()
		if !e.m.Status.Terminal() {
			active = append(active, e.m)
		}
		e.mu.Unlock()
	}
	return active
}

// Transition moves a mission to the given status. Re-applying a
// transition the mission has already made is a no-op, so a duplicated
// completion event has no side effects. Any other disallowed transition
// returns ErrInvalidTransition.
func (mm *MissionManager) Transition(ctx context.Context, id string, to fleet.MissionStatus) error {
	e, ok := mm.entry(id)
	if !ok {
		return ErrUnknownMission
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.m.Status == to {
		return nil
	}
	if !e.m.Status.CanTransition(to) {
		mm.lg.Warnf("mission %s: transition %s -> %s rejected", id, e.m.Status, to)
		return ErrInvalidTransition
	}

	now := time.Now()
	m := e.m
	m.Status = to
	switch to {
	case fleet.MissionActive:
		m.Started = now
	case fleet.MissionCompleted, fleet.MissionFailed, fleet.MissionAborted:
		m.Ended = now
		if !m.Started.IsZero() {
			m.ActualDuration = now.Sub(m.Started)
		}
	}

	if err := mm.st.SaveMission(ctx, m); err != nil {
		return err
	}
	e.m = m

	if to.Terminal() && e.watchdog != nil {
		e.watchdog.Stop()
		e.watchdog = nil
	}

	mm.lg.Infof("mission %s: %s", id, to)
	mm.es.Post(Event{Type: MissionUpdateEvent, Time: now, Mission: &m})
	return nil
}

// RequestAbort marks the mission for abort. The mission stays in its
// current state until the UAV is observed back at available; the
// telemetry path then finalizes it through FinalizeReturn.
func (mm *MissionManager) RequestAbort(id string) error {
	e, ok := mm.entry(id)
	if !ok {
		return ErrUnknownMission
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.m.Status.Terminal() {
		return ErrInvalidTransition
	}
	e.abortRequested = true
	return nil
}

// FinalizeReturn completes or aborts the mission once its UAV is back to
// available, depending on whether an abort was requested.
func (mm *MissionManager) FinalizeReturn(ctx context.Context, id string) error {
	e, ok := mm.entry(id)
	if !ok {
		return ErrUnknownMission
	}

	e.mu.Lock()
	aborted := e.abortRequested
	e.mu.Unlock()

	if aborted {
		return mm.Transition(ctx, id, fleet.MissionAborted)
	}
	return mm.Transition(ctx, id, fleet.MissionCompleted)
}

// StartWatchdog arms the mission's failure watchdog: if no completion
// arrives within twice the estimated duration (clamped to [1 min, 2 h]),
// the mission fails.
func (mm *MissionManager) StartWatchdog(id string) {
	e, ok := mm.entry(id)
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	d := min(max(2*e.m.EstimatedDuration, watchdogMin), watchdogMax)
	e.watchdog = time.AfterFunc(d, func() {
		defer mm.lg.CatchAndReportCrash()

		mm.lg.Warnf("mission %s: watchdog fired after %s", id, d)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if mm.onFailure != nil {
			mm.onFailure(ctx, id)
			return
		}
		if err := mm.Transition(ctx, id, fleet.MissionFailed); err != nil && !errors.Is(err, ErrInvalidTransition) {
			mm.lg.Errorf("mission %s: watchdog: %v", id, err)
		}
	})
}

// SetFailureHandler installs the watchdog failure handler; call before
// any mission is created.
func (mm *MissionManager) SetFailureHandler(h func(ctx context.Context, missionID string)) {
	mm.onFailure = h
}
