// fleet/registry.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package fleet

import (
	"sync"
	"time"

	"github.com/firewatch-uas/firewatch/log"
	"github.com/firewatch-uas/firewatch/math"
	"github.com/firewatch-uas/firewatch/util"

	"github.com/brunoga/deep"
)

// Journal receives every committed UAV mutation so that the persistent
// store stays in sync with the in-memory registry. A nil journal
// disables durability.
type Journal interface {
	JournalUAV(uav UAV) error
}

// Registry is the single authoritative mutable store for UAV records.
// Mutation is serialized per UAV: Update holds the entry lock across the
// mutator and the synchronous journal write, so a scheduler assignment
// and a telemetry update for the same vehicle can never interleave.
type Registry struct {
	// guards map membership only; entry contents are guarded per entry.
	mu      sync.RWMutex
	uavs    map[string]*registryEntry
	journal Journal
	lg      *log.Logger
}

type registryEntry struct {
	mu  util.LoggingMutex
	uav UAV
}

func NewRegistry(journal Journal, lg *log.Logger) *Registry {
	return &Registry{
		uavs:    make(map[string]*registryEntry),
		journal: journal,
		lg:      lg,
	}
}

// Add registers a new UAV. The record is validated and journalled before
// it becomes visible.
func (r *Registry) Add(uav UAV) error {
	if err := uav.CheckInvariants(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.uavs[uav.ID]; ok {
		return ErrDuplicateUAV
	}
	if r.journal != nil {
		if err := r.journal.JournalUAV(uav); err != nil {
			return err
		}
	}
	r.uavs[uav.ID] = &registryEntry{uav: uav}

	r.lg.Infof("uav %s: registered at %s, battery %g", uav.ID, uav.Position.DDString(), uav.Battery)
	return nil
}

func (r *Registry) entry(id string) (*registryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.uavs[id]
	return e, ok
}

// Get returns a copy of the UAV record with the given id.
func (r *Registry) Get(id string) (UAV, bool) {
	e, ok := r.entry(id)
	if !ok {
		return UAV{}, false
	}

	e.mu.Lock(r.lg)
	defer e.mu.Unlock(r.lg)
	return deep.MustCopy(e.uav), true
}

// Update applies the mutator to the UAV record under the entry lock,
// validates the result, journals it, and commits. If the mutator or
// validation fails, the record is unchanged.
func (r *Registry) Update(id string, mutate func(*UAV) error) error {
	e, ok := r.entry(id)
	if !ok {
		return ErrNoSuchUAV
	}

	e.mu.Lock(r.lg)
	defer e.mu.Unlock(r.lg)

	uav := deep.MustCopy(e.uav)
	if err := mutate(&uav); err != nil {
		return err
	}
	if err := uav.CheckInvariants(); err != nil {
		return err
	}
	if r.journal != nil {
		if err := r.journal.JournalUAV(uav); err != nil {
			return err
		}
	}
	e.uav = uav
	return nil
}

// Snapshot returns copies of all UAV records, sorted by id.
func (r *Registry) Snapshot() []UAV {
	r.mu.RLock()
	ids := util.SortedMapKeys(r.uavs)
	entries := util.MapSlice(ids, func(id string) *registryEntry { return r.uavs[id] })
	r.mu.RUnlock()

	uavs := make([]UAV, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock(r.lg)
		uavs = append(uavs, deep.MustCopy(e.uav))
		e.mu.Unlock(r.lg)
	}
	return uavs
}

// Candidates returns copies of the UAVs satisfying the predicate, sorted
// by id.
func (r *Registry) Candidates(pred func(UAV) bool) []UAV {
	return util.FilterSlice(r.Snapshot(), pred)
}

// Available returns a predicate matching UAVs that are available with at
// least the given battery level.
func Available(minBattery float64) func(UAV) bool {
	return func(u UAV) bool {
		return u.Status == UAVAvailable && u.Battery >= minBattery
	}
}

// Within returns a predicate matching UAVs within dist meters of p.
func Within(p math.Point2LL, dist float64) func(UAV) bool {
	return func(u UAV) bool {
		return math.HaversineDistance(u.Position, p) <= dist
	}
}

// StaleSince returns a predicate matching connected UAVs that have not
// been heard from since the deadline.
func StaleSince(deadline time.Time) func(UAV) bool {
	return func(u UAV) bool {
		return u.Status != UAVUnreachable && !u.LastSeen.IsZero() && u.LastSeen.Before(deadline)
	}
}
