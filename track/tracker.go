// track/tracker.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package track

import (
	"log/slog"
	"time"

	"github.com/firewatch-uas/firewatch/log"
	"github.com/firewatch-uas/firewatch/math"
	"github.com/firewatch-uas/firewatch/util"
)

const (
	// associationGateSq is the squared Mahalanobis gate for associating an
	// observation with an existing track (chi-square, 99%, 2 dof).
	associationGateSq = 9.21

	// confirmHits promotes a tentative track to confirmed; maxMisses
	// sweeps without an observation evict it.
	confirmHits = 3
	maxMisses   = 5
)

// Track is a single target under estimation. Each track carries its own
// local tangent plane anchored at the first observation so that the
// filter runs in meters rather than degrees.
type Track struct {
	ID         int
	Class      string
	Confidence float64
	FirstSeen  time.Time
	LastUpdate time.Time
	Hits       int
	Misses     int

	origin      math.Point2LL
	filter      KalmanFilter
	lastPredict time.Time
}

// Position returns the current estimated position.
func (t *Track) Position() math.Point2LL {
	return math.Meters2LL(t.filter.Position(), t.origin)
}

// Velocity returns the estimated velocity in meters per second, x east
// and y north.
func (t *Track) Velocity() math.Vec2 {
	return t.filter.Velocity()
}

// Confirmed reports whether the track has accumulated enough
// observations to be considered a real target rather than noise.
func (t *Track) Confirmed() bool {
	return t.Hits >= confirmHits
}

func (t *Track) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("id", t.ID),
		slog.String("class", t.Class),
		slog.String("position", t.Position().DDString()),
		slog.Int("hits", t.Hits),
		slog.Int("misses", t.Misses))
}

// Observation is a single geolocated detection handed to the tracker.
type Observation struct {
	Position   math.Point2LL
	Class      string
	Confidence float64
	Time       time.Time
}

// Tracker maintains the set of active tracks, associating each incoming
// observation with the nearest gated track or spawning a new one.
// Association is global nearest neighbor over the Mahalanobis distance in
// each track's innovation space.
type Tracker struct {
	mu     util.LoggingMutex
	tracks map[int]*Track
	nextID int
	lg     *log.Logger
}

func NewTracker(lg *log.Logger) *Tracker {
	return &Tracker{
		tracks: make(map[int]*Track),
		lg:     lg,
	}
}

// Observe folds a detection into the track set and returns the id of the
// track it was associated with (possibly newly created).
func (tr *Tracker) Observe(obs Observation) int {
	tr.mu.Lock(tr.lg)
	defer tr.mu.Unlock(tr.lg)

	// Advance every track to the observation time before gating so that
	// the innovation reflects the predicted, not stale, state.
	for _, t := range tr.tracks {
		if dt := obs.Time.Sub(t.lastPredict).Seconds(); dt > 0 {
			t.filter.Predict(dt)
			t.lastPredict = obs.Time
		}
	}

	best := -1
	bestDistSq := associationGateSq
	for id, t := range tr.tracks {
		z := math.LL2Meters(obs.Position, t.origin)
		if d := t.filter.MahalanobisSq(z); d < bestDistSq ||
			(d == bestDistSq && (best == -1 || id < best)) {
			best, bestDistSq = id, d
		}
	}

	if best != -1 {
		t := tr.tracks[best]
		t.filter.Update(math.LL2Meters(obs.Position, t.origin))
		t.Hits++
		t.Misses = 0
		t.LastUpdate = obs.Time
		if obs.Confidence > t.Confidence {
			t.Confidence = obs.Confidence
		}
		return best
	}

	tr.nextID++
	t := &Track{
		ID:         tr.nextID,
		Class:      obs.Class,
		Confidence: obs.Confidence,
		FirstSeen:   obs.Time,
		LastUpdate:  obs.Time,
		Hits:        1,
		origin:      obs.Position,
		lastPredict: obs.Time,
	}
	t.filter.Initialize(math.Vec2{0, 0})
	tr.tracks[t.ID] = t

	tr.lg.Debugf("track %d: spawned for %s at %s", t.ID, obs.Class, obs.Position.DDString())
	return t.ID
}

// Sweep charges a miss to every track that has not been updated since
// the given deadline and evicts tracks that have missed too many times.
// It returns the ids of the evicted tracks.
func (tr *Tracker) Sweep(deadline time.Time) []int {
	tr.mu.Lock(tr.lg)
	defer tr.mu.Unlock(tr.lg)

	var evicted []int
	for id, t := range tr.tracks {
		if t.LastUpdate.Before(deadline) {
			t.Misses++
			if t.Misses >= maxMisses {
				delete(tr.tracks, id)
				evicted = append(evicted, id)
				tr.lg.Debugf("track %d: evicted after %d misses", id, t.Misses)
			}
		}
	}
	return evicted
}

// Estimate is a read-only snapshot of a track.
type Estimate struct {
	ID         int           `json:"id"`
	Class      string        `json:"class"`
	Confidence float64       `json:"confidence"`
	Position   math.Point2LL `json:"position"`
	Velocity   math.Vec2     `json:"velocity"`
	Confirmed  bool          `json:"confirmed"`
	LastUpdate time.Time     `json:"last_update"`
}

// Estimates returns snapshots of all current tracks, sorted by id.
func (tr *Tracker) Estimates() []Estimate {
	tr.mu.Lock(tr.lg)
	defer tr.mu.Unlock(tr.lg)

	est := make([]Estimate, 0, len(tr.tracks))
	for _, id := range util.SortedMapKeys(tr.tracks) {
		t := tr.tracks[id]
		est = append(est, Estimate{
			ID:         t.ID,
			Class:      t.Class,
			Confidence: t.Confidence,
			Position:   t.Position(),
			Velocity:   t.Velocity(),
			Confirmed:  t.Confirmed(),
			LastUpdate: t.LastUpdate,
		})
	}
	return est
}

// Get returns a snapshot of the given track, if it exists.
func (tr *Tracker) Get(id int) (Estimate, bool) {
	tr.mu.Lock(tr.lg)
	defer tr.mu.Unlock(tr.lg)

	t, ok := tr.tracks[id]
	if !ok {
		return Estimate{}, false
	}
	return Estimate{
		ID:         t.ID,
		Class:      t.Class,
		Confidence: t.Confidence,
		Position:   t.Position(),
		Velocity:   t.Velocity(),
		Confirmed:  t.Confirmed(),
		LastUpdate: t.LastUpdate,
	}, true
}
