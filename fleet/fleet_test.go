// fleet/fleet_test.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package fleet

import (
	"errors"
	gomath "math"
	"strconv"
	"testing"
	"time"

	"github.com/firewatch-uas/firewatch/log"
	"github.com/firewatch-uas/firewatch/math"
)

func TestAlertQueuePriority(t *testing.T) {
	q := NewAlertQueue(16)

	// Higher priority dequeues first regardless of arrival order.
	for _, a := range []Alert{
		{ID: "a1", Priority: 3, Status: AlertQueued},
		{ID: "a2", Priority: 9, Status: AlertQueued},
		{ID: "a3", Priority: 5, Status: AlertQueued},
	} {
		if err := q.Offer(a); err != nil {
			t.Fatalf("Offer(%s): %v", a.ID, err)
		}
	}

	polled := q.Poll(3)
	if len(polled) != 3 || polled[0].ID != "a2" || polled[1].ID != "a3" || polled[2].ID != "a1" {
		t.Errorf("poll order %v, expected a2, a3, a1", ids(polled))
	}

	// Poll does not consume; the queue retains all three.
	if q.Len() != 3 {
		t.Errorf("queue length %d after poll, expected 3", q.Len())
	}
}

func TestAlertQueueFIFOTies(t *testing.T) {
	q := NewAlertQueue(16)
	for i := range 5 {
		_ = q.Offer(Alert{ID: "a" + strconv.Itoa(i), Priority: 7, Status: AlertQueued})
	}

	polled := q.Poll(5)
	for i, a := range polled {
		if want := "a" + strconv.Itoa(i); a.ID != want {
			t.Errorf("position %d: got %s, expected %s (FIFO within priority)", i, a.ID, want)
		}
	}
}

func TestAlertQueueBounded(t *testing.T) {
	q := NewAlertQueue(2)
	_ = q.Offer(Alert{ID: "a1", Priority: 1})
	_ = q.Offer(Alert{ID: "a2", Priority: 2})

	if err := q.Offer(Alert{ID: "a3", Priority: 3}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("got %v, expected ErrQueueFull", err)
	}

	// Re-offering a queued alert updates in place rather than taking
	// capacity.
	if err := q.Offer(Alert{ID: "a1", Priority: 10}); err != nil {
		t.Errorf("re-offer: %v", err)
	}
	if polled := q.Poll(1); len(polled) != 1 || polled[0].ID != "a1" || polled[0].Priority != 10 {
		t.Errorf("got %v, expected updated a1 first", ids(polled))
	}
}

func TestAlertQueueRemoveRebuild(t *testing.T) {
	q := NewAlertQueue(16)
	_ = q.Offer(Alert{ID: "a1", Priority: 5})
	_ = q.Offer(Alert{ID: "a2", Priority: 3})

	if !q.Remove("a1") {
		t.Error("Remove(a1) failed")
	}
	if q.Remove("a1") {
		t.Error("second Remove(a1) succeeded")
	}
	if polled := q.Poll(2); len(polled) != 1 || polled[0].ID != "a2" {
		t.Errorf("got %v, expected just a2", ids(polled))
	}

	// Rebuild keeps only pending alerts.
	q.Rebuild([]Alert{
		{ID: "b1", Priority: 2, Status: AlertQueued},
		{ID: "b2", Priority: 8, Status: AlertNew},
		{ID: "b3", Priority: 9, Status: AlertAssigned},
		{ID: "b4", Priority: 1, Status: AlertExpired},
	})
	polled := q.Poll(4)
	if len(polled) != 2 || polled[0].ID != "b2" || polled[1].ID != "b1" {
		t.Errorf("rebuilt queue polled %v, expected b2, b1", ids(polled))
	}
}

func ids(alerts []Alert) []string {
	s := make([]string, len(alerts))
	for i, a := range alerts {
		s[i] = a.ID
	}
	return s
}

func TestRegistryUpdate(t *testing.T) {
	r := NewRegistry(nil, log.Discard())
	home := math.MakePoint2LL(37.7749, -122.4194)

	if err := r.Add(UAV{ID: "U1", Status: UAVAvailable, Battery: 90, Position: home, Home: home}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add(UAV{ID: "U1", Status: UAVAvailable, Battery: 90}); !errors.Is(err, ErrDuplicateUAV) {
		t.Errorf("got %v, expected ErrDuplicateUAV", err)
	}

	if err := r.Update("U1", func(u *UAV) error {
		u.Status = UAVAssigned
		u.MissionID = "M1"
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	u, ok := r.Get("U1")
	if !ok || u.Status != UAVAssigned || u.MissionID != "M1" {
		t.Errorf("got %+v, expected assigned with mission M1", u)
	}

	if err := r.Update("nope", func(u *UAV) error { return nil }); !errors.Is(err, ErrNoSuchUAV) {
		t.Errorf("got %v, expected ErrNoSuchUAV", err)
	}
}

func TestRegistryInvariants(t *testing.T) {
	r := NewRegistry(nil, log.Discard())
	_ = r.Add(UAV{ID: "U1", Status: UAVAvailable, Battery: 50})

	// A mutation that breaks the mission/status invariant must not
	// commit.
	err := r.Update("U1", func(u *UAV) error {
		u.MissionID = "M1" // status stays available
		return nil
	})
	if !errors.Is(err, ErrStateInvariant) {
		t.Errorf("got %v, expected ErrStateInvariant", err)
	}

	u, _ := r.Get("U1")
	if u.MissionID != "" {
		t.Errorf("failed update leaked mission id %q", u.MissionID)
	}
}

func TestRegistryCandidates(t *testing.T) {
	r := NewRegistry(nil, log.Discard())
	base := math.MakePoint2LL(37.7749, -122.4194)

	add := func(id string, status UAVStatus, battery float64) {
		uav := UAV{ID: id, Status: status, Battery: battery, Position: base, LastSeen: time.Now()}
		if status.HasMission() {
			uav.MissionID = "M-" + id
		}
		if err := r.Add(uav); err != nil {
			t.Fatalf("Add(%s): %v", id, err)
		}
	}
	add("U1", UAVAvailable, 90)
	add("U2", UAVAvailable, 25)
	add("U3", UAVInMission, 80)
	add("U4", UAVCharging, 95)

	got := r.Candidates(Available(30))
	if len(got) != 1 || got[0].ID != "U1" {
		t.Errorf("candidates %v, expected just U1", got)
	}
}

func TestTileGeometry(t *testing.T) {
	// A roughly 1 km x 1 km tile.
	sw := math.MakePoint2LL(37.0, -122.0)
	poly := []math.Point2LL{
		sw,
		math.Meters2LL([2]float64{1000, 0}, sw),
		math.Meters2LL([2]float64{1000, 1000}, sw),
		math.Meters2LL([2]float64{0, 1000}, sw),
	}
	tile := MakeTile("T10", poly, 5)

	if tile.Status != TileUnmonitored {
		t.Errorf("new tile status %s, expected unmonitored", tile.Status)
	}

	if a := tile.AreaSqMeters(); gomath.Abs(a-1e6) > 1e4 {
		t.Errorf("area %g, expected about 1e6", a)
	}

	inside := math.Meters2LL([2]float64{500, 500}, sw)
	if !tile.Contains(inside) {
		t.Error("center not contained")
	}
	outside := math.Meters2LL([2]float64{1500, 500}, sw)
	if tile.Contains(outside) {
		t.Error("outside point contained")
	}
}
