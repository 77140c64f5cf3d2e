// fleet/alerts.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package fleet

import (
	"container/heap"
	"log/slog"
	"sync"
	"time"

	"github.com/firewatch-uas/firewatch/math"
)

type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// Level maps severity to an ordinal for threshold comparisons.
func (s AlertSeverity) Level() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return -1
}

type AlertStatus string

const (
	AlertNew           AlertStatus = "new"
	AlertQueued        AlertStatus = "queued"
	AlertAssigned      AlertStatus = "assigned"
	AlertInvestigating AlertStatus = "investigating"
	AlertVerified      AlertStatus = "verified"
	AlertFalsePositive AlertStatus = "false_positive"
	AlertExpired       AlertStatus = "expired"
)

// Alert is a satellite-derived event requiring UAV investigation.
type Alert struct {
	ID         string         `json:"id"`
	TileID     string         `json:"tile_id"`
	EventType  string         `json:"event_type"`
	Confidence float64        `json:"confidence"`
	Severity   AlertSeverity  `json:"severity"`
	Priority   int            `json:"priority"`
	Position   math.Point2LL  `json:"position"`
	Status     AlertStatus    `json:"status"`
	Created    time.Time      `json:"created"`
	Demotions  int            `json:"demotions,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (a Alert) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", a.ID),
		slog.String("tile", a.TileID),
		slog.String("severity", string(a.Severity)),
		slog.Int("priority", a.Priority),
		slog.String("status", string(a.Status)))
}

///////////////////////////////////////////////////////////////////////////
// AlertQueue

// AlertQueue is a bounded priority queue of pending alerts. Higher
// priority dequeues first; equal priorities dequeue in arrival order.
// The queue holds only alert records; durability comes from the
// surrounding store, and Rebuild reconstitutes the queue from persisted
// alerts after a restart.
type AlertQueue struct {
	mu       sync.Mutex
	capacity int
	seq      int
	items    alertHeap
	byID     map[string]*queuedAlert
}

type queuedAlert struct {
	alert Alert
	seq   int
	index int // position in the heap, maintained by heap.Interface
}

func NewAlertQueue(capacity int) *AlertQueue {
	return &AlertQueue{
		capacity: capacity,
		byID:     make(map[string]*queuedAlert),
	}
}

// Offer enqueues an alert, returning ErrQueueFull when the queue is at
// capacity. Offering an alert whose id is already queued replaces the
// queued record but keeps its arrival order.
func (q *AlertQueue) Offer(a Alert) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if qa, ok := q.byID[a.ID]; ok {
		qa.alert = a
		heap.Fix(&q.items, qa.index)
		return nil
	}

	if len(q.items) >= q.capacity {
		return ErrQueueFull
	}

	q.seq++
	qa := &queuedAlert{alert: a, seq: q.seq}
	heap.Push(&q.items, qa)
	q.byID[a.ID] = qa
	return nil
}

// Poll returns up to n of the highest-priority alerts without removing
// them; unmatched alerts stay queued for the next cycle. The returned
// slice is ordered highest priority first.
func (q *AlertQueue) Poll(n int) []Alert {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Pop from a shallow copy of the heap so the queue is untouched.
	scratch := make(alertHeap, len(q.items))
	copy(scratch, q.items)

	var polled []Alert
	for len(polled) < n && len(scratch) > 0 {
		qa := heap.Pop(&scratch).(*queuedAlert)
		polled = append(polled, qa.alert)
	}

	// Popping the copy clobbered the index fields shared with the live
	// heap; restore them.
	for i, qa := range q.items {
		qa.index = i
	}
	return polled
}

// Remove removes the alert with the given id, if queued.
func (q *AlertQueue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	qa, ok := q.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&q.items, qa.index)
	delete(q.byID, id)
	return true
}

func (q *AlertQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Rebuild replaces the queue contents from persisted alerts, keeping
// only those still pending. Arrival order is the order given.
func (q *AlertQueue) Rebuild(alerts []Alert) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = nil
	q.byID = make(map[string]*queuedAlert)
	q.seq = 0
	for _, a := range alerts {
		if a.Status != AlertNew && a.Status != AlertQueued {
			continue
		}
		q.seq++
		qa := &queuedAlert{alert: a, seq: q.seq}
		q.items = append(q.items, qa)
		q.byID[a.ID] = qa
	}
	heap.Init(&q.items)
}

// alertHeap orders by descending priority, then ascending arrival
// sequence.
type alertHeap []*queuedAlert

func (h alertHeap) Len() int { return len(h) }

func (h alertHeap) Less(i, j int) bool {
	if h[i].alert.Priority != h[j].alert.Priority {
		return h[i].alert.Priority > h[j].alert.Priority
	}
	return h[i].seq < h[j].seq
}

func (h alertHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *alertHeap) Push(x any) {
	qa := x.(*queuedAlert)
	qa.index = len(*h)
	*h = append(*h, qa)
}

func (h *alertHeap) Pop() any {
	old := *h
	n := len(old)
	qa := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return qa
}
