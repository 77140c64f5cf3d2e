// ops/statistics.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package ops

import (
	"context"
	"sync"
	"time"

	"github.com/firewatch-uas/firewatch/fleet"
	"github.com/firewatch-uas/firewatch/log"
)

// Statistics tallies system activity off the event stream for the
// status page and the system_status channel.
type Statistics struct {
	mu sync.Mutex

	Start             time.Time
	AlertsSeen        int
	MissionsCompleted int
	MissionsFailed    int
	MissionsAborted   int
	Detections        int
	TelemetryApplied  int
	TracksConfirmed   int

	// Alert created -> mission assigned latency.
	responseSum   time.Duration
	responseCount int
	queuedAt      map[string]time.Time

	// Total area of tiles whose missions completed, square meters.
	AreaSurveyed float64

	tiles *fleet.TileSet
	sub   *EventsSubscription
	lg    *log.Logger
}

func NewStatistics(es *EventStream, tiles *fleet.TileSet, lg *log.Logger) *Statistics {
	return &Statistics{
		Start:    time.Now(),
		queuedAt: make(map[string]time.Time),
		tiles:    tiles,
		sub:      es.Subscribe(),
		lg:       lg,
	}
}

// Run consumes the event stream until the context is canceled.
func (s *Statistics) Run(ctx context.Context) {
	defer s.lg.CatchAndReportCrash()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.sub.Unsubscribe()
			return
		case <-ticker.C:
			s.tally(s.sub.Get())
		}
	}
}

func (s *Statistics) tally(events []Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range events {
		switch ev.Type {
		case AlertEvent:
			if ev.Alert == nil {
				break
			}
			switch ev.Alert.Status {
			case fleet.AlertQueued:
				s.AlertsSeen++
				s.queuedAt[ev.Alert.ID] = ev.Time
			case fleet.AlertAssigned:
				if t0, ok := s.queuedAt[ev.Alert.ID]; ok {
					s.responseSum += ev.Time.Sub(t0)
					s.responseCount++
					delete(s.queuedAt, ev.Alert.ID)
				}
			case fleet.AlertExpired, fleet.AlertFalsePositive:
				delete(s.queuedAt, ev.Alert.ID)
			}
		case MissionUpdateEvent:
			if ev.Mission == nil {
				break
			}
			switch ev.Mission.Status {
			case fleet.MissionCompleted:
				s.MissionsCompleted++
				if s.tiles != nil {
					if tile, ok := s.tiles.Get(ev.Mission.TileID); ok {
						s.AreaSurveyed += tile.AreaSqMeters()
					}
				}
			case fleet.MissionFailed:
				s.MissionsFailed++
			case fleet.MissionAborted:
				s.MissionsAborted++
			}
		case DetectionEvent:
			s.Detections++
		case TelemetryEvent:
			s.TelemetryApplied++
		case TrackUpdateEvent:
			s.TracksConfirmed++
		}
	}
}

// Summary is a copyable snapshot of the counters.
type StatisticsSummary struct {
	Uptime            time.Duration `json:"uptime"`
	AlertsSeen        int           `json:"alerts_seen"`
	MissionsCompleted int           `json:"missions_completed"`
	MissionsFailed    int           `json:"missions_failed"`
	MissionsAborted   int           `json:"missions_aborted"`
	Detections        int           `json:"detections"`
	TelemetryApplied  int           `json:"telemetry_applied"`
	TracksConfirmed   int           `json:"tracks_confirmed"`
	MeanResponseTime  time.Duration `json:"mean_response_time"`
	AreaSurveyedSqM   float64       `json:"area_surveyed_sq_m"`
}

func (s *Statistics) Summary() StatisticsSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := StatisticsSummary{
		Uptime:            time.Since(s.Start).Round(time.Second),
		AlertsSeen:        s.AlertsSeen,
		MissionsCompleted: s.MissionsCompleted,
		MissionsFailed:    s.MissionsFailed,
		MissionsAborted:   s.MissionsAborted,
		Detections:        s.Detections,
		TelemetryApplied:  s.TelemetryApplied,
		TracksConfirmed:   s.TracksConfirmed,
		AreaSurveyedSqM:   s.AreaSurveyed,
	}
	if s.responseCount > 0 {
		sum.MeanResponseTime = s.responseSum / time.Duration(s.responseCount)
	}
	return sum
}
