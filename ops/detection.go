// ops/detection.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package ops

import (
	"context"
	"time"

	"github.com/firewatch-uas/firewatch/bus"
	"github.com/firewatch-uas/firewatch/fleet"
	"github.com/firewatch-uas/firewatch/log"
	"github.com/firewatch-uas/firewatch/math"
	"github.com/firewatch-uas/firewatch/store"
	"github.com/firewatch-uas/firewatch/track"

	"github.com/google/uuid"
)

type DetectionConfig struct {
	// Detections below this confidence are persisted but not broadcast,
	// preventing fan-out floods from noisy inference.
	BroadcastThreshold float64 `json:"broadcast_threshold"`
}

func (c *DetectionConfig) SetDefaults() {
	if c.BroadcastThreshold == 0 {
		c.BroadcastThreshold = 0.5
	}
}

// EvidenceArchiver stores detection imagery and returns its object URL.
// Satisfied by store.EvidenceStore; nil disables archiving.
type EvidenceArchiver interface {
	Put(ctx context.Context, detectionID string, data []byte, contentType string) (string, error)
}

// DetectionIngestor consumes detections and inference/results,
// persists each sighting, associates it with the reporting UAV's
// current mission, archives any attached frame, and feeds the tracker
// and the fan-out stream.
type DetectionIngestor struct {
	bc       *bus.Client
	registry *fleet.Registry
	tracker  *track.Tracker
	st       store.Store
	evidence EvidenceArchiver
	es       *EventStream
	lg       *log.Logger
	cfg      DetectionConfig
}

func NewDetectionIngestor(bc *bus.Client, registry *fleet.Registry, tracker *track.Tracker,
	st store.Store, evidence EvidenceArchiver, es *EventStream, cfg DetectionConfig,
	lg *log.Logger) *DetectionIngestor {
	cfg.SetDefaults()
	return &DetectionIngestor{
		bc:       bc,
		registry: registry,
		tracker:  tracker,
		st:       st,
		evidence: evidence,
		es:       es,
		cfg:      cfg,
		lg:       lg,
	}
}

func (di *DetectionIngestor) Start(ctx context.Context) error {
	if err := di.bc.Subscribe(bus.TopicDetections, di.handle); err != nil {
		return err
	}
	return di.bc.Subscribe(bus.TopicInferenceResults, di.handle)
}

func (di *DetectionIngestor) handle(topic string, payload []byte) {
	msg, err := bus.UnmarshalValidate[bus.DetectionMessage](payload)
	if err != nil {
		di.lg.Warnf("detection: %s: %v", topic, err)
		return
	}

	d := fleet.Detection{
		ID:          uuid.NewString(),
		UAVID:       msg.UAVID,
		MissionID:   msg.MissionID,
		ObjectClass: msg.ObjectClass,
		Confidence:  msg.Confidence,
		Position:    math.MakePoint2LL(msg.Latitude, msg.Longitude),
		BBox:        msg.BBox,
		Created:     msg.Timestamp,
	}
	if d.MissionID == "" {
		if u, ok := di.registry.Get(d.UAVID); ok {
			d.MissionID = u.MissionID
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(msg.Frame) > 0 && di.evidence != nil {
		url, err := di.evidence.Put(ctx, d.ID, msg.Frame, "image/jpeg")
		if err != nil {
			di.lg.Warnf("detection %s: archiving frame: %v", d.ID, err)
		} else {
			d.EvidenceURL = url
		}
	}

	if err := di.st.SaveDetection(ctx, d); err != nil {
		di.lg.Warnf("detection %s: persisting: %v", d.ID, err)
	}

	trackID := di.tracker.Observe(track.Observation{
		Position:   d.Position,
		Class:      d.ObjectClass,
		Confidence: d.Confidence,
		Time:       d.Created,
	})

	if d.Confidence < di.cfg.BroadcastThreshold {
		di.lg.Debugf("detection %s: confidence %g below threshold; persisted only", d.ID, d.Confidence)
		return
	}

	di.es.Post(Event{Type: DetectionEvent, Time: d.Created, Detection: &d})
	if est, ok := di.tracker.Get(trackID); ok && est.Confirmed {
		di.es.Post(Event{Type: TrackUpdateEvent, Time: d.Created, Track: &est})
	}
}
