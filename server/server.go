// server/server.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package server assembles the coordinator: store, bus, registry,
// scheduler, dispatcher, ingestors, the websocket hub, and the status
// HTTP endpoint, wired together at startup and driven until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/firewatch-uas/firewatch/agent"
	"github.com/firewatch-uas/firewatch/bus"
	"github.com/firewatch-uas/firewatch/fleet"
	"github.com/firewatch-uas/firewatch/log"
	"github.com/firewatch-uas/firewatch/ops"
	"github.com/firewatch-uas/firewatch/store"
	"github.com/firewatch-uas/firewatch/track"

	"golang.org/x/sync/errgroup"
)

const authFailureTTL = 15 * time.Minute

type Config struct {
	HTTPAddr  string `json:"http_addr"`
	BrokerURL string `json:"broker_url"`
	ClientID  string `json:"client_id"`

	// Empty DSN selects the in-memory store.
	DSN       string `json:"dsn,omitempty"`
	RedisAddr string `json:"redis_addr,omitempty"`

	// S3 bucket for detection imagery; empty disables archiving.
	EvidenceBucket string `json:"evidence_bucket,omitempty"`

	// Periodic state snapshot file. Without a DSN the last snapshot is
	// reloaded at startup, so a databaseless deployment still resumes
	// from recent state.
	SnapshotPath string `json:"snapshot_path,omitempty"`

	Scheduler  ops.SchedulerConfig  `json:"scheduler"`
	Dispatcher ops.DispatcherConfig `json:"dispatcher"`
	Telemetry  ops.TelemetryConfig  `json:"telemetry"`
	Detection  ops.DetectionConfig  `json:"detection"`
	Hub        HubConfig            `json:"hub"`

	// Initial operating area and fleet; ignored for entities already
	// present in the store.
	Tiles []fleet.Tile `json:"tiles,omitempty"`
	UAVs  []fleet.UAV  `json:"uavs,omitempty"`

	// Simulated vehicles to run in-process.
	SimAgents []agent.SimConfig `json:"sim_agents,omitempty"`
}

func (c *Config) SetDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.BrokerURL == "" {
		c.BrokerURL = "tcp://localhost:1883"
	}
	if c.ClientID == "" {
		c.ClientID = "firewatch-coordinator"
	}
}

type Server struct {
	cfg     Config
	started time.Time
	lg      *log.Logger

	st       store.Store
	bc       *bus.Client
	es       *ops.EventStream
	registry *fleet.Registry
	queue    *fleet.AlertQueue
	tiles    *fleet.TileSet
	tracker  *track.Tracker

	missions   *ops.MissionManager
	dispatcher *ops.Dispatcher
	scheduler  *ops.Scheduler
	telemetry  *ops.TelemetryIngestor
	detections *ops.DetectionIngestor
	stats      *ops.Statistics
	hub        *Hub

	agents []*agent.Agent
}

// New builds the full coordinator. Fatal configuration problems (an
// unreachable database, corrupt persisted state) surface here; the bus
// is fail-soft and connects in Run.
func New(ctx context.Context, cfg Config, lg *log.Logger) (*Server, error) {
	cfg.SetDefaults()

	var st store.Store
	if cfg.DSN != "" {
		sqlStore, err := store.NewSQLStore(ctx, cfg.DSN, lg)
		if err != nil {
			return nil, err
		}
		st = sqlStore
	} else {
		lg.Infof("no DSN configured; state is in-memory only")
		st = store.NewMemStore()
		if cfg.SnapshotPath != "" {
			if err := restoreSnapshot(ctx, st, cfg.SnapshotPath, lg); err != nil {
				return nil, err
			}
		}
	}

	s := &Server{
		cfg:      cfg,
		started:  time.Now(),
		lg:       lg,
		st:       st,
		bc:       bus.NewClient(cfg.BrokerURL, cfg.ClientID, lg),
		es:       ops.NewEventStream(lg),
		registry: fleet.NewRegistry(store.NewUAVJournal(st), lg),
		queue:    fleet.NewAlertQueue(1024),
		tracker:  track.NewTracker(lg),
	}

	if err := s.restore(ctx); err != nil {
		return nil, err
	}

	s.missions = ops.NewMissionManager(st, s.es, lg)
	if err := s.missions.Restore(ctx); err != nil {
		return nil, err
	}

	s.dispatcher = ops.NewDispatcher(s.bc, s.missions, s.registry, s.tiles,
		s.queue, st, s.es, cfg.Dispatcher, nil, lg)
	s.scheduler = ops.NewScheduler(s.registry, s.queue, s.tiles, s.dispatcher,
		st, s.es, cfg.Scheduler, lg)
	if err := s.scheduler.Restore(ctx); err != nil {
		return nil, err
	}

	s.telemetry = ops.NewTelemetryIngestor(s.bc, s.registry, s.missions,
		s.dispatcher, st, s.es, cfg.Telemetry, lg)

	var evidence ops.EvidenceArchiver
	if cfg.EvidenceBucket != "" {
		ev, err := store.NewEvidenceStore(ctx, cfg.EvidenceBucket, lg)
		if err != nil {
			return nil, err
		}
		evidence = ev
	}
	s.detections = ops.NewDetectionIngestor(s.bc, s.registry, s.tracker,
		st, evidence, s.es, cfg.Detection, lg)
	s.stats = ops.NewStatistics(s.es, s.tiles, lg)

	failures := store.NewRateTracker(cfg.RedisAddr, authFailureTTL, lg)
	s.hub = NewHub(s.es, failures, cfg.Hub, lg)

	for _, sc := range cfg.SimAgents {
		ac := bus.NewClient(cfg.BrokerURL, "firewatch-agent-"+sc.UAVID, lg)
		s.agents = append(s.agents, agent.New(ac, agent.NewSimVehicle(sc),
			agent.Config{UAVID: sc.UAVID}, lg))
	}
	return s, nil
}

// restoreSnapshot reloads the last snapshot into a fresh in-memory
// store. A missing file is a cold start, not an error.
func restoreSnapshot(ctx context.Context, st store.Store, path string, lg *log.Logger) error {
	snap, err := store.ReadSnapshot(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	for _, t := range snap.Tiles {
		if err := st.SaveTile(ctx, t); err != nil {
			return err
		}
	}
	for _, u := range snap.UAVs {
		if err := st.SaveUAV(ctx, u); err != nil {
			return err
		}
	}
	for _, m := range snap.Missions {
		if err := st.SaveMission(ctx, m); err != nil {
			return err
		}
	}
	for _, a := range snap.Alerts {
		if err := st.SaveAlert(ctx, a); err != nil {
			return err
		}
	}

	lg.Infof("restored snapshot %s taken %s: %d tiles, %d UAVs, %d missions, %d alerts",
		path, snap.Taken.Format(time.RFC3339), len(snap.Tiles), len(snap.UAVs),
		len(snap.Missions), len(snap.Alerts))
	return nil
}

// restore loads tiles and UAVs from the store, seeding from the config
// anything not yet persisted.
func (s *Server) restore(ctx context.Context) error {
	tiles, err := s.st.Tiles(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]bool)
	for _, t := range tiles {
		known[t.ID] = true
	}
	for _, t := range s.cfg.Tiles {
		if !known[t.ID] {
			if err := s.st.SaveTile(ctx, t); err != nil {
				return err
			}
			tiles = append(tiles, t)
		}
	}
	s.tiles = fleet.NewTileSet(tiles)

	uavs, err := s.st.UAVs(ctx)
	if err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, u := range uavs {
		// Vehicles are unreachable until they report in.
		u.Connected = false
		if err := s.registry.Add(u); err != nil {
			return err
		}
		seen[u.ID] = true
	}
	for _, u := range s.cfg.UAVs {
		if seen[u.ID] {
			continue
		}
		if u.Status == "" {
			u.Status = fleet.UAVAvailable
		}
		if err := s.registry.Add(u); err != nil {
			return err
		}
	}
	return nil
}

// snapshotLoop images the store every 15 minutes and once more at
// shutdown.
func (s *Server) snapshotLoop(ctx context.Context) {
	defer s.lg.CatchAndReportCrash()

	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.writeSnapshot(context.Background())
			return
		case <-ticker.C:
			s.writeSnapshot(ctx)
		}
	}
}

func (s *Server) writeSnapshot(ctx context.Context) {
	snap, err := store.TakeSnapshot(ctx, s.st)
	if err != nil {
		s.lg.Warnf("snapshot: %v", err)
		return
	}
	if err := snap.Write(s.cfg.SnapshotPath); err != nil {
		s.lg.Warnf("snapshot: %s: %v", s.cfg.SnapshotPath, err)
		return
	}
	s.lg.Debugf("snapshot: wrote %s", s.cfg.SnapshotPath)
}

// systemStatusLoop periodically posts a fleet summary to the event
// stream for subscribers of the hub's system channel.
func (s *Server) systemStatusLoop(ctx context.Context) {
	defer s.lg.CatchAndReportCrash()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			var available, flying int
			uavs := s.registry.Snapshot()
			for _, u := range uavs {
				switch u.Status {
				case fleet.UAVAvailable:
					available++
				case fleet.UAVAssigned, fleet.UAVInMission, fleet.UAVReturning:
					flying++
				}
			}
			s.es.Post(ops.Event{
				Type: ops.SystemStatusEvent,
				Time: now,
				Message: fmt.Sprintf("%d UAVs (%d available, %d flying), %d active missions, %d queued alerts",
					len(uavs), available, flying, len(s.missions.Active()), s.queue.Len()),
			})
		}
	}
}

// Run connects the bus and drives every component until the context is
// canceled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.bc.Connect(); err != nil {
		// Fail-soft: the client reconnects in the background and
		// resubscribes on its own.
		s.lg.Warnf("bus: %v", err)
	}
	defer s.bc.Disconnect()

	if err := s.scheduler.Start(ctx, s.bc); err != nil {
		return err
	}
	if err := s.telemetry.Start(ctx); err != nil {
		return err
	}
	if err := s.detections.Start(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { s.stats.Run(ctx); return nil })
	g.Go(func() error { s.hub.Run(ctx); return nil })
	g.Go(func() error { s.systemStatusLoop(ctx); return nil })
	if s.cfg.SnapshotPath != "" {
		g.Go(func() error { s.snapshotLoop(ctx); return nil })
	}
	for _, a := range s.agents {
		g.Go(func() error { return a.Run(ctx) })
	}

	httpServer := &http.Server{Addr: s.cfg.HTTPAddr, Handler: s.httpMux()}
	g.Go(func() error {
		s.lg.Infof("http: listening on %s", s.cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
