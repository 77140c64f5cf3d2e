// server/http.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"runtime"
	"time"

	"github.com/firewatch-uas/firewatch/fleet"
	"github.com/firewatch-uas/firewatch/ops"

	"github.com/shirou/gopsutil/v3/cpu"
)

// statusDocument is the JSON shape of /api/status.
type statusDocument struct {
	Uptime         string              `json:"uptime"`
	CPUPercent     float64             `json:"cpu_percent"`
	Goroutines     int                 `json:"goroutines"`
	Statistics     ops.StatisticsSummary `json:"statistics"`
	UAVs           []fleet.UAV         `json:"uavs"`
	ActiveMissions []fleet.Mission     `json:"active_missions"`
	Tiles          []fleet.Tile        `json:"tiles"`
	QueuedAlerts   int                 `json:"queued_alerts"`
	HubSubscribers int                 `json:"hub_subscribers"`
}

func (s *Server) statusDocument() statusDocument {
	doc := statusDocument{
		Uptime:         time.Since(s.started).Round(time.Second).String(),
		Goroutines:     runtime.NumGoroutine(),
		Statistics:     s.stats.Summary(),
		UAVs:           s.registry.Snapshot(),
		ActiveMissions: s.missions.Active(),
		Tiles:          s.tiles.Snapshot(),
		QueuedAlerts:   s.queue.Len(),
		HubSubscribers: s.hub.Subscribers(),
	}
	if usage, err := cpu.Percent(0, false); err == nil && len(usage) == 1 {
		doc.CPUPercent = usage[0]
	}
	return doc
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.statusDocument()); err != nil {
		s.lg.Warnf("status: encoding: %v", err)
	}
}

func (s *Server) httpMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.hub)
	mux.HandleFunc("/api/status", s.handleStatus)

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}
