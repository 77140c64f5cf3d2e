// cmd/firewatch/config.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/firewatch-uas/firewatch/agent"
	"github.com/firewatch-uas/firewatch/fleet"
	"github.com/firewatch-uas/firewatch/math"
	"github.com/firewatch-uas/firewatch/server"
)

// LoadConfig reads the coordinator configuration; an empty path gives
// the built-in defaults.
func LoadConfig(path string) (server.Config, error) {
	var cfg server.Config
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// addSimFleet appends n simulated vehicles (and their registry seeds) to
// the configuration, spread around the first configured tile or a
// default operating area.
func addSimFleet(cfg *server.Config, n int) {
	home := math.MakePoint2LL(37.7749, -122.4194)
	if len(cfg.Tiles) > 0 {
		home = cfg.Tiles[0].Centroid
	}

	for i := range n {
		id := fmt.Sprintf("sim-%02d", i+1)
		p := math.Offset2LL(home, float64(i)*360/float64(n), 200)

		cfg.SimAgents = append(cfg.SimAgents, agent.SimConfig{
			UAVID:         id,
			Home:          p,
			DetectionRate: 0.2,
			Seed:          int64(i + 1),
		})
		cfg.UAVs = append(cfg.UAVs, fleet.UAV{
			ID:       id,
			Name:     "Simulated " + id,
			Position: p,
			Home:     p,
			Battery:  100,
			Status:   fleet.UAVAvailable,
		})
	}
}
