// cmd/firewatch/main.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

// This file contains the implementation of the main() function, which
// initializes the coordinator and runs it until the process is signaled
// to exit.

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/firewatch-uas/firewatch/log"
	"github.com/firewatch-uas/firewatch/server"
)

func main() {
	configPath := flag.String("config", "", "path to JSON configuration file")
	logLevel := flag.String("loglevel", "info", "logging level: debug, info, warn, error")
	logDir := flag.String("logdir", "", "log directory (default firewatch-logs)")
	broker := flag.String("broker", "", "MQTT broker URL (overrides config)")
	httpAddr := flag.String("http", "", "HTTP listen address (overrides config)")
	snapshot := flag.String("snapshot", "", "state snapshot file (overrides config)")
	simFleet := flag.Int("sim", 0, "launch this many simulated vehicles")
	flag.Parse()

	lg := log.New(*logLevel, *logDir)
	defer lg.CatchAndReportCrash()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "firewatch: %v\n", err)
		os.Exit(1)
	}
	if *broker != "" {
		cfg.BrokerURL = *broker
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *snapshot != "" {
		cfg.SnapshotPath = *snapshot
	}
	if *simFleet > 0 {
		addSimFleet(&cfg, *simFleet)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, lg)
	if err != nil {
		lg.Errorf("startup: %v", err)
		fmt.Fprintf(os.Stderr, "firewatch: %v\n", err)
		os.Exit(1)
	}

	lg.Infof("firewatch: coordinator starting")
	if err := srv.Run(ctx); err != nil {
		lg.Errorf("run: %v", err)
		fmt.Fprintf(os.Stderr, "firewatch: %v\n", err)
		os.Exit(1)
	}
}
