// ops/errors.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package ops

import "errors"

var (
	ErrNoEligibleUAV      = errors.New("No eligible UAV for alert")
	ErrUnknownMission     = errors.New("Unknown mission")
	ErrDuplicateMission   = errors.New("Mission already exists")
	ErrInvalidTransition  = errors.New("Invalid mission state transition")
	ErrPlanningInfeasible = errors.New("No feasible route to target")
	ErrSchedulerBusy      = errors.New("Scheduler tick already running")
)
