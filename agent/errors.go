// agent/errors.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package agent

import "errors"

var (
	ErrUnknownCommand = errors.New("Unknown vehicle command")
	ErrNoWaypoints    = errors.New("Goto command carries no waypoints")
)
