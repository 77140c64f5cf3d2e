// fleet/errors.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package fleet

import "errors"

var (
	ErrNoSuchUAV      = errors.New("No such UAV")
	ErrDuplicateUAV   = errors.New("UAV already registered")
	ErrStateInvariant = errors.New("UAV state invariant violated")
	ErrQueueFull      = errors.New("Alert queue is full")
	ErrNoSuchTile     = errors.New("No such tile")
)
