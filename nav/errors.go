// nav/errors.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package nav

import "errors"

var (
	ErrInfeasiblePath  = errors.New("No feasible path between configurations")
	ErrUnreachableGoal = errors.New("Goal cell is unreachable")
	ErrInvalidGrid     = errors.New("Invalid grid dimensions or cells")
	ErrInvalidPattern  = errors.New("Invalid coverage pattern parameters")
)
