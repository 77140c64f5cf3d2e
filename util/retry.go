// util/retry.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"context"
	"time"
)

// Retry calls fn up to attempts times, sleeping with exponential backoff
// between failures, starting at initial and capped at max. It returns nil
// as soon as fn succeeds, the context's error if it is canceled while
// waiting, and otherwise the last error from fn.
func Retry(ctx context.Context, attempts int, initial, max time.Duration, fn func() error) error {
	var err error
	wait := initial
	for i := range attempts {
		if err = fn(); err == nil {
			return nil
		}

		if i+1 == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait = min(2*wait, max)
	}
	return err
}
