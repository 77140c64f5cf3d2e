// store/ratelimit.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package store

import (
	"context"
	"time"

	"github.com/firewatch-uas/firewatch/log"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// RateTracker counts events per key over a sliding expiry window. It
// backs the hub's auth-failure blacklist and any other concern that
// needs (lookup, insert, expire) semantics. When a Redis address is
// configured the counts are shared across processes; otherwise an
// in-process expirable LRU suffices.
type RateTracker struct {
	ttl   time.Duration
	local *expirable.LRU[string, int]
	rdb   *redis.Client
	lg    *log.Logger
}

// NewRateTracker returns a tracker with the given expiry window.
// redisAddr may be empty for a purely in-memory tracker.
func NewRateTracker(redisAddr string, ttl time.Duration, lg *log.Logger) *RateTracker {
	t := &RateTracker{
		ttl:   ttl,
		local: expirable.NewLRU[string, int](4096, nil, ttl),
		lg:    lg,
	}
	if redisAddr != "" {
		t.rdb = redis.NewClient(&redis.Options{Addr: redisAddr})
	}
	return t
}

// Insert records one event for the key and returns the updated count.
func (t *RateTracker) Insert(ctx context.Context, key string) int {
	if t.rdb != nil {
		pipe := t.rdb.TxPipeline()
		incr := pipe.Incr(ctx, "rate:"+key)
		pipe.Expire(ctx, "rate:"+key, t.ttl)
		if _, err := pipe.Exec(ctx); err == nil {
			return int(incr.Val())
		} else {
			// Redis down: degrade to the local tracker.
			t.lg.Warnf("rate tracker: redis: %v", err)
		}
	}

	n, _ := t.local.Get(key)
	n++
	t.local.Add(key, n)
	return n
}

// Lookup returns the current count for the key.
func (t *RateTracker) Lookup(ctx context.Context, key string) int {
	if t.rdb != nil {
		if n, err := t.rdb.Get(ctx, "rate:"+key).Int(); err == nil {
			return n
		} else if err != redis.Nil {
			t.lg.Warnf("rate tracker: redis: %v", err)
		} else {
			return 0
		}
	}

	n, _ := t.local.Get(key)
	return n
}

// Expire clears the key immediately.
func (t *RateTracker) Expire(ctx context.Context, key string) {
	if t.rdb != nil {
		if err := t.rdb.Del(ctx, "rate:"+key).Err(); err != nil {
			t.lg.Warnf("rate tracker: redis: %v", err)
		}
	}
	t.local.Remove(key)
}
