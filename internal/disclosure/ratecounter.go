// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package disclosure

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/fieldguard/internal/clock"
	"github.com/tomtom215/fieldguard/internal/metrics"
)

// RateResult is the outcome of one counter check.
type RateResult struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int

	// ResetAt is when the oldest counted reveal leaves the window and a slot
	// frees up.
	ResetAt time.Time
}

// RateCounter is the authoritative rolling reveal counter. Allow checks and
// increments atomically; a denied call does not count.
type RateCounter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*RateResult, error)
}

// MemoryRateCounter keeps a sliding log of reveal timestamps per key. It is
// correct for a single instance only.
type MemoryRateCounter struct {
	clock clock.Clock

	mu   sync.Mutex
	logs map[string][]time.Time
}

// NewMemoryRateCounter creates a counter on clk.
func NewMemoryRateCounter(clk clock.Clock) *MemoryRateCounter {
	if clk == nil {
		clk = clock.Real()
	}
	return &MemoryRateCounter{clock: clk, logs: make(map[string][]time.Time)}
}

// Allow implements RateCounter.
func (c *MemoryRateCounter) Allow(_ context.Context, key string, limit int, window time.Duration) (*RateResult, error) {
	start := time.Now()
	defer func() { metrics.RecordRateCounter("memory", time.Since(start)) }()

	now := c.clock.Now()
	cutoff := now.Add(-window)

	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.logs[key]
	i := 0
	for i < len(log) && !log[i].After(cutoff) {
		i++
	}
	log = log[i:]

	res := &RateResult{Limit: limit}
	if len(log) < limit {
		log = append(log, now)
		res.Allowed = true
	}
	res.Count = len(log)
	res.Remaining = limit - len(log)
	if len(log) > 0 {
		res.ResetAt = log[0].Add(window)
	} else {
		res.ResetAt = now.Add(window)
	}

	if len(log) == 0 {
		delete(c.logs, key)
	} else {
		c.logs[key] = log
	}
	return res, nil
}

// slidingWindowScript trims the sorted set to the window, then adds the
// member when under the limit. Returns {allowed, count, oldest_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, window)
	count = count + 1
	allowed = 1
end
local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
	oldest = tonumber(first[2])
end
return {allowed, count, oldest}
`)

// RedisRateCounter keeps the sliding log in a Redis sorted set so every
// instance shares one counter per user.
type RedisRateCounter struct {
	client redis.Scripter
	clock  clock.Clock
	prefix string
}

// NewRedisRateCounter creates a counter using client.
func NewRedisRateCounter(client redis.Scripter, clk clock.Clock) *RedisRateCounter {
	if clk == nil {
		clk = clock.Real()
	}
	return &RedisRateCounter{client: client, clock: clk, prefix: "fieldguard:reveals:"}
}

// Allow implements RateCounter.
func (c *RedisRateCounter) Allow(ctx context.Context, key string, limit int, window time.Duration) (*RateResult, error) {
	start := time.Now()
	defer func() { metrics.RecordRateCounter("redis", time.Since(start)) }()

	now := c.clock.Now()
	vals, err := slidingWindowScript.Run(ctx, c.client, []string{c.prefix + key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis rate counter: %w", err)
	}
	if len(vals) != 3 {
		return nil, fmt.Errorf("redis rate counter: unexpected reply %v", vals)
	}

	count := int(vals[1])
	return &RateResult{
		Allowed:   vals[0] == 1,
		Count:     count,
		Limit:     limit,
		Remaining: limit - count,
		ResetAt:   time.UnixMilli(vals[2]).UTC().Add(window),
	}, nil
}

// NewRedisClient parses url and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
