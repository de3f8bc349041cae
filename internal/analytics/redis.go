package analytics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRetention bounds how long counter keys survive in Redis.
const DefaultRetention = 30 * 24 * time.Hour

// windows lists the supported bucketing windows. Every screen view is
// counted into all of them so the stats API can serve any window
// without rollup math at read time.
var windows = []time.Duration{time.Minute, 5 * time.Minute, time.Hour}

// ParseWindow maps a query value onto a supported bucketing window.
func ParseWindow(s string) (time.Duration, error) {
	switch s {
	case "", "1m":
		return time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	}
	return 0, fmt.Errorf("unsupported window %q", s)
}

// BucketCount is one time bucket of a screen's view counter.
type BucketCount struct {
	Bucket string `json:"bucket"`
	Count  int64  `json:"count"`
}

// RedisCounter accumulates screen view counts in Redis. Counters are a
// best-effort side channel and never affect event delivery.
type RedisCounter struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedisCounter(client *redis.Client, retention time.Duration) *RedisCounter {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisCounter{client: client, retention: retention}
}

// RecordScreenView increments the counters for a screen in every window
// bucket the view falls into, plus the day hash the report reads.
func (c *RedisCounter) RecordScreenView(ctx context.Context, screenName string, at time.Time) error {
	pipe := c.client.Pipeline()
	for _, window := range windows {
		key := buildKey(screenName, at, window)
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, c.retention)
	}
	day := dayKey(at)
	pipe.HIncrBy(ctx, day, screenName, 1)
	pipe.Expire(ctx, day, c.retention)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}

	return nil
}

// CountsFor returns the last n buckets for one screen at the given
// window, oldest first. Buckets with no views count zero.
func (c *RedisCounter) CountsFor(ctx context.Context, screenName string, window time.Duration, n int, now time.Time) ([]BucketCount, error) {
	keys := make([]string, 0, n)
	labels := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		t := now.Add(-time.Duration(i) * window)
		keys = append(keys, buildKey(screenName, t, window))
		labels = append(labels, truncateToBucket(t, window))
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	result := make([]BucketCount, 0, n)
	for i, v := range values {
		var count int64
		if raw, ok := v.(string); ok {
			count, err = strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("corrupt counter %q: %w", keys[i], err)
			}
		}
		result = append(result, BucketCount{Bucket: labels[i], Count: count})
	}
	return result, nil
}

// DayCounts returns the per-screen view counts for the given UTC day.
// A day with no views yields an empty map.
func (c *RedisCounter) DayCounts(ctx context.Context, day time.Time) (map[string]int64, error) {
	fields, err := c.client.HGetAll(ctx, dayKey(day)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}

	counts := make(map[string]int64, len(fields))
	for screen, raw := range fields {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt counter for screen %q: %w", screen, err)
		}
		counts[screen] = n
	}
	return counts, nil
}

// Ping reports whether Redis is reachable.
func (c *RedisCounter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// buildKey carries the window token because bucket labels alone are
// ambiguous: at minutes divisible by five the 1m and 5m labels render
// identically.
func buildKey(screenName string, t time.Time, window time.Duration) string {
	return fmt.Sprintf("screen:%s:%s:%s", screenName, windowToken(window), truncateToBucket(t, window))
}

func windowToken(window time.Duration) string {
	switch window {
	case 5 * time.Minute:
		return "5m"
	case time.Hour:
		return "1h"
	default:
		return "1m"
	}
}

func dayKey(t time.Time) string {
	return "views:" + t.UTC().Format("2006-01-02")
}

func truncateToBucket(t time.Time, window time.Duration) string {
	t = t.UTC()
	switch window {
	case time.Minute:
		return t.Format("200601021504")
	case 5 * time.Minute:
		minute := (t.Minute() / 5) * 5
		return t.Format("2006010215") + fmt.Sprintf("%02d", minute)
	case time.Hour:
		return t.Format("2006010215")
	default:
		return t.Format("200601021504")
	}
}
