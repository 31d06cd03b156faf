package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatsCache keeps the per-status order counts as a JSON document.
type StatsCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewStatsCache(rdb redis.UniversalClient) *StatsCache {
	return &StatsCache{rdb: rdb, ttl: TTLOrdersByStatus}
}

func (c *StatsCache) GetStats(ctx context.Context) (map[string]int64, bool, error) {
	raw, err := c.rdb.Get(ctx, KeyOrderStats).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get order stats: %w", err)
	}
	var stats map[string]int64
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, false, fmt.Errorf("decode order stats: %w", err)
	}
	return stats, true, nil
}

func (c *StatsCache) SetStats(ctx context.Context, stats map[string]int64) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode order stats: %w", err)
	}
	if err := c.rdb.Set(ctx, KeyOrderStats, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set order stats: %w", err)
	}
	return nil
}
