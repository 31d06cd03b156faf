package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/cache"
)

const scanBatch = 200

// Invalidator deletes cached views from Redis.
type Invalidator struct {
	rdb redis.UniversalClient
	log *zap.Logger
}

func NewInvalidator(rdb redis.UniversalClient, log *zap.Logger) *Invalidator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Invalidator{rdb: rdb, log: log}
}

func (i *Invalidator) Invalidate(ctx context.Context, scope cache.Scope, keys ...string) error {
	var (
		del     []string
		pattern string
	)
	switch scope {
	case cache.ScopeOrders:
		del = []string{KeyOrdersAll}
	case cache.ScopeProducts:
		del = append(del, KeyProductsAll)
		if len(keys) == 0 {
			pattern = patternProduct
		}
		for _, k := range keys {
			del = append(del, fmt.Sprintf(KeyProduct, k))
		}
	case cache.ScopeOrderByID:
		if len(keys) == 0 {
			pattern = patternOrder
		}
		for _, k := range keys {
			del = append(del, fmt.Sprintf(KeyOrder, k))
		}
	case cache.ScopeOrdersByStatus:
		del = append(del, KeyOrderStats)
		if len(keys) == 0 {
			pattern = patternOrdersByStatus
		}
		for _, k := range keys {
			del = append(del, fmt.Sprintf(KeyOrdersByStatus, k))
		}
	default:
		return fmt.Errorf("invalidate: unknown scope %q", scope)
	}

	if pattern != "" {
		matched, err := i.scan(ctx, pattern)
		if err != nil {
			return fmt.Errorf("invalidate %s: %w", scope, err)
		}
		del = append(del, matched...)
	}
	if len(del) == 0 {
		return nil
	}

	_, err := i.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range del {
			p.Del(ctx, k)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate %s: %w", scope, err)
	}
	i.log.Debug("cache invalidated", zap.String("scope", string(scope)), zap.Strings("keys", del))
	return nil
}

func (i *Invalidator) scan(ctx context.Context, pattern string) ([]string, error) {
	var (
		out    []string
		cursor uint64
	)
	for {
		keys, next, err := i.rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, err
		}
		out = append(out, keys...)
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}
