// Package cache keeps short-lived copies of hot reads and request
// idempotency keys in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/gas-agency/internal/domain/stock"
)

const stockKeyPrefix = "stock:"

// StockCache is a read-through cache of stock records. Entries expire after
// ttl and are dropped whenever the record changes.
type StockCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewStockCache(client redis.Cmdable, ttl time.Duration) *StockCache {
	return &StockCache{client: client, ttl: ttl}
}

// Get returns the cached record and whether it was present.
func (c *StockCache) Get(ctx context.Context, agencyID string) (*stock.Record, bool, error) {
	raw, err := c.client.Get(ctx, stockKeyPrefix+agencyID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var rec stock.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, false, fmt.Errorf("decode cached stock record: %w", err)
	}
	return &rec, true, nil
}

func (c *StockCache) Set(ctx context.Context, rec *stock.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, stockKeyPrefix+rec.AgencyID, string(data), c.ttl).Err()
}

func (c *StockCache) Invalidate(ctx context.Context, agencyID string) error {
	return c.client.Del(ctx, stockKeyPrefix+agencyID).Err()
}
