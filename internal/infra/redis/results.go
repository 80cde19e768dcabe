package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/gramo/internal/core/domain"
)

// ResultCache implements storage.ResultCache using Redis.
type ResultCache struct {
	client *Client
}

// NewResultCache creates a Redis-backed result cache.
func NewResultCache(client *Client) *ResultCache {
	return &ResultCache{client: client}
}

// Get returns the cached result for key.
func (c *ResultCache) Get(ctx context.Context, key string) (*domain.PipelineResult, bool, error) {
	data, err := c.client.rdb.Get(ctx, resultKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached result: %w", err)
	}

	var res domain.PipelineResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached result: %w", err)
	}
	return &res, true, nil
}

// Set stores res under key for the configured TTL.
func (c *ResultCache) Set(ctx context.Context, key string, res *domain.PipelineResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := c.client.rdb.Set(ctx, resultKey(key), data, c.client.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache result: %w", err)
	}
	return nil
}
