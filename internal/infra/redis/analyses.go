package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/gramo/internal/core/domain"
	"github.com/vietddude/gramo/internal/infra/storage"
)

// AnalysisRepo implements storage.AnalysisRepository using Redis.
// Records are JSON blobs indexed by a sorted set scored by creation time.
type AnalysisRepo struct {
	rdb *redis.Client
}

// NewAnalysisRepo creates a new Redis-backed analysis repository.
func NewAnalysisRepo(client *Client) *AnalysisRepo {
	return &AnalysisRepo{rdb: client.rdb}
}

// Save stores a record and indexes it.
func (r *AnalysisRepo) Save(ctx context.Context, rec *domain.AnalysisRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, analysisKey(rec.ID), data, 0)
	pipe.ZAdd(ctx, analysesIndexKey, redis.Z{
		Score:  float64(rec.CreatedAt.UnixNano()),
		Member: rec.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

// Get retrieves a record by ID.
func (r *AnalysisRepo) Get(ctx context.Context, id string) (*domain.AnalysisRecord, error) {
	data, err := r.rdb.Get(ctx, analysisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrAnalysisNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	var rec domain.AnalysisRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis: %w", err)
	}
	return &rec, nil
}

// List returns the newest records first.
func (r *AnalysisRepo) List(ctx context.Context, limit int) ([]*domain.AnalysisRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	ids, err := r.rdb.ZRevRange(ctx, analysesIndexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange failed: %w", err)
	}

	out := make([]*domain.AnalysisRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := r.Get(ctx, id)
		if errors.Is(err, storage.ErrAnalysisNotFound) {
			// Index entry outlived its blob; drop it.
			_ = r.rdb.ZRem(ctx, analysesIndexKey, id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// DeleteOlderThan drops records created before the given time along with their index entries.
func (r *AnalysisRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	maxScore := "(" + strconv.FormatInt(before.UnixNano(), 10)
	ids, err := r.rdb.ZRangeByScore(ctx, analysesIndexKey, &redis.ZRangeBy{Min: "-inf", Max: maxScore}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore failed: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = analysisKey(id)
		members[i] = id
	}

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, keys...)
	removed := pipe.ZRem(ctx, analysesIndexKey, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to delete analyses: %w", err)
	}
	return removed.Val(), nil
}
