package repository

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/GoPolymarket/botfleet/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	defaultAuditKey = "botfleet:audit"
	defaultAuditMax = 10000
	auditPageSize   = 200
)

// RedisAuditRepo keeps recent audit entries in a sorted set scored by creation time (unix ms),
// so time-range queries are answered by Redis and only the path prefix is filtered here.
type RedisAuditRepo struct {
	client *redis.Client
	key    string
	max    int64
}

func NewRedisAuditRepo(rc *RedisClient, key string, maxEntries int64) *RedisAuditRepo {
	if key == "" {
		key = defaultAuditKey
	}
	if maxEntries <= 0 {
		maxEntries = defaultAuditMax
	}
	return &RedisAuditRepo{client: rc.Client, key: key, max: maxEntries}
}

func (r *RedisAuditRepo) Insert(ctx context.Context, entry *model.AuditLog) error {
	if entry == nil {
		return nil
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, r.key, redis.Z{Score: float64(entry.CreatedAt.UnixMilli()), Member: payload})
	// keep the newest max entries
	pipe.ZRemRangeByRank(ctx, r.key, 0, -r.max-1)
	_, err = pipe.Exec(ctx)
	return err
}

// List returns matching entries newest first.
func (r *RedisAuditRepo) List(ctx context.Context, pathPrefix string, limit int, from, to *time.Time) ([]*model.AuditLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rng := &redis.ZRangeBy{Min: "-inf", Max: "+inf", Count: auditPageSize}
	if from != nil {
		rng.Min = strconv.FormatInt(from.UnixMilli(), 10)
	}
	if to != nil {
		rng.Max = strconv.FormatInt(to.UnixMilli(), 10)
	}

	results := make([]*model.AuditLog, 0, limit)
	for len(results) < limit {
		items, err := r.client.ZRevRangeByScore(ctx, r.key, rng).Result()
		if err != nil {
			return nil, err
		}
		for _, raw := range items {
			var entry model.AuditLog
			if err := json.Unmarshal([]byte(raw), &entry); err != nil {
				continue
			}
			if pathPrefix != "" && !strings.HasPrefix(entry.Path, pathPrefix) {
				continue
			}
			results = append(results, &entry)
			if len(results) >= limit {
				break
			}
		}
		if int64(len(items)) < rng.Count {
			break
		}
		rng.Offset += rng.Count
	}
	return results, nil
}

// Cleanup drops entries older than the retention window.
func (r *RedisAuditRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	return r.client.ZRemRangeByScore(ctx, r.key, "-inf", "("+strconv.FormatInt(cutoff, 10)).Err()
}
