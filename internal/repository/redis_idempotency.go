package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/GoPolymarket/botfleet/internal/middleware"
	"github.com/GoPolymarket/botfleet/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisIdempotencyStore shares idempotency keys between API replicas.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisIdempotencyStore(rc *RedisClient, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyStore{
		client: rc.Client,
		ttl:    ttl,
		prefix: "botfleet:idem:",
	}
}

func (s *RedisIdempotencyStore) GetOrLock(key string) (*middleware.IdempotencyRecord, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload := encodeIdemRecord(middleware.IdempotencyRecord{
		CreatedAt:  time.Now().UTC(),
		Processing: true,
	})
	locked, err := s.client.SetNX(ctx, s.prefix+key, payload, s.ttl).Result()
	if err != nil {
		// Redis 不可用时放行, 不阻塞业务
		logger.Warn("idempotency store unavailable", "error", err)
		return nil, false
	}
	if locked {
		return nil, false
	}
	raw, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		return nil, false
	}
	rec, err := decodeIdemRecord(raw)
	if err != nil {
		return nil, false
	}
	return rec, true
}

func (s *RedisIdempotencyStore) Save(key string, status int, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	payload := encodeIdemRecord(middleware.IdempotencyRecord{
		Status:    status,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	})
	if err := s.client.Set(ctx, s.prefix+key, payload, s.ttl).Err(); err != nil {
		logger.Warn("failed to save idempotency record", "error", err)
	}
}

func (s *RedisIdempotencyStore) Unlock(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.client.Del(ctx, s.prefix+key).Err()
}

func encodeIdemRecord(rec middleware.IdempotencyRecord) string {
	wire := map[string]interface{}{
		"status":     rec.Status,
		"body":       base64.StdEncoding.EncodeToString(rec.Body),
		"created_at": rec.CreatedAt.Unix(),
		"processing": rec.Processing,
	}
	data, _ := json.Marshal(wire)
	return string(data)
}

func decodeIdemRecord(raw string) (*middleware.IdempotencyRecord, error) {
	var wire struct {
		Status     int    `json:"status"`
		Body       string `json:"body"`
		CreatedAt  int64  `json:"created_at"`
		Processing bool   `json:"processing"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, err
	}
	body, _ := base64.StdEncoding.DecodeString(wire.Body)
	return &middleware.IdempotencyRecord{
		Status:     wire.Status,
		Body:       body,
		CreatedAt:  time.Unix(wire.CreatedAt, 0).UTC(),
		Processing: wire.Processing,
	}, nil
}
