package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sync"
	"time"

	"github.com/GoPolymarket/botfleet/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

const HeaderIdempotencyKey = "X-Idempotency-Key"

type IdempotencyRecord struct {
	Status     int
	Body       []byte
	CreatedAt  time.Time
	Processing bool // 正在处理中，用于防止并发竞争
}

type IdempotencyStore interface {
	// GetOrLock returns (record, true) if exists; (nil,false) if newly locked by caller.
	GetOrLock(key string) (*IdempotencyRecord, bool)
	Save(key string, status int, body []byte)
	Unlock(key string)
}

// InMemIdempotencyStore is the single-replica store; RedisIdempotencyStore is shared.
type InMemIdempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	records map[string]*IdempotencyRecord // Key: method + path + IdempotencyKey
	now     func() time.Time
}

func NewInMemIdempotencyStore(ttl time.Duration) *InMemIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &InMemIdempotencyStore{
		ttl:     ttl,
		records: make(map[string]*IdempotencyRecord),
		now:     time.Now,
	}
}

// GetOrLock 尝试获取记录。如果不存在，则锁定并返回 nil（表示你是第一个）。
// 如果正在处理，返回 Processing=true。如果已完成，返回完整记录。
func (s *InMemIdempotencyStore) GetOrLock(key string) (*IdempotencyRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok {
		if s.now().Sub(rec.CreatedAt) < s.ttl {
			return rec, true
		}
		delete(s.records, key)
	}

	s.records[key] = &IdempotencyRecord{
		Processing: true,
		CreatedAt:  s.now(),
	}
	return nil, false
}

func (s *InMemIdempotencyStore) Save(key string, status int, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = &IdempotencyRecord{
		Status:    status,
		Body:      body,
		CreatedAt: s.now(),
	}
}

func (s *InMemIdempotencyStore) Unlock(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
}

// IdempotencyMiddleware replays the stored response for a repeated X-Idempotency-Key.
// Requests without the header pass through untouched. The same key with a different body is a different request.
func IdempotencyMiddleware(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		idemKey := c.GetHeader(HeaderIdempotencyKey)
		if idemKey == "" {
			c.Next()
			return
		}
		fullKey, err := idempotencyKey(c, idemKey)
		if err != nil {
			c.Error(apperrors.NewInvalidRequest("failed to read request body"))
			c.Abort()
			return
		}

		record, hit := store.GetOrLock(fullKey)
		if hit {
			if record.Processing {
				appErr := apperrors.New(apperrors.ErrAlreadyExists, "a request with this idempotency key is still in progress", nil)
				c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
				return
			}
			c.Data(record.Status, "application/json; charset=utf-8", record.Body)
			c.Abort()
			return
		}

		w := &responseBodyWriter{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		// handler 通过 c.Error 返回的错误还未写出, 和 5xx 一样允许重试
		if len(c.Errors) == 0 && c.Writer.Status() < 500 {
			store.Save(fullKey, c.Writer.Status(), w.body)
		} else {
			store.Unlock(fullKey)
		}
	}
}

// idempotencyKey scopes the client key to the route template and a fingerprint of the body.
func idempotencyKey(c *gin.Context, clientKey string) (string, error) {
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	sum := sha256.New()
	if c.Request.Body != nil {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return "", err
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		sum.Write(body)
	}
	return c.Request.Method + ":" + route + ":" + clientKey + ":" + hex.EncodeToString(sum.Sum(nil)[:8]), nil
}

type responseBodyWriter struct {
	gin.ResponseWriter
	body []byte
}

func (w *responseBodyWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return w.ResponseWriter.Write(b)
}
