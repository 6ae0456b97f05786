package repository

import (
	"context"
	"time"

	"github.com/GoPolymarket/botfleet/internal/middleware"
	"github.com/GoPolymarket/botfleet/internal/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type idempotencyRow struct {
	Key          string `gorm:"primaryKey;type:text"`
	StatusCode   int    `gorm:"not null"`
	ResponseBody []byte `gorm:"type:bytea"`
	Processing   bool   `gorm:"not null"`
	CreatedAt    time.Time
}

func (idempotencyRow) TableName() string {
	return "idempotency_keys"
}

// PostgresIdempotencyStore shares idempotency keys between replicas when Redis is not configured.
type PostgresIdempotencyStore struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

func NewPostgresIdempotencyStore(db *gorm.DB, ttl time.Duration) *PostgresIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &PostgresIdempotencyStore{db: db, ttl: ttl, now: time.Now}
}

func (s *PostgresIdempotencyStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&idempotencyRow{})
}

func (s *PostgresIdempotencyStore) GetOrLock(key string) (*middleware.IdempotencyRecord, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	locked, err := s.tryLock(ctx, key)
	if err != nil {
		// DB 不可用时放行
		logger.Warn("idempotency store unavailable", "error", err)
		return nil, false
	}
	if locked {
		return nil, false
	}

	var row idempotencyRow
	if err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error; err != nil {
		return nil, false
	}
	if s.now().UTC().Sub(row.CreatedAt) > s.ttl {
		// 过期记录: 删除后重新加锁
		s.Unlock(key)
		if locked, err := s.tryLock(ctx, key); err == nil && locked {
			return nil, false
		}
	}
	return &middleware.IdempotencyRecord{
		Status:     row.StatusCode,
		Body:       row.ResponseBody,
		CreatedAt:  row.CreatedAt,
		Processing: row.Processing,
	}, true
}

func (s *PostgresIdempotencyStore) tryLock(ctx context.Context, key string) (bool, error) {
	row := idempotencyRow{Key: key, Processing: true, CreatedAt: s.now().UTC()}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *PostgresIdempotencyStore) Save(key string, status int, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.db.WithContext(ctx).Model(&idempotencyRow{}).Where("key = ?", key).
		Updates(map[string]interface{}{"status_code": status, "response_body": body, "processing": false}).Error
	if err != nil {
		logger.Warn("failed to save idempotency record", "error", err)
	}
}

func (s *PostgresIdempotencyStore) Unlock(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.db.WithContext(ctx).Where("key = ?", key).Delete(&idempotencyRow{}).Error
}

func (s *PostgresIdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := s.now().UTC().Add(-olderThan)
	return s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&idempotencyRow{}).Error
}
