package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/GoPolymarket/botfleet/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type accountHistoryRow struct {
	ID         string    `gorm:"primaryKey;type:uuid"`
	RecordedAt time.Time `gorm:"index;not null"`
	State      []byte    `gorm:"type:jsonb;not null"`
}

func (accountHistoryRow) TableName() string {
	return "account_state_history"
}

// PostgresHistoryRepo stores account state snapshots, one row per dump.
type PostgresHistoryRepo struct {
	db *gorm.DB
}

func NewPostgresHistoryRepo(db *gorm.DB) *PostgresHistoryRepo {
	return &PostgresHistoryRepo{db: db}
}

func (r *PostgresHistoryRepo) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&accountHistoryRow{})
}

func (r *PostgresHistoryRepo) Insert(ctx context.Context, rec *model.HistoryRecord) error {
	if rec == nil {
		return nil
	}
	state, err := json.Marshal(rec.State)
	if err != nil {
		return err
	}
	row := accountHistoryRow{
		ID:         uuid.NewString(),
		RecordedAt: rec.Timestamp.UTC(),
		State:      state,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// List returns up to limit of the most recent records, oldest first.
func (r *PostgresHistoryRepo) List(ctx context.Context, limit int, from, to *time.Time) ([]*model.HistoryRecord, error) {
	if limit <= 0 || limit > 10000 {
		limit = 1000
	}

	q := r.db.WithContext(ctx).Model(&accountHistoryRow{})
	if from != nil {
		q = q.Where("recorded_at >= ?", *from)
	}
	if to != nil {
		q = q.Where("recorded_at <= ?", *to)
	}

	var rows []accountHistoryRow
	if err := q.Order("recorded_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]*model.HistoryRecord, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		var state model.AccountsState
		if err := json.Unmarshal(rows[i].State, &state); err != nil {
			continue
		}
		records = append(records, &model.HistoryRecord{Timestamp: rows[i].RecordedAt, State: state})
	}
	return records, nil
}
