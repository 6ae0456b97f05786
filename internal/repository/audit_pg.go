package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/GoPolymarket/botfleet/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type auditRow struct {
	ID           string    `gorm:"primaryKey;type:text"`
	Method       string    `gorm:"type:text"`
	Path         string    `gorm:"type:text;index:idx_audit_logs_path"`
	IP           string    `gorm:"type:text"`
	UserAgent    string    `gorm:"type:text"`
	RequestBody  string    `gorm:"type:text"`
	StatusCode   int
	ResponseBody string    `gorm:"type:text"`
	LatencyMs    int64
	Context      []byte    `gorm:"type:jsonb"`
	CreatedAt    time.Time `gorm:"index:idx_audit_logs_created"`
}

func (auditRow) TableName() string {
	return "audit_logs"
}

type PostgresAuditRepo struct {
	db *gorm.DB
}

func NewPostgresAuditRepo(db *gorm.DB) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db}
}

func (r *PostgresAuditRepo) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&auditRow{})
}

func (r *PostgresAuditRepo) Insert(ctx context.Context, entry *model.AuditLog) error {
	if entry == nil {
		return nil
	}
	contextJSON, _ := json.Marshal(entry.Context)
	row := auditRow{
		ID:           entry.ID,
		Method:       entry.Method,
		Path:         entry.Path,
		IP:           entry.IP,
		UserAgent:    entry.UserAgent,
		RequestBody:  entry.RequestBody,
		StatusCode:   entry.StatusCode,
		ResponseBody: entry.ResponseBody,
		LatencyMs:    entry.LatencyMs,
		Context:      contextJSON,
		CreatedAt:    entry.CreatedAt.UTC(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

// List returns the newest entries first.
func (r *PostgresAuditRepo) List(ctx context.Context, pathPrefix string, limit int, from, to *time.Time) ([]*model.AuditLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	q := r.db.WithContext(ctx).Model(&auditRow{})
	if pathPrefix != "" {
		q = q.Where("path LIKE ?", pathPrefix+"%")
	}
	if from != nil {
		q = q.Where("created_at >= ?", *from)
	}
	if to != nil {
		q = q.Where("created_at <= ?", *to)
	}

	var rows []auditRow
	if err := q.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]*model.AuditLog, 0, len(rows))
	for _, row := range rows {
		entry := &model.AuditLog{
			ID:           row.ID,
			Method:       row.Method,
			Path:         row.Path,
			IP:           row.IP,
			UserAgent:    row.UserAgent,
			RequestBody:  row.RequestBody,
			StatusCode:   row.StatusCode,
			ResponseBody: row.ResponseBody,
			LatencyMs:    row.LatencyMs,
			CreatedAt:    row.CreatedAt,
		}
		if len(row.Context) > 0 {
			_ = json.Unmarshal(row.Context, &entry.Context)
		}
		if entry.Context == nil {
			entry.Context = map[string]interface{}{}
		}
		records = append(records, entry)
	}
	return records, nil
}

// Cleanup deletes entries older than the retention window.
func (r *PostgresAuditRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	return r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&auditRow{}).Error
}
