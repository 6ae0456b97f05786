package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/GoPolymarket/botfleet/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingAuditRepo struct{}

func (failingAuditRepo) Insert(ctx context.Context, entry *model.AuditLog) error {
	return errors.New("db down")
}

func (failingAuditRepo) List(ctx context.Context, pathPrefix string, limit int, from, to *time.Time) ([]*model.AuditLog, error) {
	return nil, errors.New("db down")
}

func TestAuditBufferNewestFirst(t *testing.T) {
	b := newAuditBuffer(3)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		b.Add(&model.AuditLog{ID: fmt.Sprintf("r%d", i), Path: "/v1/bots", CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	got := b.List("", 10, nil, nil)
	require.Len(t, got, 3)
	assert.Equal(t, "r4", got[0].ID)
	assert.Equal(t, "r2", got[2].ID)

	from := base.Add(3 * time.Minute)
	got = b.List("/v1/bots", 10, &from, nil)
	require.Len(t, got, 2)

	assert.Empty(t, b.List("/v1/accounts", 10, nil, nil))
}

func TestAuditServiceWritesFileAndFallsBack(t *testing.T) {
	dir := t.TempDir()
	svc, err := NewAuditService(dir, 0, failingAuditRepo{})
	require.NoError(t, err)

	svc.Log(&model.AuditLog{ID: "req-1", Method: "POST", Path: "/v1/accounts", CreatedAt: time.Now()})

	records, err := svc.List(context.Background(), "/v1/accounts", 10, nil, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "req-1", records[0].ID)

	svc.Close()

	files, err := filepath.Glob(filepath.Join(dir, "audit-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"id":"req-1"`))
}

func TestAuditServiceRotatesDailyAndPrunes(t *testing.T) {
	dir := t.TempDir()
	expired := filepath.Join(dir, "audit-2000-01-01.jsonl")
	require.NoError(t, os.WriteFile(expired, []byte("{}\n"), 0644))
	unrelated := filepath.Join(dir, "audit-notes.jsonl")
	require.NoError(t, os.WriteFile(unrelated, nil, 0644))

	svc, err := NewAuditService(dir, 30*24*time.Hour, nil)
	require.NoError(t, err)
	assert.NoFileExists(t, expired)
	assert.FileExists(t, unrelated)

	today := time.Now()
	tomorrow := today.AddDate(0, 0, 1)
	svc.Log(&model.AuditLog{ID: "a", Path: "/v1/bots", CreatedAt: today})
	svc.Log(&model.AuditLog{ID: "b", Path: "/v1/bots", CreatedAt: tomorrow})
	svc.Close()

	data, err := os.ReadFile(filepath.Join(dir, "audit-"+today.Format("2006-01-02")+".jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":"a"`)
	assert.NotContains(t, string(data), `"id":"b"`)

	data, err = os.ReadFile(filepath.Join(dir, "audit-"+tomorrow.Format("2006-01-02")+".jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":"b"`)
}
