package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/botfleet/internal/model"
	"github.com/GoPolymarket/botfleet/internal/pkg/logger"
	"github.com/GoPolymarket/botfleet/internal/pkg/metrics"
)

const auditFileLayout = "2006-01-02"

// AuditService records operator API calls to a daily JSONL file, the repo when configured,
// and an in-memory ring for recent lookups.
type AuditService struct {
	logDir    string
	retention time.Duration

	logChan chan *model.AuditLog
	buffer  *auditBuffer
	repo    AuditRepo
	wg      sync.WaitGroup

	// owned by processLogs after construction
	logFile *os.File
	fileDay string
	encoder *json.Encoder

	log *slog.Logger
}

type AuditRepo interface {
	Insert(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, pathPrefix string, limit int, from, to *time.Time) ([]*model.AuditLog, error)
}

// NewAuditService opens today's audit file. Files older than retention are pruned on every rotation;
// retention <= 0 keeps them forever.
func NewAuditService(logDir string, retention time.Duration, repo AuditRepo) (*AuditService, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, err
	}

	svc := &AuditService{
		logDir:    logDir,
		retention: retention,
		logChan:   make(chan *model.AuditLog, 1000), // 缓冲区 1000
		buffer:    newAuditBuffer(1000),
		repo:      repo,
		log:       logger.Component("audit"),
	}
	if err := svc.rotate(time.Now()); err != nil {
		return nil, err
	}

	svc.wg.Add(1)
	go svc.processLogs()

	return svc, nil
}

func (s *AuditService) Log(entry *model.AuditLog) {
	s.buffer.Add(entry)
	select {
	case s.logChan <- entry:
	default:
		// 缓冲区满，丢弃日志以保护主流程
		metrics.AuditDropped.Inc()
		s.log.Warn("⚠️ Audit log buffer full, dropping log entry", "path", entry.Path)
	}
}

// List reads from the repo when it is reachable, otherwise from the in-memory ring.
func (s *AuditService) List(ctx context.Context, pathPrefix string, limit int, from, to *time.Time) ([]*model.AuditLog, error) {
	if s.repo != nil {
		records, err := s.repo.List(ctx, pathPrefix, limit, from, to)
		if err == nil {
			return records, nil
		}
		s.log.Warn("audit repo unavailable, serving recent entries from memory", "error", err)
	}
	return s.buffer.List(pathPrefix, limit, from, to), nil
}

func (s *AuditService) processLogs() {
	defer s.wg.Done()
	for entry := range s.logChan {
		if s.repo != nil {
			if err := s.repo.Insert(context.Background(), entry); err != nil {
				s.log.Error("❌ Failed to write audit log to repo", "error", err)
			}
		}

		at := entry.CreatedAt
		if at.IsZero() {
			at = time.Now()
		}
		if at.Format(auditFileLayout) != s.fileDay {
			if err := s.rotate(at); err != nil {
				s.log.Error("❌ Failed to rotate audit file", "error", err)
			}
		}
		if s.encoder == nil {
			continue
		}
		if err := s.encoder.Encode(entry); err != nil {
			s.log.Error("❌ Failed to write audit log", "error", err)
		}
	}
}

// rotate switches to the audit file of day and prunes expired files. On failure the previous file stays open.
func (s *AuditService) rotate(day time.Time) error {
	name := day.Format(auditFileLayout)
	f, err := os.OpenFile(filepath.Join(s.logDir, "audit-"+name+".jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if s.logFile != nil {
		s.logFile.Close()
	}
	s.logFile, s.fileDay, s.encoder = f, name, json.NewEncoder(f)
	s.pruneFiles(day)
	return nil
}

func (s *AuditService) pruneFiles(now time.Time) {
	if s.retention <= 0 {
		return
	}
	files, err := filepath.Glob(filepath.Join(s.logDir, "audit-*.jsonl"))
	if err != nil {
		return
	}
	cutoff := now.Add(-s.retention)
	for _, file := range files {
		stamp := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(file), "audit-"), ".jsonl")
		day, err := time.ParseInLocation(auditFileLayout, stamp, now.Location())
		if err != nil || stamp == s.fileDay {
			continue
		}
		// 按当天结束时间判断, 避免保留期内的文件被提前删除
		if day.AddDate(0, 0, 1).Before(cutoff) {
			if err := os.Remove(file); err != nil {
				s.log.Warn("failed to prune audit file", "file", file, "error", err)
				continue
			}
			s.log.Info("pruned expired audit file", "file", filepath.Base(file))
		}
	}
}

// Close drains pending entries before closing the file.
func (s *AuditService) Close() {
	close(s.logChan)
	s.wg.Wait()
	if s.logFile != nil {
		s.logFile.Close()
	}
}

type auditBuffer struct {
	mu        sync.Mutex
	maxSize   int
	records   []*model.AuditLog
	nextIndex int
}

func newAuditBuffer(maxSize int) *auditBuffer {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &auditBuffer{
		maxSize: maxSize,
		records: make([]*model.AuditLog, 0, maxSize),
	}
}

func (b *auditBuffer) Add(entry *model.AuditLog) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, entry)
		return
	}
	b.records[b.nextIndex] = entry
	b.nextIndex = (b.nextIndex + 1) % b.maxSize
}

// List returns the newest entries first.
func (b *auditBuffer) List(pathPrefix string, limit int, from, to *time.Time) []*model.AuditLog {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > b.maxSize {
		limit = b.maxSize
	}
	results := make([]*model.AuditLog, 0, limit)
	total := len(b.records)
	for i := 0; i < total; i++ {
		idx := (b.nextIndex + total - 1 - i) % total
		entry := b.records[idx]
		if entry == nil {
			continue
		}
		if pathPrefix != "" && !strings.HasPrefix(entry.Path, pathPrefix) {
			continue
		}
		if from != nil && entry.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && entry.CreatedAt.After(*to) {
			continue
		}
		results = append(results, entry)
		if len(results) >= limit {
			break
		}
	}
	return results
}
