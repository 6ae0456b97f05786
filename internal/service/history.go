package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/GoPolymarket/botfleet/internal/model"
	"github.com/GoPolymarket/botfleet/internal/pkg/logger"
	"github.com/GoPolymarket/botfleet/internal/pkg/metrics"
)

// HistoryRepo is the optional durable sink for account state history.
type HistoryRepo interface {
	Insert(ctx context.Context, rec *model.HistoryRecord) error
	List(ctx context.Context, limit int, from, to *time.Time) ([]*model.HistoryRecord, error)
}

// StateSource is what the dump loop reads from.
type StateSource interface {
	GetAccountsState() model.AccountsState
	Updated() <-chan struct{}
}

// HistoryService appends timestamped snapshots to a JSONL file (and the repo when configured),
// aligned to wall-clock multiples of the dump interval.
type HistoryService struct {
	path     string
	interval time.Duration
	repo     HistoryRepo
	source   StateSource

	recChan chan *model.HistoryRecord
	file    *os.File
	writeWg sync.WaitGroup

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	log *slog.Logger
}

func NewHistoryService(dataDir, fileName string, interval time.Duration, source StateSource, repo HistoryRepo) (*HistoryService, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(dataDir, fileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	if interval < time.Minute {
		interval = time.Minute
	}

	svc := &HistoryService{
		path:     path,
		interval: interval,
		repo:     repo,
		source:   source,
		recChan:  make(chan *model.HistoryRecord, 100),
		file:     f,
		now:      time.Now,
		after:    time.After,
		log:      logger.Component("history"),
	}

	svc.writeWg.Add(1)
	go svc.processRecords()
	return svc, nil
}

// NextDumpTime returns the next wall-clock instant that is a whole multiple of interval minutes.
// 12:01:30 with a 5 minute interval gives 12:05:00.
func NextDumpTime(now time.Time, interval time.Duration) time.Time {
	minutes := int(interval / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	next := now.Add(time.Duration(minutes) * time.Minute)
	next = time.Date(next.Year(), next.Month(), next.Day(), next.Hour(), next.Minute(), 0, 0, next.Location())
	return next.Add(-time.Duration(next.Minute()%minutes) * time.Minute)
}

// Start launches the dump loop. It waits for the first successful state update before dumping anything.
func (s *HistoryService) Start(ctx context.Context) {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.runLoop(ctx, s.done)
}

func (s *HistoryService) Stop() {
	s.loopMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.loopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *HistoryService) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	select {
	case <-s.source.Updated():
	case <-ctx.Done():
		return
	}

	for {
		now := s.now()
		wait := NextDumpTime(now, s.interval).Sub(now)
		select {
		case <-ctx.Done():
			return
		case <-s.after(wait):
		}
		s.Dump()
	}
}

// Dump snapshots the current state and queues it for writing.
func (s *HistoryService) Dump() {
	rec := &model.HistoryRecord{
		Timestamp: s.now(),
		State:     s.source.GetAccountsState(),
	}
	select {
	case s.recChan <- rec:
	default:
		metrics.HistoryDumps.WithLabelValues("queue", "dropped").Inc()
		s.log.Warn("history buffer full, dropping snapshot")
	}
}

func (s *HistoryService) processRecords() {
	defer s.writeWg.Done()
	encoder := json.NewEncoder(s.file)
	for rec := range s.recChan {
		if s.repo != nil {
			if err := s.repo.Insert(context.Background(), rec); err != nil {
				metrics.HistoryDumps.WithLabelValues("db", "error").Inc()
				s.log.Error("failed to write account history to DB", "error", err)
			} else {
				metrics.HistoryDumps.WithLabelValues("db", "ok").Inc()
			}
		}
		if err := encoder.Encode(rec); err != nil {
			metrics.HistoryDumps.WithLabelValues("file", "error").Inc()
			s.log.Error("failed to write account history", "error", err)
			continue
		}
		metrics.HistoryDumps.WithLabelValues("file", "ok").Inc()
	}
}

// LoadHistory prefers the repository and falls back to the history file.
func (s *HistoryService) LoadHistory(ctx context.Context, limit int, from, to *time.Time) ([]*model.HistoryRecord, error) {
	if s.repo != nil {
		records, err := s.repo.List(ctx, limit, from, to)
		if err == nil {
			return records, nil
		}
		s.log.Warn("history repo unavailable, reading file", "error", err)
	}
	return s.loadFile(limit, from, to)
}

func (s *HistoryService) loadFile(limit int, from, to *time.Time) ([]*model.HistoryRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.Warn("no account state history file found")
			return []*model.HistoryRecord{}, nil
		}
		return nil, err
	}
	defer f.Close()

	records := make([]*model.HistoryRecord, 0)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec model.HistoryRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			s.log.Warn("skipping malformed history line", "error", err)
			continue
		}
		if from != nil && rec.Timestamp.Before(*from) {
			continue
		}
		if to != nil && rec.Timestamp.After(*to) {
			continue
		}
		records = append(records, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

// Close stops the loop and flushes queued records.
func (s *HistoryService) Close() {
	s.Stop()
	close(s.recChan)
	s.writeWg.Wait()
	s.file.Close()
}
