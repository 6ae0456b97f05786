package telemetry

import (
	"sync"

	"github.com/GoPolymarket/botfleet/internal/model"
)

const LogCapacity = 100

// logBuffer keeps the newest maxSize entries; the oldest is overwritten first.
type logBuffer struct {
	mu        sync.Mutex
	maxSize   int
	records   []model.LogEntry
	nextIndex int
}

func newLogBuffer(maxSize int) *logBuffer {
	if maxSize <= 0 {
		maxSize = LogCapacity
	}
	return &logBuffer{
		maxSize: maxSize,
		records: make([]model.LogEntry, 0, maxSize),
	}
}

func (b *logBuffer) Add(entry model.LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, entry)
		return
	}
	b.records[b.nextIndex] = entry
	b.nextIndex = (b.nextIndex + 1) % b.maxSize
}

// List returns entries oldest first.
func (b *logBuffer) List() []model.LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := len(b.records)
	out := make([]model.LogEntry, 0, total)
	for i := 0; i < total; i++ {
		out = append(out, b.records[(b.nextIndex+i)%total])
	}
	return out
}
