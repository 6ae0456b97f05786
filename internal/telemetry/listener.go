package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/GoPolymarket/botfleet/internal/model"
	"github.com/GoPolymarket/botfleet/internal/pkg/logger"
	"github.com/GoPolymarket/botfleet/internal/pkg/metrics"
)

const (
	ReconnBaseDelay = 1 * time.Second
	ReconnMaxDelay  = 30 * time.Second
)

// Listener follows one worker's performance and log topics on a dedicated goroutine.
type Listener struct {
	broker     Broker
	instanceID string
	perfTopic  string
	logTopic   string

	mu          sync.RWMutex
	performance map[string]map[string]any

	errorLogs   *logBuffer
	generalLogs *logBuffer

	retryBase time.Duration
	retryMax  time.Duration

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	log *slog.Logger
}

func NewListener(broker Broker, prefix, instanceID string) *Listener {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Listener{
		broker:      broker,
		instanceID:  instanceID,
		perfTopic:   PerformanceTopic(prefix, instanceID),
		logTopic:    LogTopic(prefix, instanceID),
		performance: make(map[string]map[string]any),
		errorLogs:   newLogBuffer(LogCapacity),
		generalLogs: newLogBuffer(LogCapacity),
		retryBase:   ReconnBaseDelay,
		retryMax:    ReconnMaxDelay,
		log:         logger.Component("telemetry").With("instance_id", instanceID),
	}
}

func (l *Listener) InstanceID() string {
	return l.instanceID
}

// Start launches the subscribe loop. A running listener ignores further calls.
func (l *Listener) Start(ctx context.Context) {
	l.loopMu.Lock()
	defer l.loopMu.Unlock()
	if l.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.runLoop(ctx, l.done)
}

// Stop ends the subscription and clears cached performance. Logs are kept.
func (l *Listener) Stop() {
	l.loopMu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.loopMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	l.mu.Lock()
	l.performance = make(map[string]map[string]any)
	l.mu.Unlock()
}

func (l *Listener) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	delay := l.retryBase

	for {
		if ctx.Err() != nil {
			return
		}

		sub, err := l.broker.Subscribe(ctx, l.perfTopic, l.logTopic)
		if err != nil {
			l.log.Error("Subscribe failed", "error", err, "retry_in", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > l.retryMax {
				delay = l.retryMax
			}
			continue
		}

		delay = l.retryBase
		l.consume(ctx, sub)
		_ = sub.Close()
	}
}

func (l *Listener) consume(ctx context.Context, sub Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				l.log.Warn("Subscription closed, resubscribing")
				return
			}
			l.handle(msg)
		}
	}
}

func (l *Listener) handle(msg Message) {
	switch msg.Topic {
	case l.perfTopic:
		metrics.TelemetryMessages.WithLabelValues("performance").Inc()
		if err := l.updatePerformance(msg.Payload); err != nil {
			l.log.Warn("Bad performance message", "error", err)
		}
	case l.logTopic:
		metrics.TelemetryMessages.WithLabelValues("log").Inc()
		if err := l.appendLog(msg.Payload); err != nil {
			l.log.Warn("Bad log message", "error", err)
		}
	}
}

// updatePerformance replaces each reported controller record wholesale.
func (l *Listener) updatePerformance(payload []byte) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var reports map[string]map[string]any
	if err := dec.Decode(&reports); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for controller, report := range reports {
		l.performance[controller] = report
	}
	return nil
}

func (l *Listener) appendLog(payload []byte) error {
	var entry model.LogEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return err
	}
	if entry.LevelName == "ERROR" {
		l.errorLogs.Add(entry)
	} else {
		l.generalLogs.Add(entry)
	}
	return nil
}

// Performance returns a copy of the raw controller reports.
func (l *Listener) Performance() map[string]map[string]any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]map[string]any, len(l.performance))
	for controller, report := range l.performance {
		cp := make(map[string]any, len(report))
		for k, v := range report {
			cp[k] = v
		}
		out[controller] = cp
	}
	return out
}

func (l *Listener) ErrorLogs() []model.LogEntry {
	return l.errorLogs.List()
}

func (l *Listener) GeneralLogs() []model.LogEntry {
	return l.generalLogs.List()
}

// StatusSource is what BotStatus reads from; Listener is the production implementation.
type StatusSource interface {
	Performance() map[string]map[string]any
	ErrorLogs() []model.LogEntry
	GeneralLogs() []model.LogEntry
}

// BotStatus derives the worker status. It never panics: failures turn into an error status.
func BotStatus(src StatusSource) (status model.BotStatus) {
	defer func() {
		if rec := recover(); rec != nil {
			status = model.BotStatus{
				Status:      model.StatusError,
				Performance: map[string]model.ControllerStatus{},
				ErrorLogs:   []model.LogEntry{{Message: fmt.Sprint(rec)}},
				GeneralLogs: []model.LogEntry{},
			}
		}
	}()

	performance := DetermineControllerPerformance(src.Performance())
	state := model.StatusStopped
	if len(performance) > 0 {
		state = model.StatusRunning
	}
	return model.BotStatus{
		Status:      state,
		Performance: performance,
		ErrorLogs:   src.ErrorLogs(),
		GeneralLogs: src.GeneralLogs(),
	}
}

func NotFoundStatus() model.BotStatus {
	return model.BotStatus{
		Status:      model.StatusNotFound,
		Performance: map[string]model.ControllerStatus{},
		ErrorLogs:   []model.LogEntry{},
		GeneralLogs: []model.LogEntry{},
	}
}
