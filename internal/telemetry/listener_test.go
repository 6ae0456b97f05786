package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/GoPolymarket/botfleet/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// publishUntil keeps publishing until cond holds, covering the window before the listener subscribes.
func publishUntil(t *testing.T, b Broker, topic, payload string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, b.Publish(context.Background(), topic, []byte(payload)))
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met after publishing to %s", topic)
}

func TestListenerAggregatesPerformance(t *testing.T) {
	broker := NewMemoryBroker()
	l := NewListener(broker, "", "hummingbot-bot1")
	l.Start(context.Background())
	defer l.Stop()

	perfTopic := PerformanceTopic(DefaultPrefix, "hummingbot-bot1")
	publishUntil(t, broker, perfTopic, `{"controller_1": {"total_pnl": 5, "total_trades": "bad"}}`, func() bool {
		return len(l.Performance()) == 1
	})

	status := BotStatus(l)
	assert.Equal(t, model.StatusRunning, status.Status)
	assert.Equal(t, model.StatusError, status.Performance["controller_1"].Status)

	// a later report replaces the record wholesale
	publishUntil(t, broker, perfTopic, `{"controller_1": {"total_pnl": 7, "total_trades": 2}}`, func() bool {
		return BotStatus(l).Performance["controller_1"].Status == model.StatusRunning
	})
	_, stale := l.Performance()["controller_1"]["total_trades"].(string)
	assert.False(t, stale)
}

func TestListenerStatusStoppedWithoutReports(t *testing.T) {
	l := NewListener(NewMemoryBroker(), "", "hummingbot-idle")
	assert.Equal(t, model.StatusStopped, BotStatus(l).Status)
}

func TestListenerStopClearsPerformance(t *testing.T) {
	broker := NewMemoryBroker()
	l := NewListener(broker, "hbot", "bot")
	l.Start(context.Background())

	publishUntil(t, broker, PerformanceTopic("hbot", "bot"), `{"c": {"total_pnl": 1}}`, func() bool {
		return len(l.Performance()) == 1
	})
	l.Stop()
	l.Stop()

	assert.Empty(t, l.Performance())
	assert.Equal(t, model.StatusStopped, BotStatus(l).Status)
}

func TestListenerLogRingBuffers(t *testing.T) {
	broker := NewMemoryBroker()
	l := NewListener(broker, "hbot", "bot")
	l.Start(context.Background())
	defer l.Stop()

	logTopic := LogTopic("hbot", "bot")
	publishUntil(t, broker, logTopic, `{"timestamp": 1, "level_name": "ERROR", "message": "boom"}`, func() bool {
		return len(l.ErrorLogs()) > 0
	})
	for i := 0; i < LogCapacity+20; i++ {
		require.NoError(t, broker.Publish(context.Background(), logTopic,
			[]byte(fmt.Sprintf(`{"timestamp": %d, "level_name": "INFO", "message": "m%d"}`, i, i))))
	}

	require.Eventually(t, func() bool {
		logs := l.GeneralLogs()
		return len(logs) == LogCapacity && logs[len(logs)-1].Message == fmt.Sprintf("m%d", LogCapacity+19)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "m20", l.GeneralLogs()[0].Message)
	assert.Equal(t, "boom", l.ErrorLogs()[0].Message)
}

type flakyBroker struct {
	*MemoryBroker
	mu       sync.Mutex
	failures int
	attempts int
}

func (b *flakyBroker) Subscribe(ctx context.Context, topics ...string) (Subscription, error) {
	b.mu.Lock()
	b.attempts++
	fail := b.attempts <= b.failures
	b.mu.Unlock()
	if fail {
		return nil, errors.New("connection refused")
	}
	return b.MemoryBroker.Subscribe(ctx, topics...)
}

func (b *flakyBroker) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

func TestListenerResubscribesAfterFailures(t *testing.T) {
	broker := &flakyBroker{MemoryBroker: NewMemoryBroker(), failures: 2}
	l := NewListener(broker, "hbot", "bot")
	l.retryBase = 5 * time.Millisecond
	l.retryMax = 20 * time.Millisecond
	l.Start(context.Background())
	defer l.Stop()

	publishUntil(t, broker, PerformanceTopic("hbot", "bot"), `{"c": {"total_pnl": 1}}`, func() bool {
		return len(l.Performance()) == 1
	})
	assert.GreaterOrEqual(t, broker.Attempts(), 3)

	// a dropped connection closes the subscription; the listener comes back on its own
	broker.Disconnect()
	publishUntil(t, broker, PerformanceTopic("hbot", "bot"), `{"d": {"total_pnl": 2}}`, func() bool {
		return len(l.Performance()) == 2
	})
}

func TestLogBufferOrder(t *testing.T) {
	b := newLogBuffer(3)
	for i := 1; i <= 5; i++ {
		b.Add(model.LogEntry{Timestamp: int64(i)})
	}
	logs := b.List()
	require.Len(t, logs, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{logs[0].Timestamp, logs[1].Timestamp, logs[2].Timestamp})
}
