package telemetry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/GoPolymarket/botfleet/internal/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWorker answers every command on the given topic with the supplied data.
func fakeWorker(t *testing.T, b Broker, topic string, data any) {
	t.Helper()
	sub, err := b.Subscribe(context.Background(), topic)
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })

	go func() {
		for msg := range sub.Messages() {
			var req CommandRequest
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				continue
			}
			// a stray reply for another caller must be ignored
			stray, _ := json.Marshal(CommandReply{Header: CommandHeader{CorrelationID: "someone-else"}, Data: json.RawMessage(`{"success": false}`)})
			_ = b.Publish(context.Background(), req.Header.ReplyTo, stray)

			body, _ := json.Marshal(data)
			reply, _ := json.Marshal(CommandReply{Header: req.Header, Data: body})
			_ = b.Publish(context.Background(), req.Header.ReplyTo, reply)
		}
	}()
}

func TestCommandClientStart(t *testing.T) {
	broker := NewMemoryBroker()
	fakeWorker(t, broker, CommandTopic("hbot", "bot1", CommandStart), map[string]any{"success": true, "message": "started"})

	client := NewCommandClient(broker, "hbot", "bot1", time.Second)
	resp, err := client.Start(context.Background(), map[string]any{"market": "SOL-USDC"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "started", resp.Message)
}

func TestCommandClientHistory(t *testing.T) {
	broker := NewMemoryBroker()
	fakeWorker(t, broker, CommandTopic("hbot", "bot1", CommandHistory), map[string]any{
		"success": true,
		"trades": []map[string]any{
			{"timestamp": 1700000000, "trading_pair": "SOL-USDC", "side": "BUY", "price": "20", "amount": "1", "type": "LIMIT", "fee_amount": "0.01", "fee_token": "USDC"},
		},
	})

	trades, err := NewCommandClient(broker, "hbot", "bot1", time.Second).History(context.Background())
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "SOL-USDC", trades[0].TradingPair)
	assert.Equal(t, "20", trades[0].Price.String())
}

func TestCommandClientTimeout(t *testing.T) {
	client := NewCommandClient(NewMemoryBroker(), "hbot", "silent", 30*time.Millisecond)

	start := time.Now()
	_, err := client.Stop(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrBrokerConnection))
	assert.Less(t, time.Since(start), time.Second)
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "hbot/bot1/performance", PerformanceTopic("hbot", "bot1"))
	assert.Equal(t, "hbot/bot1/log", LogTopic("hbot", "bot1"))
	assert.Equal(t, "hbot/bot1/start/reply", ReplyTopic("hbot", "bot1", CommandStart))
}
