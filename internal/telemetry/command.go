package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/GoPolymarket/botfleet/internal/model"
	"github.com/GoPolymarket/botfleet/internal/pkg/apperrors"
	"github.com/google/uuid"
)

const (
	CommandStart          = "start"
	CommandStop           = "stop"
	CommandConfig         = "config"
	CommandImportStrategy = "import"
	CommandHistory        = "history"

	DefaultCommandTimeout = 10 * time.Second
)

type CommandHeader struct {
	CorrelationID string `json:"correlation_id"`
	ReplyTo       string `json:"reply_to"`
	Timestamp     int64  `json:"timestamp"`
}

type CommandRequest struct {
	Header CommandHeader   `json:"header"`
	Data   json.RawMessage `json:"data"`
}

type CommandReply struct {
	Header CommandHeader   `json:"header"`
	Data   json.RawMessage `json:"data"`
}

// CommandClient sends request/reply commands to one worker.
type CommandClient struct {
	broker     Broker
	prefix     string
	instanceID string
	timeout    time.Duration
}

func NewCommandClient(broker Broker, prefix, instanceID string, timeout time.Duration) *CommandClient {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &CommandClient{broker: broker, prefix: prefix, instanceID: instanceID, timeout: timeout}
}

func (c *CommandClient) Start(ctx context.Context, params map[string]any) (*model.CommandResponse, error) {
	return c.simple(ctx, CommandStart, map[string]any{"log_level": nil, "script": nil, "conf": nil, "async_backend": false, "params": params})
}

func (c *CommandClient) Stop(ctx context.Context) (*model.CommandResponse, error) {
	return c.simple(ctx, CommandStop, map[string]any{"skip_order_cancellation": false, "async_backend": false})
}

func (c *CommandClient) Config(ctx context.Context, params map[string]any) (*model.CommandResponse, error) {
	pairs := make([][2]any, 0, len(params))
	for k, v := range params {
		pairs = append(pairs, [2]any{k, v})
	}
	return c.simple(ctx, CommandConfig, map[string]any{"params": pairs})
}

func (c *CommandClient) ImportStrategy(ctx context.Context, strategy string) (*model.CommandResponse, error) {
	return c.simple(ctx, CommandImportStrategy, map[string]any{"strategy": strategy})
}

func (c *CommandClient) History(ctx context.Context) ([]model.TradeLog, error) {
	resp, err := c.simple(ctx, CommandHistory, map[string]any{"days": 0, "verbose": false, "precision": nil, "async_backend": false})
	if err != nil {
		return nil, err
	}
	if resp.Trades == nil {
		return []model.TradeLog{}, nil
	}
	return resp.Trades, nil
}

func (c *CommandClient) simple(ctx context.Context, command string, data any) (*model.CommandResponse, error) {
	var resp model.CommandResponse
	if err := c.Call(ctx, command, data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Call publishes a command and blocks until the matching reply arrives or the timeout hits.
func (c *CommandClient) Call(ctx context.Context, command string, data any, out any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return apperrors.New(apperrors.ErrInvalidRequest, "invalid command payload", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	replyTopic := ReplyTopic(c.prefix, c.instanceID, command)
	sub, err := c.broker.Subscribe(ctx, replyTopic)
	if err != nil {
		return apperrors.New(apperrors.ErrBrokerConnection, "failed to subscribe for command reply", err)
	}
	defer sub.Close()

	req := CommandRequest{
		Header: CommandHeader{
			CorrelationID: uuid.NewString(),
			ReplyTo:       replyTopic,
			Timestamp:     time.Now().UnixMilli(),
		},
		Data: body,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return apperrors.New(apperrors.ErrInternal, "failed to encode command", err)
	}
	if err := c.broker.Publish(ctx, CommandTopic(c.prefix, c.instanceID, command), payload); err != nil {
		return apperrors.New(apperrors.ErrBrokerConnection, fmt.Sprintf("failed to publish %s command", command), err)
	}

	for {
		select {
		case <-ctx.Done():
			return apperrors.New(apperrors.ErrBrokerConnection,
				fmt.Sprintf("no reply from %s to %s command", c.instanceID, command), ctx.Err())
		case msg, ok := <-sub.Messages():
			if !ok {
				return apperrors.Newf(apperrors.ErrBrokerConnection, "broker connection lost waiting for %s reply", command)
			}
			var reply CommandReply
			if err := json.Unmarshal(msg.Payload, &reply); err != nil {
				continue
			}
			if reply.Header.CorrelationID != req.Header.CorrelationID {
				continue
			}
			if out == nil || len(reply.Data) == 0 {
				return nil
			}
			if err := json.Unmarshal(reply.Data, out); err != nil {
				return apperrors.New(apperrors.ErrUpstream, "malformed command reply", err)
			}
			return nil
		}
	}
}
