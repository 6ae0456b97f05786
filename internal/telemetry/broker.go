package telemetry

import (
	"context"
	"fmt"
)

const DefaultPrefix = "hbot"

// Message is one payload received on a topic.
type Message struct {
	Topic   string
	Payload []byte
}

// Subscription yields messages until Close is called or the underlying connection drops,
// in which case Messages is closed and the owner is expected to resubscribe.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topics ...string) (Subscription, error)
}

func PerformanceTopic(prefix, instanceID string) string {
	return fmt.Sprintf("%s/%s/performance", prefix, instanceID)
}

func LogTopic(prefix, instanceID string) string {
	return fmt.Sprintf("%s/%s/log", prefix, instanceID)
}

func CommandTopic(prefix, instanceID, command string) string {
	return fmt.Sprintf("%s/%s/%s", prefix, instanceID, command)
}

func ReplyTopic(prefix, instanceID, command string) string {
	return CommandTopic(prefix, instanceID, command) + "/reply"
}
