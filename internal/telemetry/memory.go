package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/GoPolymarket/botfleet/internal/pkg/logger"
)

// MemoryBroker is an in-process broker. The server falls back to it when Redis is not reachable,
// which keeps the API usable for a single host where workers cannot report.
type MemoryBroker struct {
	mu     sync.RWMutex
	topics map[string]map[*memorySubscription]struct{}
	log    *slog.Logger
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		topics: make(map[string]map[*memorySubscription]struct{}),
		log:    logger.Component("memory_broker"),
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.topics[topic] {
		msg := Message{Topic: topic, Payload: append([]byte(nil), payload...)}
		select {
		case sub.ch <- msg:
		default:
			b.log.Warn("subscriber too slow, dropping message", "topic", topic)
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, topics ...string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &memorySubscription{broker: b, topics: topics, ch: make(chan Message, 256)}
	b.mu.Lock()
	for _, topic := range topics {
		if b.topics[topic] == nil {
			b.topics[topic] = make(map[*memorySubscription]struct{})
		}
		b.topics[topic][sub] = struct{}{}
	}
	b.mu.Unlock()
	return sub, nil
}

// Disconnect closes every live subscription, as a dropped connection would.
func (b *MemoryBroker) Disconnect() {
	b.mu.Lock()
	subs := make(map[*memorySubscription]struct{})
	for _, set := range b.topics {
		for sub := range set {
			subs[sub] = struct{}{}
		}
	}
	b.topics = make(map[string]map[*memorySubscription]struct{})
	for sub := range subs {
		sub.closeOnce.Do(func() { close(sub.ch) })
	}
	b.mu.Unlock()
}

type memorySubscription struct {
	broker    *MemoryBroker
	topics    []string
	ch        chan Message
	closeOnce sync.Once
}

func (s *memorySubscription) Messages() <-chan Message {
	return s.ch
}

func (s *memorySubscription) Close() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	for _, topic := range s.topics {
		if set := s.broker.topics[topic]; set != nil {
			delete(set, s)
			if len(set) == 0 {
				delete(s.broker.topics, topic)
			}
		}
	}
	s.closeOnce.Do(func() { close(s.ch) })
	return nil
}
