package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GoPolymarket/botfleet/internal/config"
	"github.com/GoPolymarket/botfleet/internal/pkg/apperrors"
	"github.com/GoPolymarket/botfleet/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

type RedisClient struct {
	Client *redis.Client
}

func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	if cfg.Broker.Addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Broker.Addr,
		Password: cfg.Broker.Password,
		DB:       cfg.Broker.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{Client: rdb}, nil
}

func (r *RedisClient) Close() error {
	return r.Client.Close()
}

// RedisBroker carries worker telemetry and commands over Redis pub/sub.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(rc *RedisClient) *RedisBroker {
	return &RedisBroker{client: rc.Client}
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return apperrors.New(apperrors.ErrBrokerConnection, "redis publish failed", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, topics ...string) (telemetry.Subscription, error) {
	ps := b.client.Subscribe(ctx, topics...)
	// 等待订阅确认, 否则紧随其后的 publish 可能丢失
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, apperrors.New(apperrors.ErrBrokerConnection, "redis subscribe failed", err)
	}

	sub := &redisSubscription{
		ps:   ps,
		out:  make(chan telemetry.Message, 256),
		done: make(chan struct{}),
	}
	go sub.pump()
	return sub, nil
}

type redisSubscription struct {
	ps        *redis.PubSub
	out       chan telemetry.Message
	done      chan struct{}
	closeOnce sync.Once
}

func (s *redisSubscription) pump() {
	defer close(s.out)
	for msg := range s.ps.Channel() {
		select {
		case s.out <- telemetry.Message{Topic: msg.Channel, Payload: []byte(msg.Payload)}:
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Messages() <-chan telemetry.Message {
	return s.out
}

func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
