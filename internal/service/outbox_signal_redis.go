package service

import (
	"context"

	"github.com/redis/go-redis/v9"
)

type RedisOutboxSignal struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisOutboxSignal(client redis.UniversalClient, channel string) *RedisOutboxSignal {
	if channel == "" {
		channel = "credential-manager:outbox"
	}
	return &RedisOutboxSignal{client: client, channel: channel}
}

func (s *RedisOutboxSignal) Publish(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Publish(ctx, s.channel, "wake").Err()
}

// Subscribe delivers a coalesced wake-up per published message until ctx ends.
func (s *RedisOutboxSignal) Subscribe(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)
	if s.client == nil {
		return out
	}
	sub := s.client.Subscribe(ctx, s.channel)
	go func() {
		defer func() { _ = sub.Close() }()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}

type NoopOutboxSignal struct{}

func (NoopOutboxSignal) Publish(context.Context) error { return nil }

func (NoopOutboxSignal) Subscribe(context.Context) <-chan struct{} { return nil }
