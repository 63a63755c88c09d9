package bus

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBus broadcasts over Redis pub/sub, the shared channel between all
// serving instances. Redis pub/sub is fire-and-forget: a disconnected
// instance misses messages, which is acceptable because cache TTL bounds
// staleness even under broadcast failure.
type RedisBus struct {
	client *redis.Client
	logger zerolog.Logger

	mu   sync.Mutex
	subs []*redis.PubSub
}

// NewRedisBus creates a bus on an already-connected Redis client.
func NewRedisBus(client *redis.Client, logger zerolog.Logger) *RedisBus {
	return &RedisBus{client: client, logger: logger.With().Str("component", "bus").Logger()}
}

// Publish broadcasts payload on topic. Errors are returned for the caller to
// log and swallow; a failed broadcast must never fail the triggering mutation.
func (b *RedisBus) Publish(ctx context.Context, topic, payload string) error {
	return b.client.Publish(ctx, topic, payload).Err()
}

// Subscribe starts one long-lived listener goroutine for topic. go-redis
// reconnects the subscription transparently after transport errors.
func (b *RedisBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	pubsub := b.client.Subscribe(ctx, topic)

	// Wait for the subscription to be confirmed so callers can rely on
	// messages published after Subscribe returns being delivered.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	b.mu.Lock()
	b.subs = append(b.subs, pubsub)
	b.mu.Unlock()

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler(msg.Payload)
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			}
		}
	}()
	return nil
}

// Close tears down every subscription.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if err := sub.Close(); err != nil {
			b.logger.Warn().Err(err).Msg("closing subscription")
		}
	}
	b.subs = nil
	return nil
}
