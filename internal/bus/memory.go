package bus

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Bus for development, tests and multi-instance
// simulations. Slow subscribers have messages dropped rather than blocking
// the publisher, matching the delivery guarantees of the Redis bus.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]*memorySub // topic -> subscribers
	closed bool
	wg     sync.WaitGroup
}

type memorySub struct {
	ch      chan string
	handler Handler
}

const memoryBusBuffer = 64

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memorySub)}
}

// Publish delivers payload to every subscriber of topic. Sends are
// non-blocking: a subscriber with a full buffer misses the message.
func (b *MemoryBus) Publish(ctx context.Context, topic, payload string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}
	for _, sub := range b.subs[topic] {
		select {
		case sub.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers handler and starts its delivery goroutine.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	sub := &memorySub{ch: make(chan string, memoryBusBuffer), handler: handler}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case payload, ok := <-sub.ch:
				if !ok {
					return
				}
				sub.handler(payload)
			case <-ctx.Done():
				b.remove(topic, sub)
				return
			}
		}
	}()
	return nil
}

// Close stops all subscribers.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			close(sub.ch)
		}
	}
	b.subs = make(map[string][]*memorySub)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

func (b *MemoryBus) remove(topic string, target *memorySub) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	subs := b.subs[topic]
	for i, sub := range subs {
		if sub == target {
			b.subs[topic] = append(subs[:i], subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}
