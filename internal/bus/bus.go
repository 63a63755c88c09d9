// Package bus provides the cross-instance broadcast channel used to fan out
// cache-invalidation messages. Delivery is at-least-once: subscribers must
// tolerate duplicates, which invalidation does because eviction is idempotent.
package bus

import "context"

// Handler consumes one broadcast payload. Handlers must return quickly;
// implementations call them from the single subscription loop.
type Handler func(payload string)

// Bus is a topic-based publish/subscribe channel shared by all instances.
type Bus interface {
	// Publish broadcasts payload on topic to every subscribed instance,
	// including the publishing one.
	Publish(ctx context.Context, topic, payload string) error

	// Subscribe registers handler for topic and starts a background listener
	// that runs until ctx is cancelled or the bus closes.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close tears down all subscriptions.
	Close() error
}
