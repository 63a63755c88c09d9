// Package notifier pushes flag change events to connected stream clients.
// It listens on the shared invalidation topic, re-fetches the fresh flag
// definition and fans it out to every connection subscribed to that key.
package notifier

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/flagdeck/flagdeck/internal/bus"
	"github.com/flagdeck/flagdeck/internal/cache"
	"github.com/flagdeck/flagdeck/internal/store"
	"github.com/flagdeck/flagdeck/internal/telemetry"
)

// Event types pushed to stream clients.
const (
	EventState   = "flag_state"
	EventUpdated = "flag_updated"
	EventDeleted = "flag_deleted"
)

// Event is one change notification. Flag is nil for deletions.
type Event struct {
	Type    string      `json:"type"`
	FlagKey string      `json:"flagKey"`
	Flag    *store.Flag `json:"flag,omitempty"`
}

// Resolver fetches the current flag definition, typically the coordinator's
// cache-first read.
type Resolver interface {
	GetFlag(ctx context.Context, key string) (*store.Flag, error)
}

const connBuffer = 16

// Conn is one client connection with its subscription set.
type Conn struct {
	ch    chan Event
	flags map[string]struct{} // empty means all flags
}

// C is the event channel. It is closed when the connection is removed.
func (c *Conn) C() <-chan Event { return c.ch }

func (c *Conn) wants(flagKey string) bool {
	if len(c.flags) == 0 {
		return true
	}
	_, ok := c.flags[flagKey]
	return ok
}

// Notifier is safe for concurrent use.
type Notifier struct {
	bus      bus.Bus
	resolver Resolver
	logger   zerolog.Logger

	mu    sync.RWMutex
	conns map[*Conn]struct{}
}

// New creates a notifier. Call Start to begin receiving invalidations.
func New(b bus.Bus, resolver Resolver, logger zerolog.Logger) *Notifier {
	return &Notifier{
		bus:      b,
		resolver: resolver,
		logger:   logger.With().Str("component", "notifier").Logger(),
		conns:    make(map[*Conn]struct{}),
	}
}

// Start subscribes to the invalidation topic. Events are resolved and fanned
// out on the bus delivery goroutine; sends never block it.
func (n *Notifier) Start(ctx context.Context) error {
	return n.bus.Subscribe(ctx, cache.InvalidationTopic, func(key string) {
		n.notify(ctx, key)
	})
}

// Subscribe registers a connection interested in the given flag keys. An
// empty set subscribes to every flag.
func (n *Notifier) Subscribe(flagKeys []string) *Conn {
	conn := &Conn{ch: make(chan Event, connBuffer)}
	if len(flagKeys) > 0 {
		conn.flags = make(map[string]struct{}, len(flagKeys))
		for _, key := range flagKeys {
			conn.flags[key] = struct{}{}
		}
	}

	n.mu.Lock()
	n.conns[conn] = struct{}{}
	n.mu.Unlock()

	telemetry.StreamClients.Inc()
	return conn
}

// Unsubscribe removes the connection and closes its channel. Safe to call
// more than once.
func (n *Notifier) Unsubscribe(conn *Conn) {
	n.mu.Lock()
	_, ok := n.conns[conn]
	if ok {
		delete(n.conns, conn)
	}
	n.mu.Unlock()

	if ok {
		telemetry.StreamClients.Dec()
		close(conn.ch)
	}
}

func (n *Notifier) notify(ctx context.Context, flagKey string) {
	event := Event{Type: EventUpdated, FlagKey: flagKey}
	flag, err := n.resolver.GetFlag(ctx, flagKey)
	switch {
	case err == nil:
		event.Flag = flag
	case errors.Is(err, store.ErrNotFound):
		event.Type = EventDeleted
	default:
		n.logger.Warn().Err(err).Str("flag", flagKey).Msg("re-fetch for notification failed, skipping")
		return
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	for conn := range n.conns {
		if !conn.wants(flagKey) {
			continue
		}
		// Slow clients miss events rather than stalling the fan-out.
		select {
		case conn.ch <- event:
		default:
			n.logger.Debug().Str("flag", flagKey).Msg("stream client buffer full, dropping event")
		}
	}
}
