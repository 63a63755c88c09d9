// Package audit records an append-only trail of flag mutations. Recording is
// asynchronous and best-effort: a mutation never fails or blocks because the
// trail could not be written.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Actions recorded on the trail.
const (
	ActionCreated        = "created"
	ActionUpdated        = "updated"
	ActionDeleted        = "deleted"
	ActionEnabled        = "enabled"
	ActionDisabled       = "disabled"
	ActionVariantAdded   = "variant_added"
	ActionVariantUpdated = "variant_updated"
	ActionVariantRemoved = "variant_removed"
	ActionTargetAdded    = "target_added"
	ActionTargetUpdated  = "target_updated"
	ActionTargetRemoved  = "target_removed"
	ActionRolloutChanged = "rollout_changed"
)

// Entry is one immutable trail record. FlagKey is denormalized so the trail
// of a soft-deleted flag stays queryable by key.
type Entry struct {
	ID        uuid.UUID      `json:"id"`
	FlagID    uuid.UUID      `json:"flagId"`
	FlagKey   string         `json:"flagKey"`
	Action    string         `json:"action"`
	ActorID   *string        `json:"actorId,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	IPAddress string         `json:"ipAddress,omitempty"`
	UserAgent string         `json:"userAgent,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Sink persists entries and answers trail queries. Results are newest-first.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
	ForFlag(ctx context.Context, flagKey string, limit int) ([]Entry, error)
	ByActor(ctx context.Context, actorID string, limit int) ([]Entry, error)
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

const (
	defaultQueueSize = 256
	// DefaultQueryLimit caps trail queries that pass no explicit limit.
	DefaultQueryLimit = 100
)

// Trail accepts entries on a bounded queue drained by a single worker
// goroutine. When the queue is full the entry is dropped and logged, never
// blocking the caller.
type Trail struct {
	sink   Sink
	queue  chan Entry
	done   chan struct{}
	logger zerolog.Logger
}

// NewTrail starts the trail worker. queueSize <= 0 uses the default.
func NewTrail(sink Sink, queueSize int, logger zerolog.Logger) *Trail {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	t := &Trail{
		sink:   sink,
		queue:  make(chan Entry, queueSize),
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "audit").Logger(),
	}
	go t.run()
	return t
}

func (t *Trail) run() {
	defer close(t.done)
	for entry := range t.queue {
		// The worker owns persistence failures; callers already moved on.
		if err := t.sink.Append(context.Background(), entry); err != nil {
			t.logger.Error().Err(err).
				Str("flag", entry.FlagKey).
				Str("action", entry.Action).
				Msg("audit append failed, entry lost")
		}
	}
}

// Record enqueues an entry. It never returns an error and never blocks: when
// the queue is full the entry is dropped with a log line.
func (t *Trail) Record(entry Entry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	select {
	case t.queue <- entry:
	default:
		t.logger.Warn().
			Str("flag", entry.FlagKey).
			Str("action", entry.Action).
			Msg("audit queue full, dropping entry")
	}
}

// ForFlag returns the trail for flagKey, newest first.
func (t *Trail) ForFlag(ctx context.Context, flagKey string, limit int) ([]Entry, error) {
	return t.sink.ForFlag(ctx, flagKey, normalizeLimit(limit))
}

// ByActor returns entries recorded by actorID, newest first.
func (t *Trail) ByActor(ctx context.Context, actorID string, limit int) ([]Entry, error) {
	return t.sink.ByActor(ctx, actorID, normalizeLimit(limit))
}

// Recent returns the most recent entries across all flags.
func (t *Trail) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return t.sink.Recent(ctx, normalizeLimit(limit))
}

// Close drains the queue, waits for the worker and closes the sink.
func (t *Trail) Close() error {
	close(t.queue)
	<-t.done
	return t.sink.Close()
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultQueryLimit {
		return DefaultQueryLimit
	}
	return limit
}
