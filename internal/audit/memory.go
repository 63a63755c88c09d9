package audit

import (
	"context"
	"sync"
)

// MemorySink keeps entries in memory for development and tests.
type MemorySink struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Append(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemorySink) ForFlag(ctx context.Context, flagKey string, limit int) ([]Entry, error) {
	return s.filter(limit, func(e Entry) bool { return e.FlagKey == flagKey })
}

func (s *MemorySink) ByActor(ctx context.Context, actorID string, limit int) ([]Entry, error) {
	return s.filter(limit, func(e Entry) bool { return e.ActorID != nil && *e.ActorID == actorID })
}

func (s *MemorySink) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return s.filter(limit, func(Entry) bool { return true })
}

func (s *MemorySink) Close() error { return nil }

// filter walks the log backwards so results come out newest first.
func (s *MemorySink) filter(limit int, match func(Entry) bool) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if match(s.entries[i]) {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}
