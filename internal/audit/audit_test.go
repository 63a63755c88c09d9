package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func drain(t *testing.T, trail *Trail, sink *MemorySink, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, err := sink.Recent(context.Background(), DefaultQueryLimit)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) >= want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("sink has %d entries, want %d", len(entries), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTrailRecordsAsync(t *testing.T) {
	sink := NewMemorySink()
	trail := NewTrail(sink, 0, zerolog.Nop())
	defer trail.Close()

	actor := "alice"
	trail.Record(Entry{
		FlagID:  uuid.New(),
		FlagKey: "checkout",
		Action:  ActionCreated,
		ActorID: &actor,
		Payload: map[string]any{"enabled": true},
	})
	drain(t, trail, sink, 1)

	entries, err := trail.ForFlag(context.Background(), "checkout", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	got := entries[0]
	if got.ID == uuid.Nil {
		t.Fatal("expected generated entry id")
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("expected timestamp to be filled in")
	}
	if got.Action != ActionCreated || got.Payload["enabled"] != true {
		t.Fatalf("entry mismatch: %+v", got)
	}
}

func TestTrailNewestFirst(t *testing.T) {
	sink := NewMemorySink()
	trail := NewTrail(sink, 0, zerolog.Nop())
	defer trail.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, action := range []string{ActionCreated, ActionEnabled, ActionDisabled} {
		trail.Record(Entry{
			FlagKey:   "checkout",
			Action:    action,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	drain(t, trail, sink, 3)

	entries, err := trail.ForFlag(context.Background(), "checkout", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Action != ActionDisabled || entries[2].Action != ActionCreated {
		t.Fatalf("expected newest first, got %s..%s", entries[0].Action, entries[2].Action)
	}
}

func TestTrailByActorAndLimit(t *testing.T) {
	sink := NewMemorySink()
	trail := NewTrail(sink, 0, zerolog.Nop())
	defer trail.Close()

	alice, bob := "alice", "bob"
	for i := 0; i < 5; i++ {
		trail.Record(Entry{FlagKey: "a", Action: ActionUpdated, ActorID: &alice})
	}
	trail.Record(Entry{FlagKey: "a", Action: ActionUpdated, ActorID: &bob})
	drain(t, trail, sink, 6)

	entries, err := trail.ByActor(context.Background(), "alice", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want limit of 3", len(entries))
	}
	for _, e := range entries {
		if e.ActorID == nil || *e.ActorID != "alice" {
			t.Fatalf("unexpected actor in %+v", e)
		}
	}
}

type failingSink struct {
	MemorySink
}

func (*failingSink) Append(ctx context.Context, entry Entry) error {
	return errors.New("disk full")
}

func TestTrailSwallowsSinkErrors(t *testing.T) {
	trail := NewTrail(&failingSink{}, 0, zerolog.Nop())

	// Record must not panic or block even when every append fails.
	for i := 0; i < 10; i++ {
		trail.Record(Entry{FlagKey: "checkout", Action: ActionUpdated})
	}
	if err := trail.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestTrailDropsWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	sink := &blockingSink{unblock: block}
	trail := NewTrail(sink, 1, zerolog.Nop())

	// First entry occupies the worker, second fills the queue; the rest
	// must be dropped without blocking this goroutine.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			trail.Record(Entry{FlagKey: "checkout", Action: ActionUpdated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}
	close(block)
	trail.Close()
}

type blockingSink struct {
	MemorySink
	unblock chan struct{}
}

func (s *blockingSink) Append(ctx context.Context, entry Entry) error {
	<-s.unblock
	return s.MemorySink.Append(ctx, entry)
}
