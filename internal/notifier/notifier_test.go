package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/flagdeck/flagdeck/internal/bus"
	"github.com/flagdeck/flagdeck/internal/cache"
	"github.com/flagdeck/flagdeck/internal/store"
)

type staticResolver struct {
	flags map[string]*store.Flag
}

func (r *staticResolver) GetFlag(ctx context.Context, key string) (*store.Flag, error) {
	if flag, ok := r.flags[key]; ok {
		return flag, nil
	}
	return nil, store.ErrNotFound
}

func newTestNotifier(t *testing.T, resolver Resolver) (*Notifier, *bus.MemoryBus) {
	t.Helper()
	b := bus.NewMemoryBus()
	t.Cleanup(func() { b.Close() })

	n := New(b, resolver, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := n.Start(ctx); err != nil {
		t.Fatal(err)
	}
	return n, b
}

func recvEvent(t *testing.T, conn *Conn) Event {
	t.Helper()
	select {
	case event := <-conn.C():
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestNotifierDeliversToSubscribedConnection(t *testing.T) {
	resolver := &staticResolver{flags: map[string]*store.Flag{
		"checkout": {Key: "checkout", Enabled: true},
	}}
	n, b := newTestNotifier(t, resolver)

	conn := n.Subscribe([]string{"checkout"})
	defer n.Unsubscribe(conn)

	if err := b.Publish(context.Background(), cache.InvalidationTopic, "checkout"); err != nil {
		t.Fatal(err)
	}

	event := recvEvent(t, conn)
	if event.Type != EventUpdated || event.FlagKey != "checkout" {
		t.Fatalf("event = %+v", event)
	}
	if event.Flag == nil || !event.Flag.Enabled {
		t.Fatalf("expected fresh definition attached, got %+v", event.Flag)
	}
}

func TestNotifierFiltersBySubscriptionSet(t *testing.T) {
	resolver := &staticResolver{flags: map[string]*store.Flag{
		"checkout": {Key: "checkout"},
		"search":   {Key: "search"},
	}}
	n, b := newTestNotifier(t, resolver)

	only := n.Subscribe([]string{"search"})
	all := n.Subscribe(nil)
	defer n.Unsubscribe(only)
	defer n.Unsubscribe(all)

	ctx := context.Background()
	if err := b.Publish(ctx, cache.InvalidationTopic, "checkout"); err != nil {
		t.Fatal(err)
	}
	if err := b.Publish(ctx, cache.InvalidationTopic, "search"); err != nil {
		t.Fatal(err)
	}

	// The filtered connection sees only its flag.
	event := recvEvent(t, only)
	if event.FlagKey != "search" {
		t.Fatalf("filtered connection got %q", event.FlagKey)
	}

	// The unfiltered connection sees both, in publish order.
	first := recvEvent(t, all)
	second := recvEvent(t, all)
	if first.FlagKey != "checkout" || second.FlagKey != "search" {
		t.Fatalf("unfiltered connection got %q, %q", first.FlagKey, second.FlagKey)
	}
}

func TestNotifierDeletionEvent(t *testing.T) {
	resolver := &staticResolver{flags: map[string]*store.Flag{}}
	n, b := newTestNotifier(t, resolver)

	conn := n.Subscribe([]string{"checkout"})
	defer n.Unsubscribe(conn)

	if err := b.Publish(context.Background(), cache.InvalidationTopic, "checkout"); err != nil {
		t.Fatal(err)
	}

	event := recvEvent(t, conn)
	if event.Type != EventDeleted || event.Flag != nil {
		t.Fatalf("expected deletion event without definition, got %+v", event)
	}
}

func TestNotifierUnsubscribeClosesChannel(t *testing.T) {
	n, _ := newTestNotifier(t, &staticResolver{})

	conn := n.Subscribe(nil)
	n.Unsubscribe(conn)

	select {
	case _, ok := <-conn.C():
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}

	// Double unsubscribe is safe.
	n.Unsubscribe(conn)
}

func TestNotifierSlowClientDoesNotBlock(t *testing.T) {
	resolver := &staticResolver{flags: map[string]*store.Flag{
		"checkout": {Key: "checkout"},
	}}
	n, b := newTestNotifier(t, resolver)

	slow := n.Subscribe(nil) // never drained
	defer n.Unsubscribe(slow)

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			b.Publish(ctx, cache.InvalidationTopic, "checkout")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing blocked on a slow client")
	}
}
