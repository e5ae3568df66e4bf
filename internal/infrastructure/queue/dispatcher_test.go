package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/raven-oracle/portal/internal/core/ports"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []ports.ChangeEvent
	err    error
}

func (n *recordingNotifier) Publish(_ context.Context, ev ports.ChangeEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) Subscribe(context.Context, ...string) (ports.Subscription, error) {
	return nil, errors.New("not supported")
}

func (n *recordingNotifier) snapshot() []ports.ChangeEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ports.ChangeEvent(nil), n.events...)
}

func waitFor(t *testing.T, n *recordingNotifier, want int) []ports.ChangeEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if evs := n.snapshot(); len(evs) >= want {
			return evs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d published events, got: %d", want, len(n.snapshot()))
	return nil
}

// ---------------------------------------------------------------------------

func TestDispatcher_PreservesPerTopicOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := &recordingNotifier{}
	d := NewDispatcher(4, n, zerolog.Nop())
	d.Start(ctx)

	topics := []string{"messages", "user:a", "user:b", "session_request:x"}
	const perTopic = 50
	for i := 0; i < perTopic; i++ {
		for _, topic := range topics {
			d.Enqueue(ports.ChangeEvent{Topic: topic, ID: fmt.Sprint(i)})
		}
	}

	evs := waitFor(t, n, perTopic*len(topics))
	next := make(map[string]int)
	for _, ev := range evs {
		if ev.ID != fmt.Sprint(next[ev.Topic]) {
			t.Fatalf("expected %s event %d, got: %s", ev.Topic, next[ev.Topic], ev.ID)
		}
		next[ev.Topic]++
	}
}

func TestDispatcher_ContinuesAfterPublishError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := &recordingNotifier{err: errors.New("redis down")}
	d := NewDispatcher(1, n, zerolog.Nop())
	d.Start(ctx)

	d.Enqueue(ports.ChangeEvent{Topic: "messages", ID: "1"})
	d.Enqueue(ports.ChangeEvent{Topic: "messages", ID: "2"})

	waitFor(t, n, 2)
}

func TestDispatcher_ShardIndexIsStable(t *testing.T) {
	d := NewDispatcher(0, &recordingNotifier{}, zerolog.Nop())
	if len(d.workers) != defaultWorkers {
		t.Fatalf("expected %d workers, got: %d", defaultWorkers, len(d.workers))
	}
	first := d.shardIndex("admin:queue")
	for i := 0; i < 10; i++ {
		if got := d.shardIndex("admin:queue"); got != first {
			t.Fatalf("expected shard %d, got: %d", first, got)
		}
	}
}
