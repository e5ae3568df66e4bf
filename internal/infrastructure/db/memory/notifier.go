package memory

import (
	"context"
	"sync"

	"github.com/raven-oracle/portal/internal/core/ports"
)

const subscriptionBuffer = 64

// Notifier is an in-process ports.Notifier. Events are wakeups: a subscriber
// whose buffer is full misses the event but is expected to re-read the store
// on the next one it receives.
type Notifier struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscription
}

// NewNotifier returns a Notifier with no subscribers.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]*subscription)}
}

func (n *Notifier) Publish(_ context.Context, ev ports.ChangeEvent) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, sub := range n.subs {
		if _, ok := sub.topics[ev.Topic]; !ok {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
	return nil
}

func (n *Notifier) Subscribe(ctx context.Context, topics ...string) (ports.Subscription, error) {
	sub := &subscription{
		n:      n,
		ch:     make(chan ports.ChangeEvent, subscriptionBuffer),
		topics: make(map[string]struct{}, len(topics)),
	}
	for _, t := range topics {
		sub.topics[t] = struct{}{}
	}

	n.mu.Lock()
	n.nextID++
	sub.id = n.nextID
	n.subs[sub.id] = sub
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()
	return sub, nil
}

func (n *Notifier) remove(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subs, id)
}

type subscription struct {
	n      *Notifier
	id     int
	ch     chan ports.ChangeEvent
	topics map[string]struct{}
	once   sync.Once
}

func (s *subscription) Events() <-chan ports.ChangeEvent { return s.ch }

// Close unregisters the subscription. The event channel is left open; readers
// stop on their own context.
func (s *subscription) Close() error {
	s.once.Do(func() { s.n.remove(s.id) })
	return nil
}
