package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/raven-oracle/portal/internal/core/ports"
)

const (
	channelPrefix      = "portal:"
	subscriptionBuffer = 64
)

// Notifier implements ports.Notifier over Redis pub/sub, so every replica
// sees the change events published by any other.
type Notifier struct {
	client *redis.Client
}

// NewNotifier creates a Notifier wrapping the given Redis client.
func NewNotifier(client *redis.Client) *Notifier {
	return &Notifier{client: client}
}

func (n *Notifier) Publish(ctx context.Context, ev ports.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	if err := n.client.Publish(ctx, channelPrefix+ev.Topic, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Topic, err)
	}
	return nil
}

// Subscribe returns after Redis has confirmed every channel.
func (n *Notifier) Subscribe(ctx context.Context, topics ...string) (ports.Subscription, error) {
	channels := make([]string, len(topics))
	for i, t := range topics {
		channels[i] = channelPrefix + t
	}

	ps := n.client.Subscribe(ctx, channels...)
	for range channels {
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("subscribe: %w", err)
		}
	}

	sub := &subscription{
		ps:   ps,
		ch:   make(chan ports.ChangeEvent, subscriptionBuffer),
		done: make(chan struct{}),
	}
	go sub.run(ctx)
	return sub, nil
}

type subscription struct {
	ps   *redis.PubSub
	ch   chan ports.ChangeEvent
	done chan struct{}
	once sync.Once
}

func (s *subscription) run(ctx context.Context) {
	msgs := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev ports.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			// events are wakeups; a full buffer drops them
			select {
			case s.ch <- ev:
			default:
			}
		}
	}
}

func (s *subscription) Events() <-chan ports.ChangeEvent { return s.ch }

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
