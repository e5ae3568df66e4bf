package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/raven-oracle/portal/internal/api/metrics"
	"github.com/raven-oracle/portal/internal/core/ports"
)

const (
	defaultWorkers = 8
	channelBuffer  = 256
	publishTimeout = 5 * time.Second
)

// Dispatcher routes change events to a fixed set of workers using consistent
// hashing on the topic, guaranteeing per-topic publication order.
type Dispatcher struct {
	workers  []chan ports.ChangeEvent
	notifier ports.Notifier
	log      zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, notifier ports.Notifier, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers:  make([]chan ports.ChangeEvent, numWorkers),
		notifier: notifier,
		log:      log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.ChangeEvent, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue sends an event to the worker responsible for its topic.
// The call is non-blocking up to channelBuffer capacity.
func (d *Dispatcher) Enqueue(ev ports.ChangeEvent) {
	idx := d.shardIndex(ev.Topic)
	d.workers[idx] <- ev
	metrics.DispatchQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
}

// shardIndex maps a topic deterministically to a worker index.
func (d *Dispatcher) shardIndex(topic string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.ChangeEvent) {
	depth := metrics.DispatchQueueDepth.WithLabelValues(strconv.Itoa(id))
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			depth.Set(float64(len(ch)))
			d.publish(ctx, id, ev)
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, id int, ev ports.ChangeEvent) {
	start := time.Now()
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	result := "ok"
	if err := d.notifier.Publish(pubCtx, ev); err != nil {
		result = "error"
		d.log.Error().Err(err).
			Str("topic", ev.Topic).
			Str("kind", ev.Kind).
			Int("worker_id", id).
			Msg("change event publication failed")
	}
	metrics.DispatchDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}
