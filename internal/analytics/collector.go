package analytics

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/petersspain/SearchServer/pkg/kafka"
	"github.com/petersspain/SearchServer/pkg/metrics"
	"github.com/petersspain/SearchServer/pkg/resilience"
)

// Publisher writes a batch of events; *kafka.Producer satisfies it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers events from request paths and publishes them in batches
// of up to batchSize, or every flushInterval, whichever comes first. Track
// never blocks; events are dropped when the buffer is full.
type Collector struct {
	publisher     Publisher
	eventCh       chan Event
	batchSize     int
	flushInterval time.Duration
	retry         resilience.RetryConfig
	breaker       *resilience.Breaker
	metrics       *metrics.Metrics
	logger        *slog.Logger
	done          chan struct{}

	// mu orders sends in Track against close(eventCh) in Close.
	mu     sync.RWMutex
	closed bool
}

type CollectorOption func(*Collector)

func WithBatching(size int, interval time.Duration) CollectorOption {
	return func(c *Collector) {
		if size > 0 {
			c.batchSize = size
		}
		if interval > 0 {
			c.flushInterval = interval
		}
	}
}

func WithRetry(cfg resilience.RetryConfig) CollectorOption {
	return func(c *Collector) { c.retry = cfg }
}

// WithBreaker sheds publishes while the broker keeps failing. Batches rejected
// by an open breaker are dropped.
func WithBreaker(b *resilience.Breaker) CollectorOption {
	return func(c *Collector) { c.breaker = b }
}

func WithCollectorMetrics(m *metrics.Metrics) CollectorOption {
	return func(c *Collector) { c.metrics = m }
}

func NewCollector(publisher Publisher, bufferSize int, opts ...CollectorOption) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	c := &Collector{
		publisher:     publisher,
		eventCh:       make(chan Event, bufferSize),
		batchSize:     100,
		flushInterval: time.Second,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start runs the flush loop until ctx is cancelled or Close is called.
// Whatever is buffered at that point is flushed before the loop exits.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()

		batch := make([]Event, 0, c.batchSize)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					c.flush(context.Background(), batch)
					return
				}
				batch = append(batch, event)
				if len(batch) >= c.batchSize {
					c.flush(ctx, batch)
					batch = batch[:0]
				}
			case <-ticker.C:
				c.flush(ctx, batch)
				batch = batch[:0]
			case <-ctx.Done():
				c.flush(context.Background(), c.drain(batch))
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// Track enqueues event. A nil *Collector ignores it, and events tracked after
// Close are counted as dropped.
func (c *Collector) Track(event Event) {
	if c == nil {
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.metrics.AnalyticsEvent(string(event.EventType()), "dropped")
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.metrics.AnalyticsEvent(string(event.EventType()), "dropped")
		c.logger.Warn("analytics event dropped (buffer full)", "type", event.EventType())
	}
}

// Close stops accepting events and waits for the final flush. Calling it
// more than once is a no-op.
func (c *Collector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.eventCh)
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) drain(batch []Event) []Event {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return batch
			}
			batch = append(batch, event)
		default:
			return batch
		}
	}
}

func (c *Collector) flush(ctx context.Context, batch []Event) {
	if len(batch) == 0 {
		return
	}
	events := make([]kafka.Event, 0, len(batch))
	for _, e := range batch {
		events = append(events, kafka.Event{Key: string(e.EventType()), Value: e})
	}
	publish := func() error {
		return resilience.Retry(ctx, "analytics-publish", c.retry, func() error {
			return c.publisher.PublishBatch(ctx, events)
		})
	}
	var err error
	if c.breaker != nil {
		err = c.breaker.Do(publish)
	} else {
		err = publish()
	}
	status := "published"
	switch {
	case errors.Is(err, resilience.ErrBreakerOpen):
		status = "dropped"
		c.logger.Warn("analytics batch dropped", "count", len(events), "error", err)
	case err != nil:
		status = "failed"
		c.logger.Error("failed to publish analytics batch", "count", len(events), "error", err)
	}
	for _, e := range batch {
		c.metrics.AnalyticsEvent(string(e.EventType()), status)
	}
}
