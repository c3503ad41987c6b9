package worker

import (
	"context"
	"log/slog"
	"time"

	"docverify/internal/platform/kafka"
	"docverify/pkg/platform/audit/outbox"
)

// Worker polls the outbox and publishes pending entries to Kafka. Delivery is
// at-least-once: an entry published but not marked is published again on the
// next poll, keyed by its id so consumers can deduplicate.
type Worker struct {
	store        outbox.Store
	producer     kafka.Publisher
	topic        string
	batchSize    int
	pollInterval time.Duration
	retention    time.Duration
	metrics      *outbox.Metrics
	logger       *slog.Logger
}

type Option func(*Worker)

func WithTopic(topic string) Option {
	return func(w *Worker) { w.topic = topic }
}

func WithBatchSize(size int) Option {
	return func(w *Worker) { w.batchSize = size }
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) { w.pollInterval = interval }
}

// WithRetention sets how long published entries are kept before cleanup.
func WithRetention(d time.Duration) Option {
	return func(w *Worker) { w.retention = d }
}

func WithMetrics(m *outbox.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func New(store outbox.Store, producer kafka.Publisher, opts ...Option) *Worker {
	w := &Worker{
		store:        store,
		producer:     producer,
		topic:        "docverify.audit.events",
		batchSize:    100,
		pollInterval: 200 * time.Millisecond,
		retention:    24 * time.Hour,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until ctx is cancelled, then drains what is left with a short
// deadline of its own.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	cleanup := time.NewTicker(time.Hour)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case <-ticker.C:
			w.Poll(ctx)
		case <-cleanup.C:
			w.cleanup(ctx)
		}
	}
}

// Poll publishes one batch and returns how many entries were published.
func (w *Worker) Poll(ctx context.Context) int {
	entries, err := w.store.FetchUnprocessed(ctx, w.batchSize)
	if err != nil {
		w.logger.ErrorContext(ctx, "outbox_fetch_failed", "error", err)
		w.incFailures()
		return 0
	}
	if w.metrics != nil && len(entries) > 0 {
		w.metrics.BatchSize.Observe(float64(len(entries)))
	}

	published := 0
	for _, entry := range entries {
		if err := w.publish(ctx, entry); err != nil {
			w.logger.ErrorContext(ctx, "outbox_publish_failed",
				"id", entry.ID,
				"event_type", entry.EventType,
				"error", err,
			)
			w.incFailures()
			continue
		}
		if err := w.store.MarkProcessed(ctx, entry.ID, time.Now()); err != nil {
			w.logger.ErrorContext(ctx, "outbox_mark_failed", "id", entry.ID, "error", err)
			continue
		}
		published++
		if w.metrics != nil {
			w.metrics.PublishedTotal.Inc()
		}
	}

	if w.metrics != nil {
		if n, err := w.store.CountPending(ctx); err == nil {
			w.metrics.PendingDepth.Set(float64(n))
		}
	}
	return published
}

func (w *Worker) publish(ctx context.Context, entry *outbox.Entry) error {
	start := time.Now()
	err := w.producer.Produce(ctx, &kafka.Message{
		Topic: w.topic,
		Key:   []byte(entry.ID.String()),
		Value: entry.Payload,
		Headers: map[string]string{
			"aggregate_type": entry.AggregateType,
			"aggregate_id":   entry.AggregateID,
			"event_type":     entry.EventType,
		},
	})
	if err != nil {
		return err
	}
	if w.metrics != nil {
		w.metrics.PublishDuration.Observe(time.Since(start).Seconds())
	}
	return nil
}

func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	w.logger.Info("outbox_draining")
	for ctx.Err() == nil {
		if w.Poll(ctx) == 0 {
			return
		}
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	n, err := w.store.DeleteProcessedBefore(ctx, time.Now().Add(-w.retention))
	if err != nil {
		w.logger.WarnContext(ctx, "outbox_cleanup_failed", "error", err)
		return
	}
	if n > 0 {
		w.logger.InfoContext(ctx, "outbox_cleanup", "deleted", n)
	}
}

func (w *Worker) incFailures() {
	if w.metrics != nil {
		w.metrics.PublishFailures.Inc()
	}
}
