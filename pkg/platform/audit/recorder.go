package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrDeferred means the event was not persisted yet but is queued for
	// retry. Callers treat it as a warning, never as a failed operation.
	ErrDeferred = errors.New("audit write deferred")
	// ErrQueueFull means the event could not be persisted or queued.
	ErrQueueFull = errors.New("audit retry queue full")
	ErrClosed    = errors.New("audit recorder closed")
)

const (
	defaultAppendTimeout = 2 * time.Second
	defaultQueueSize     = 1024
	defaultRetryBase     = 100 * time.Millisecond
	defaultRetryMax      = 10 * time.Second
)

// Recorder appends events synchronously and falls back to a bounded retry
// queue when the store fails. A background goroutine drains the queue with
// exponential backoff until the event is stored or the recorder is closed.
type Recorder struct {
	store     Store
	timeout   time.Duration
	retryBase time.Duration
	retryMax  time.Duration
	queue     *retryQueue
	logger    *slog.Logger
	metrics   *Metrics
	now       func() time.Time

	mu     sync.RWMutex
	closed bool

	wake  chan struct{}
	stop  chan struct{}
	abort chan struct{}
	done  chan struct{}
}

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithAppendTimeout bounds each store append.
func WithAppendTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithQueueSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.queue = newRetryQueue(n)
		}
	}
}

// WithRetryBackoff sets the first and the maximum delay between retries.
func WithRetryBackoff(base, max time.Duration) Option {
	return func(r *Recorder) {
		if base > 0 {
			r.retryBase = base
		}
		if max >= base && max > 0 {
			r.retryMax = max
		}
	}
}

// WithClock overrides the timestamp source for events recorded without one.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder starts the retry goroutine. Close must be called to stop it.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:     store,
		timeout:   defaultAppendTimeout,
		retryBase: defaultRetryBase,
		retryMax:  defaultRetryMax,
		queue:     newRetryQueue(defaultQueueSize),
		logger:    slog.Default(),
		now:       time.Now,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		abort:     make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.run()
	return r
}

// Record appends event. It returns nil when the event is stored, ErrDeferred
// when it was queued for retry, and ErrQueueFull or ErrClosed when it could
// not be kept at all; the latter two are logged at error level and counted.
func (r *Recorder) Record(ctx context.Context, event Event) error {
	event.fillDefaults(r.now())

	appendCtx, cancel := context.WithTimeout(ctx, r.timeout)
	err := r.store.Append(appendCtx, event)
	cancel()
	if err == nil {
		r.countAppended(event)
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.lose(ctx, event, "closed", err)
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	if !r.queue.TryEnqueue(event) {
		r.lose(ctx, event, "queue_full", err)
		return fmt.Errorf("%w: %w", ErrQueueFull, err)
	}

	r.logger.WarnContext(ctx, "audit_append_deferred",
		"event_id", event.ID,
		"kind", event.Kind,
		"error", err,
	)
	if r.metrics != nil {
		r.metrics.Deferred.Inc()
		r.metrics.QueueDepth.Set(float64(r.queue.Len()))
	}
	select {
	case r.wake <- struct{}{}:
	default:
	}
	return ErrDeferred
}

// Pending returns the number of queued events.
func (r *Recorder) Pending() int {
	return r.queue.Len()
}

// Close stops accepting deferred events and drains the queue. When ctx ends
// before the queue is empty the remaining events are logged as lost.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return nil
	}
	r.closed = true
	close(r.stop)
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		close(r.abort)
		<-r.done
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	delay := r.retryBase
	for {
		event, ok := r.queue.Peek()
		if !ok {
			select {
			case <-r.wake:
				continue
			case <-r.stop:
				if r.queue.Len() == 0 {
					return
				}
				continue
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err := r.store.Append(ctx, event)
		cancel()
		if err == nil {
			r.queue.Pop()
			delay = r.retryBase
			r.countAppended(event)
			if r.metrics != nil {
				r.metrics.Retried.Inc()
				r.metrics.QueueDepth.Set(float64(r.queue.Len()))
			}
			continue
		}

		r.logger.Warn("audit_retry_failed", "event_id", event.ID, "retry_in", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-r.abort:
			r.dropRemaining(err)
			return
		}
		delay = min(delay*2, r.retryMax)
	}
}

func (r *Recorder) dropRemaining(lastErr error) {
	for {
		event, ok := r.queue.Peek()
		if !ok {
			return
		}
		r.queue.Pop()
		r.lose(context.Background(), event, "shutdown", lastErr)
	}
}

func (r *Recorder) lose(ctx context.Context, event Event, reason string, err error) {
	r.logger.ErrorContext(ctx, "audit_event_lost",
		"event_id", event.ID,
		"kind", event.Kind,
		"document_id", event.DocumentID,
		"result", event.Result,
		"reason", reason,
		"error", err,
	)
	if r.metrics != nil {
		r.metrics.Lost.WithLabelValues(reason).Inc()
		r.metrics.QueueDepth.Set(float64(r.queue.Len()))
	}
}

func (r *Recorder) countAppended(event Event) {
	if r.metrics != nil {
		r.metrics.Appended.WithLabelValues(string(event.Kind)).Inc()
	}
}
