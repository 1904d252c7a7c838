// Package notify buffers outbound notifications in process and publishes
// them to the broker from a small worker pool.  Enqueue never blocks the
// caller: when the buffer is full the event is dropped and counted.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iliyamo/convention-desk/internal/metrics"
	"github.com/iliyamo/convention-desk/internal/queue"
)

// Publisher hands one event to the broker.  *queue.Publisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, ev queue.PaymentConfirmedEvent) error
}

// Options size the queue.  Zero values select the defaults.
type Options struct {
	Buffer   int
	Workers  int
	Attempts int
	Backoff  time.Duration
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Queue is the bounded notification buffer.
type Queue struct {
	pub  Publisher
	opts Options
	log  *slog.Logger
	buf  chan queue.PaymentConfirmedEvent

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	started sync.Once
}

func New(pub Publisher, opts Options) *Queue {
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		pub:  pub,
		opts: opts,
		log:  logger.With("component", "notify"),
		buf:  make(chan queue.PaymentConfirmedEvent, opts.Buffer),
	}
}

// Start launches the workers.  They run until Close.
func (q *Queue) Start() {
	q.started.Do(func() {
		for i := 0; i < q.opts.Workers; i++ {
			q.wg.Add(1)
			go q.worker()
		}
	})
}

// Enqueue buffers ev and reports whether it was accepted.
func (q *Queue) Enqueue(ev queue.PaymentConfirmedEvent) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		return false
	}
	select {
	case q.buf <- ev:
		metrics.NotificationsTotal.WithLabelValues("enqueued").Inc()
		return true
	default:
		metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		q.log.Warn("notification buffer full, dropping", "service", ev.Service, "id", ev.RecordID)
		return false
	}
}

// Close stops accepting events and waits until the workers have drained
// the buffer or ctx expires.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.buf)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for ev := range q.buf {
		q.deliver(ev)
	}
}

// deliver publishes with bounded retries and exponential backoff.
func (q *Queue) deliver(ev queue.PaymentConfirmedEvent) {
	wait := q.opts.Backoff
	for attempt := 1; attempt <= q.opts.Attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), q.opts.Timeout)
		err := q.pub.Publish(ctx, ev)
		cancel()
		if err == nil {
			metrics.NotificationsTotal.WithLabelValues("published").Inc()
			return
		}
		q.log.Warn("publish failed", "service", ev.Service, "id", ev.RecordID, "attempt", attempt, "error", err)
		if attempt < q.opts.Attempts {
			time.Sleep(wait)
			wait *= 2
		}
	}
	metrics.NotificationsTotal.WithLabelValues("failed").Inc()
	q.log.Error("notification abandoned", "service", ev.Service, "id", ev.RecordID, "attempts", q.opts.Attempts)
}
