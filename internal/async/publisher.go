package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/claims-review/internal/common"
	"github.com/joseph-ayodele/claims-review/internal/events"
)

var ErrQueueClosed = errors.New("publish queue is shut down")

type job struct {
	topic     string
	event     any
	requestID string
}

// PublishQueue hands events to a slower Publisher from a pool of workers, so
// callers never wait on the broker. Delivery failures are logged, not returned.
type PublishQueue struct {
	next    events.Publisher
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

var _ events.Publisher = (*PublishQueue)(nil)

type Option func(*PublishQueue)

func WithWorkers(n int) Option {
	return func(q *PublishQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *PublishQueue) {
		if n > 0 {
			q.ch = make(chan job, n)
		}
	}
}

func WithPublishTimeout(d time.Duration) Option {
	return func(q *PublishQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewPublishQueue(next events.Publisher, logger *slog.Logger, opts ...Option) *PublishQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &PublishQueue{
		next:    next,
		logger:  logger,
		workers: 2,
		timeout: 15 * time.Second,
		ch:      make(chan job, 128),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *PublishQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				for j := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					if j.requestID != "" {
						ctx = common.WithRequestID(ctx, j.requestID)
					}
					err := q.next.Publish(ctx, j.topic, j.event)
					cancel()
					if err != nil {
						q.logger.Error("publish.failed", "worker_id", workerID, "topic", j.topic, "request_id", j.requestID, "error", err)
					} else {
						q.logger.Debug("publish.ok", "worker_id", workerID, "topic", j.topic)
					}
				}
			}(i + 1)
		}
	})
}

// Publish enqueues the event. It blocks while the queue is full until ctx is done.
func (q *PublishQueue) Publish(ctx context.Context, topic string, event any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	j := job{topic: topic, event: event, requestID: common.RequestIDFromContext(ctx)}
	select {
	case q.ch <- j:
		return nil
	default:
	}
	q.logger.Warn("publish.queue.full", "topic", topic)
	select {
	case q.ch <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting events and waits for queued ones to be delivered.
func (q *PublishQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("publish.queue.shutdown_interrupted", "error", ctx.Err())
	case <-done:
		q.logger.Info("publish.queue.drained")
	}
}
