package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jayjaytrn/order-management-system/models"
)

// Queue is the job channel between the dispatcher and the workers.
//
// Receive claims the oldest job whose visibility deadline has passed,
// increments its attempt and hides it until now+visibility. Ack and Retry
// only apply to the delivery with the same attempt; a job redelivered in the
// meantime is left alone and models.ErrJobNotFound is returned.
//
// Jobs travel as the encoded message of models.EncodeJob; Receive hands back
// what models.DecodeJob reads from it.
type Queue interface {
	Publish(ctx context.Context, job models.Job) error
	Receive(ctx context.Context, now time.Time, visibility time.Duration) (models.Delivery, error)
	Ack(ctx context.Context, job models.Job) error
	Retry(ctx context.Context, job models.Job, failure models.Failure, visibleAt time.Time) error
	Outstanding(ctx context.Context, orderID string) (bool, error)
	Ready() <-chan struct{}
}

var errQueueClosed = errors.New("queue closed")

type queued struct {
	payload    []byte
	orderID    string
	attempt    int
	enqueuedAt time.Time
	visibleAt  time.Time
	failure    models.Failure
}

// MemoryQueue is an in-process Queue with the same visibility semantics as
// the jobs table.
type MemoryQueue struct {
	mu     sync.Mutex
	jobs   map[string]*queued
	ready  chan struct{}
	closed bool
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		jobs:  make(map[string]*queued),
		ready: make(chan struct{}, 1),
	}
}

func (q *MemoryQueue) Publish(_ context.Context, job models.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errQueueClosed
	}
	payload, err := models.EncodeJob(job)
	if err != nil {
		return err
	}
	q.jobs[job.ID] = &queued{
		payload:    payload,
		orderID:    job.OrderID,
		attempt:    job.Attempt,
		enqueuedAt: job.EnqueuedAt,
		visibleAt:  job.EnqueuedAt,
	}
	q.notify()
	return nil
}

func (q *MemoryQueue) Receive(_ context.Context, now time.Time, visibility time.Duration) (models.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var next *queued
	for _, e := range q.jobs {
		if e.visibleAt.After(now) {
			continue
		}
		if next == nil || e.visibleAt.Before(next.visibleAt) ||
			(e.visibleAt.Equal(next.visibleAt) && e.enqueuedAt.Before(next.enqueuedAt)) {
			next = e
		}
	}
	if next == nil {
		return models.Delivery{}, models.ErrNoJob
	}

	job, err := models.DecodeJob(next.payload)
	if err != nil {
		return models.Delivery{}, err
	}
	job.Attempt++
	payload, err := models.EncodeJob(job)
	if err != nil {
		return models.Delivery{}, err
	}

	next.payload = payload
	next.attempt = job.Attempt
	next.visibleAt = now.Add(visibility)
	d := models.Delivery{
		Job:       job,
		VisibleAt: next.visibleAt,
		LastError: next.failure.Reason,
		Resumable: next.failure.Resumable,
	}
	next.failure = models.Failure{}
	return d, nil
}

func (q *MemoryQueue) Ack(_ context.Context, job models.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.jobs[job.ID]
	if !ok || e.attempt != job.Attempt {
		return models.ErrJobNotFound
	}
	delete(q.jobs, job.ID)
	return nil
}

func (q *MemoryQueue) Retry(_ context.Context, job models.Job, failure models.Failure, visibleAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.jobs[job.ID]
	if !ok || e.attempt != job.Attempt {
		return models.ErrJobNotFound
	}
	e.visibleAt = visibleAt
	e.failure = failure
	q.notify()
	return nil
}

func (q *MemoryQueue) Outstanding(_ context.Context, orderID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.jobs {
		if e.orderID == orderID {
			return true, nil
		}
	}
	return false, nil
}

func (q *MemoryQueue) Ready() <-chan struct{} {
	return q.ready
}

// Len reports the number of jobs not yet acknowledged.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close makes every further Publish fail. Jobs already queued stay
// receivable.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

func (q *MemoryQueue) notify() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
