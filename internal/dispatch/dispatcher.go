package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jayjaytrn/order-management-system/internal/clock"
	"github.com/jayjaytrn/order-management-system/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/jayjaytrn/order-management-system/internal/dispatch")

type Options struct {
	Visibility   time.Duration
	Backoff      time.Duration
	MaxAttempts  int
	PollInterval time.Duration
}

// Dispatcher hands order jobs to the worker pool. One instance is built at
// start-up and shared by the gateway, the workers and the reconciler.
type Dispatcher struct {
	queue  Queue
	clock  clock.Clock
	opts   Options
	Logger *zap.SugaredLogger
}

func New(queue Queue, clk clock.Clock, opts Options, logger *zap.SugaredLogger) *Dispatcher {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	return &Dispatcher{
		queue:  queue,
		clock:  clk,
		opts:   opts,
		Logger: logger,
	}
}

// Enqueue publishes a process_order job for the order and returns its id.
// Any publish failure is reported as models.ErrChannelUnavailable.
func (d *Dispatcher) Enqueue(ctx context.Context, orderID string) (string, error) {
	ctx, span := tracer.Start(ctx, "Dispatcher.Enqueue", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer span.End()

	job := models.Job{
		ID:         uuid.New().String(),
		Type:       models.JobTypeProcessOrder,
		OrderID:    orderID,
		Attempt:    0,
		EnqueuedAt: d.clock.Now(),
	}
	if err := d.queue.Publish(ctx, job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return "", fmt.Errorf("%w: %v", models.ErrChannelUnavailable, err)
	}

	span.SetAttributes(attribute.String("job.id", job.ID))
	d.Logger.Infow("job enqueued", "job_id", job.ID, "order_id", orderID)
	return job.ID, nil
}

// TryNext claims a visible job without waiting. It returns models.ErrNoJob
// when nothing is due.
func (d *Dispatcher) TryNext(ctx context.Context) (models.Delivery, error) {
	return d.queue.Receive(ctx, d.clock.Now(), d.opts.Visibility)
}

// Next blocks until a job is claimed or ctx is done.
func (d *Dispatcher) Next(ctx context.Context) (models.Delivery, error) {
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		delivery, err := d.TryNext(ctx)
		if err == nil {
			return delivery, nil
		}
		if !errors.Is(err, models.ErrNoJob) {
			d.Logger.Errorw("failed to receive job", "error", err)
		}

		select {
		case <-ctx.Done():
			return models.Delivery{}, ctx.Err()
		case <-d.queue.Ready():
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) Ack(ctx context.Context, job models.Job) error {
	if err := d.queue.Ack(ctx, job); err != nil {
		return fmt.Errorf("ack job %s: %w", job.ID, err)
	}
	return nil
}

// Retry makes the job visible again after the configured backoff.
func (d *Dispatcher) Retry(ctx context.Context, job models.Job, failure models.Failure) error {
	visibleAt := d.clock.Now().Add(d.opts.Backoff)
	if err := d.queue.Retry(ctx, job, failure, visibleAt); err != nil {
		return fmt.Errorf("retry job %s: %w", job.ID, err)
	}
	d.Logger.Infow("job scheduled for retry", "job_id", job.ID, "order_id", job.OrderID,
		"attempt", job.Attempt, "visible_at", visibleAt, "reason", failure.Reason, "resumable", failure.Resumable)
	return nil
}

func (d *Dispatcher) Outstanding(ctx context.Context, orderID string) (bool, error) {
	return d.queue.Outstanding(ctx, orderID)
}

// MaxAttempts is the number of deliveries a job gets before the order is
// marked failed.
func (d *Dispatcher) MaxAttempts() int {
	return d.opts.MaxAttempts
}
