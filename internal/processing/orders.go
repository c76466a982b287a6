package processing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jayjaytrn/order-management-system/internal/clock"
	"github.com/jayjaytrn/order-management-system/internal/db"
	"github.com/jayjaytrn/order-management-system/internal/dispatch"
	"github.com/jayjaytrn/order-management-system/internal/events"
	"github.com/jayjaytrn/order-management-system/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const interruptedReason = "visibility deadline exceeded"

var tracer = otel.Tracer("github.com/jayjaytrn/order-management-system/internal/processing")

// Manager is the order worker pool. Every worker takes one job at a time
// from the dispatcher and drives the order through its state machine.
type Manager struct {
	Dispatcher *dispatch.Dispatcher
	Store      db.OrderStore
	Fulfiller  Fulfiller
	Events     events.Publisher
	Clock      clock.Clock
	Logger     *zap.SugaredLogger

	registry *dispatch.Registry
}

func NewManager(dispatcher *dispatch.Dispatcher, store db.OrderStore, fulfiller Fulfiller, publisher events.Publisher, clk clock.Clock, logger *zap.SugaredLogger) *Manager {
	m := &Manager{
		Dispatcher: dispatcher,
		Store:      store,
		Fulfiller:  fulfiller,
		Events:     publisher,
		Clock:      clk,
		Logger:     logger,
		registry:   dispatch.NewRegistry(),
	}
	m.registry.Register(models.JobTypeProcessOrder, m.ProcessJob)
	return m
}

// StartOrderProcessing runs the given number of workers and blocks until ctx
// is done and every in-flight job has finished.
func (m *Manager) StartOrderProcessing(ctx context.Context, workers int) error {
	if err := m.registry.Validate(); err != nil {
		return err
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			m.work(ctx, worker)
		}(i)
	}
	m.Logger.Infow("order workers started", "workers", workers)

	wg.Wait()
	m.Logger.Info("order workers stopped")
	return nil
}

func (m *Manager) work(ctx context.Context, worker int) {
	for {
		delivery, err := m.Dispatcher.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.Logger.Errorw("failed to take job", "worker", worker, "error", err)
			continue
		}

		// A job that was taken is finished even when shutdown begins.
		err = m.registry.Handle(context.WithoutCancel(ctx), delivery)
		if errors.Is(err, models.ErrUnknownJobType) {
			m.Logger.Errorw("discarding job of unknown type", "job_id", delivery.Job.ID, "type", delivery.Job.Type)
			_ = m.ack(ctx, delivery.Job)
			continue
		}
		if err != nil {
			m.Logger.Errorw("job failed", "worker", worker, "job_id", delivery.Job.ID,
				"order_id", delivery.Job.OrderID, "attempt", delivery.Job.Attempt, "error", err)
		}
	}
}

// ProcessJob executes one delivery of a process_order job. Every
// transition is a compare-and-set on the version read at the start; a lost
// race turns the delivery into a no-op acknowledgment.
func (m *Manager) ProcessJob(ctx context.Context, delivery models.Delivery) error {
	job := delivery.Job
	ctx, span := tracer.Start(ctx, "ProcessJob", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("order.id", job.OrderID),
		attribute.Int("job.attempt", job.Attempt),
	))
	defer span.End()

	logger := m.Logger.With("job_id", job.ID, "order_id", job.OrderID, "attempt", job.Attempt)

	if job.Attempt > m.Dispatcher.MaxAttempts() {
		return m.exhausted(ctx, delivery)
	}

	order, err := m.Store.GetOrder(ctx, job.OrderID)
	if errors.Is(err, models.ErrOrderNotFound) {
		logger.Warn("order of job not found, discarding job")
		return m.ack(ctx, job)
	}
	if err != nil {
		span.RecordError(err)
		// Nothing was learned about fulfillment; keep what the previous
		// attempt knew.
		return m.retry(ctx, job, err, delivery.Resumable)
	}

	switch order.Status {
	case models.OrderPending:
		if order.Failed() {
			logger.Infow("order already marked failed, skipping job")
			return m.ack(ctx, job)
		}
		order, err = m.Store.TransitionOrder(ctx, order.ID, order.Version,
			models.OrderPending, models.OrderProcessing, m.Clock.Now())
		if errors.Is(err, models.ErrConcurrentUpdateLost) {
			logger.Warnw("order changed concurrently, skipping job", "error", err)
			return m.ack(ctx, job)
		}
		if err != nil {
			span.RecordError(err)
			// If the claim went through anyway, another job may own the order.
			return m.retry(ctx, job, err, false)
		}
		m.publish(ctx, order)
	case models.OrderProcessing:
		// Fulfillment is only repeated when the previous attempt of this job
		// knew it had not succeeded; after a crash its outcome is unknown.
		if !delivery.Resumable || order.Failed() {
			logger.Warnw("order already processing, skipping redelivered job", "version", order.Version)
			return m.ack(ctx, job)
		}
		logger.Infow("resuming order after failed attempt", "last_error", delivery.LastError)
	default:
		logger.Infow("order already finished, skipping job", "status", order.Status)
		return m.ack(ctx, job)
	}

	if err := m.Fulfiller.Fulfill(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fulfillment failed")
		if job.Attempt >= m.Dispatcher.MaxAttempts() {
			return m.fail(ctx, job, order, err.Error())
		}
		return m.retry(ctx, job, fmt.Errorf("%w: %v", models.ErrProcessingFailed, err), true)
	}

	completed, err := m.Store.TransitionOrder(ctx, order.ID, order.Version,
		models.OrderProcessing, models.OrderCompleted, m.Clock.Now())
	if err != nil {
		logger.Warnw("anomaly: processed order could not be completed", "version", order.Version, "error", err)
	} else {
		m.publish(ctx, completed)
		logger.Infow("order completed", "version", completed.Version)
	}
	return m.ack(ctx, job)
}

// exhausted discards a job delivered past the attempt ceiling, annotating
// its order when it can still be read.
func (m *Manager) exhausted(ctx context.Context, delivery models.Delivery) error {
	job := delivery.Job
	order, err := m.Store.GetOrder(ctx, job.OrderID)
	if err != nil {
		m.Logger.Errorw("discarding exhausted job, order could not be read", "job_id", job.ID,
			"order_id", job.OrderID, "attempt", job.Attempt, "error", err)
		return m.ack(ctx, job)
	}

	reason := delivery.LastError
	if reason == "" {
		reason = interruptedReason
	}
	return m.fail(ctx, job, order, reason)
}

// fail records the terminal failure annotation and discards the job. The
// status of the order is left untouched.
func (m *Manager) fail(ctx context.Context, job models.Job, order models.Order, reason string) error {
	if order.Status.IsTerminal() || order.Failed() {
		return m.ack(ctx, job)
	}

	annotated, err := m.Store.AnnotateFailure(ctx, order.ID, order.Version,
		fmt.Sprintf("%s: %s", models.ErrProcessingFailed, reason), m.Clock.Now())
	switch {
	case errors.Is(err, models.ErrConcurrentUpdateLost):
		m.Logger.Warnw("order changed before failure could be recorded", "order_id", order.ID, "error", err)
	case err != nil:
		// Leave the job claimed; it comes back after its visibility deadline.
		return fmt.Errorf("failed to record order failure: %w", err)
	default:
		m.publish(ctx, annotated)
		m.Logger.Errorw("order processing failed permanently", "order_id", order.ID,
			"job_id", job.ID, "attempt", job.Attempt, "reason", annotated.FailureReason)
	}
	return m.ack(ctx, job)
}

// retry hands the job back. resumable tells the next attempt that
// fulfillment is known not to have succeeded for this job.
func (m *Manager) retry(ctx context.Context, job models.Job, cause error, resumable bool) error {
	failure := models.Failure{Reason: cause.Error(), Resumable: resumable}
	if err := m.Dispatcher.Retry(ctx, job, failure); err != nil {
		return m.ignoreRedelivered(job, err)
	}
	return cause
}

func (m *Manager) ack(ctx context.Context, job models.Job) error {
	if err := m.Dispatcher.Ack(ctx, job); err != nil {
		return m.ignoreRedelivered(job, err)
	}
	return nil
}

// ignoreRedelivered swallows ErrJobNotFound: the job was claimed again after
// this delivery overran its visibility deadline.
func (m *Manager) ignoreRedelivered(job models.Job, err error) error {
	if errors.Is(err, models.ErrJobNotFound) {
		m.Logger.Warnw("job was redelivered before this attempt finished", "job_id", job.ID, "attempt", job.Attempt)
		return nil
	}
	return err
}

func (m *Manager) publish(ctx context.Context, order models.Order) {
	if err := m.Events.Publish(ctx, models.NewOrderEvent(order)); err != nil {
		m.Logger.Warnw("failed to publish order event", "order_id", order.ID, "status", order.Status, "error", err)
	}
}
