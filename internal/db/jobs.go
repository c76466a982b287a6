package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jayjaytrn/order-management-system/models"
)

// JobQueue keeps dispatched jobs in the jobs table. A claimed job stays in
// the table with its visible_at pushed to the visibility deadline; it is
// removed only by Ack.
type JobQueue struct {
	db    *sql.DB
	ready chan struct{}
}

func NewJobQueue(db *sql.DB) *JobQueue {
	return &JobQueue{
		db:    db,
		ready: make(chan struct{}, 1),
	}
}

func (q *JobQueue) Publish(ctx context.Context, job models.Job) error {
	payload, err := models.EncodeJob(job)
	if err != nil {
		return err
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, order_id, attempt, enqueued_at, visible_at, payload)
		VALUES ($1, $2, $3, $4, $5, $5, $6)
	`, job.ID, string(job.Type), job.OrderID, job.Attempt, job.EnqueuedAt, string(payload))
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// Receive claims the oldest visible job in one statement: the attempt of
// the row and of its message is incremented, the deadline set and the
// previous failure handed back.
func (q *JobQueue) Receive(ctx context.Context, now time.Time, visibility time.Duration) (models.Delivery, error) {
	var d models.Delivery
	var payload []byte
	err := q.db.QueryRowContext(ctx, `
		WITH next AS (
			SELECT id, last_error, resumable FROM jobs
			WHERE visible_at <= $1
			ORDER BY visible_at, enqueued_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE jobs j SET attempt = j.attempt + 1,
			payload = jsonb_set(j.payload, '{attempt}', to_jsonb(j.attempt + 1)),
			visible_at = $2, last_error = '', resumable = FALSE
		FROM next
		WHERE j.id = next.id
		RETURNING j.payload, j.visible_at, next.last_error, next.resumable
	`, now, now.Add(visibility)).Scan(&payload, &d.VisibleAt, &d.LastError, &d.Resumable)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Delivery{}, models.ErrNoJob
		}
		return models.Delivery{}, fmt.Errorf("failed to claim job: %w", err)
	}

	d.Job, err = models.DecodeJob(payload)
	if err != nil {
		return models.Delivery{}, err
	}
	return d, nil
}

// Ack removes the job, provided no later delivery has claimed it since.
func (q *JobQueue) Ack(ctx context.Context, job models.Job) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1 AND attempt = $2`, job.ID, job.Attempt)
	if err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	return expectOneRow(res)
}

func (q *JobQueue) Retry(ctx context.Context, job models.Job, failure models.Failure, visibleAt time.Time) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET visible_at = $3, last_error = $4, resumable = $5
		WHERE id = $1 AND attempt = $2
	`, job.ID, job.Attempt, visibleAt, failure.Reason, failure.Resumable)
	if err != nil {
		return fmt.Errorf("failed to retry job: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		return err
	}

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

func (q *JobQueue) Outstanding(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE order_id = $1)`, orderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check outstanding jobs: %w", err)
	}
	return exists, nil
}

// Ready fires after a publish from this process. Jobs published elsewhere
// are picked up by polling.
func (q *JobQueue) Ready() <-chan struct{} {
	return q.ready
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrJobNotFound
	}
	return nil
}
