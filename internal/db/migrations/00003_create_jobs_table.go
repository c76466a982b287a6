package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(UpJobsTable, DownJobsTable)
}

func UpJobsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `CREATE TABLE jobs
(
    id UUID PRIMARY KEY,
    type VARCHAR(64) NOT NULL,
    order_id UUID NOT NULL,
    attempt INT NOT NULL DEFAULT 0,
    enqueued_at TIMESTAMPTZ NOT NULL,
    visible_at TIMESTAMPTZ NOT NULL,
    payload JSONB NOT NULL,
    last_error TEXT NOT NULL DEFAULT '',
    resumable BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX ix_jobs_visible_at ON jobs (visible_at, enqueued_at);
CREATE INDEX ix_jobs_order_id ON jobs (order_id);`)
	return err
}

func DownJobsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "DROP TABLE jobs;")
	return err
}
