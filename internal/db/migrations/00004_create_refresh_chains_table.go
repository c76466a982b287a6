package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(UpRefreshChainsTable, DownRefreshChainsTable)
}

func UpRefreshChainsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `CREATE TABLE refresh_chains
(
    chain_id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users (id),
    current_rotation UUID NOT NULL,
    revoked BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX ix_refresh_chains_user ON refresh_chains (user_id);`)
	return err
}

func DownRefreshChainsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "DROP TABLE refresh_chains;")
	return err
}
