package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jayjaytrn/order-management-system/internal/auth"
	"github.com/jayjaytrn/order-management-system/models"
)

// Ledger is the refresh token rotation ledger backed by refresh_chains.
type Ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) Start(ctx context.Context, chain auth.Chain) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO refresh_chains (chain_id, user_id, current_rotation, revoked, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, $4, $4)
	`, chain.ID, chain.UserID, chain.Rotation, chain.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert refresh chain: %w", err)
	}
	return nil
}

func (l *Ledger) Advance(ctx context.Context, chainID, presented, next string, now time.Time) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE refresh_chains SET current_rotation = $3, updated_at = $4
		WHERE chain_id = $1 AND current_rotation = $2 AND NOT revoked
	`, chainID, presented, next, now)
	if err != nil {
		return fmt.Errorf("failed to advance refresh chain: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	res, err = l.db.ExecContext(ctx, `
		UPDATE refresh_chains SET revoked = TRUE, updated_at = $2 WHERE chain_id = $1
	`, chainID, now)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh chain: %w", err)
	}
	n, err = res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrMalformedCredential
	}
	return models.ErrReplayedCredential
}

func (l *Ledger) IsRevoked(ctx context.Context, chainID string) (bool, error) {
	var revoked bool
	err := l.db.QueryRowContext(ctx, `SELECT revoked FROM refresh_chains WHERE chain_id = $1`, chainID).Scan(&revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read refresh chain: %w", err)
	}
	return revoked, nil
}

func (l *Ledger) Revoke(ctx context.Context, chainID string, now time.Time) error {
	_, err := l.db.ExecContext(ctx, `
		UPDATE refresh_chains SET revoked = TRUE, updated_at = $2 WHERE chain_id = $1
	`, chainID, now)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh chain: %w", err)
	}
	return nil
}
