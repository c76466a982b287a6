package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jayjaytrn/order-management-system/internal/auth"
	"github.com/jayjaytrn/order-management-system/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockLedger(t *testing.T) (*Ledger, sqlmock.Sqlmock) {
	t.Helper()
	mockdb, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockdb.Close() })
	return NewLedger(mockdb), mock
}

func TestLedger_Start(t *testing.T) {
	l, mock := newMockLedger(t)
	now := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO refresh_chains`).
		WithArgs("chain-1", "user-1", "rot-1", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := l.Start(context.Background(), auth.Chain{ID: "chain-1", UserID: "user-1", Rotation: "rot-1", CreatedAt: now})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Advance(t *testing.T) {
	now := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("current rotation advances", func(t *testing.T) {
		l, mock := newMockLedger(t)
		mock.ExpectExec(`UPDATE refresh_chains SET current_rotation = \$3`).
			WithArgs("chain-1", "rot-1", "rot-2", now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, l.Advance(ctx, "chain-1", "rot-1", "rot-2", now))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale rotation revokes the chain", func(t *testing.T) {
		l, mock := newMockLedger(t)
		mock.ExpectExec(`UPDATE refresh_chains SET current_rotation = \$3`).
			WithArgs("chain-1", "rot-1", "rot-3", now).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`UPDATE refresh_chains SET revoked = TRUE`).
			WithArgs("chain-1", now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := l.Advance(ctx, "chain-1", "rot-1", "rot-3", now)
		assert.ErrorIs(t, err, models.ErrReplayedCredential)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown chain", func(t *testing.T) {
		l, mock := newMockLedger(t)
		mock.ExpectExec(`UPDATE refresh_chains SET current_rotation`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`UPDATE refresh_chains SET revoked = TRUE`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := l.Advance(ctx, "chain-9", "rot-1", "rot-2", now)
		assert.ErrorIs(t, err, models.ErrMalformedCredential)
	})
}

func TestLedger_IsRevoked(t *testing.T) {
	ctx := context.Background()

	t.Run("revoked", func(t *testing.T) {
		l, mock := newMockLedger(t)
		mock.ExpectQuery(`SELECT revoked FROM refresh_chains WHERE chain_id = \$1`).
			WithArgs("chain-1").
			WillReturnRows(sqlmock.NewRows([]string{"revoked"}).AddRow(true))

		revoked, err := l.IsRevoked(ctx, "chain-1")
		require.NoError(t, err)
		assert.True(t, revoked)
	})

	t.Run("unknown chain is live", func(t *testing.T) {
		l, mock := newMockLedger(t)
		mock.ExpectQuery(`SELECT revoked FROM refresh_chains`).
			WillReturnRows(sqlmock.NewRows([]string{"revoked"}))

		revoked, err := l.IsRevoked(ctx, "chain-2")
		require.NoError(t, err)
		assert.False(t, revoked)
	})
}

func TestLedger_Revoke(t *testing.T) {
	l, mock := newMockLedger(t)
	now := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE refresh_chains SET revoked = TRUE, updated_at = \$2 WHERE chain_id = \$1`).
		WithArgs("chain-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, l.Revoke(context.Background(), "chain-1", now))
	assert.NoError(t, mock.ExpectationsWereMet())
}
