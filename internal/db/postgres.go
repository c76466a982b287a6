package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/govalues/decimal"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jayjaytrn/order-management-system/config"
	_ "github.com/jayjaytrn/order-management-system/internal/db/migrations"
	"github.com/jayjaytrn/order-management-system/models"
	"github.com/pressly/goose/v3"
)

const migrationsDir = "./internal/db/migrations"

type Manager struct {
	db *sql.DB
}

func NewManager(ctx context.Context, cfg *config.Config) (*Manager, error) {
	db, err := sql.Open("pgx", cfg.DatabaseURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err = goose.SetDialect("postgres"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err = goose.UpContext(ctx, db, migrationsDir); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Manager{db: db}, nil
}

// DB exposes the pool for the job queue and the rotation ledger.
func (m *Manager) DB() *sql.DB {
	return m.db
}

const orderColumns = `id, user_id, product_name, amount, status, version, failure_reason, created_at, updated_at`

func (m *Manager) CreateOrder(ctx context.Context, order models.Order) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, product_name, amount, status, version, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, order.ID, order.UserID, order.ProductName, order.Amount.String(), order.Status, order.Version,
		order.FailureReason, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (m *Manager) GetOrder(ctx context.Context, id string) (models.Order, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidUUID(err) {
			return models.Order{}, models.ErrOrderNotFound
		}
		return models.Order{}, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func (m *Manager) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1`
	args := []any{filter.UserID}
	if filter.Status != "" {
		query += ` AND status = $2`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC`

	return m.queryOrders(ctx, query, args...)
}

func (m *Manager) TransitionOrder(ctx context.Context, id string, expectedVersion int64, from, to models.OrderStatus, at time.Time) (models.Order, error) {
	if !models.CanTransition(from, to) {
		return models.Order{}, models.ErrInvalidTransition
	}

	row := m.db.QueryRowContext(ctx, `
		UPDATE orders SET status = $4, version = version + 1, updated_at = $5
		WHERE id = $1 AND version = $2 AND status = $3
		RETURNING `+orderColumns,
		id, expectedVersion, from, to, at)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, m.lostUpdate(ctx, id)
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to transition order: %w", err)
	}
	return order, nil
}

func (m *Manager) AnnotateFailure(ctx context.Context, id string, expectedVersion int64, reason string, at time.Time) (models.Order, error) {
	row := m.db.QueryRowContext(ctx, `
		UPDATE orders SET failure_reason = $3, updated_at = $4
		WHERE id = $1 AND version = $2
		RETURNING `+orderColumns,
		id, expectedVersion, reason, at)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, m.lostUpdate(ctx, id)
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to annotate order: %w", err)
	}
	return order, nil
}

func (m *Manager) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Order, error) {
	return m.queryOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = $1 AND failure_reason = '' AND created_at < $2
		ORDER BY created_at
		LIMIT $3`,
		models.OrderPending, createdBefore, limit)
}

// lostUpdate tells a missing order apart from a version mismatch.
func (m *Manager) lostUpdate(ctx context.Context, id string) error {
	var exists bool
	err := m.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check order: %w", err)
	}
	if !exists {
		return models.ErrOrderNotFound
	}
	return models.ErrConcurrentUpdateLost
}

func (m *Manager) queryOrders(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]models.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}
	return orders, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (models.Order, error) {
	var (
		o      models.Order
		amount string
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.ProductName, &amount, &status, &o.Version,
		&o.FailureReason, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return models.Order{}, err
	}
	o.Amount, err = decimal.Parse(amount)
	if err != nil {
		return models.Order{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	o.Status = models.OrderStatus(status)
	return o, nil
}

func (m *Manager) PutUniqueUser(ctx context.Context, user models.User) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.Email, user.Name, user.Password, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrUserExists
		}
		return fmt.Errorf("failed to insert user data: %w", err)
	}

	return nil
}

func (m *Manager) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User

	err := m.db.QueryRowContext(ctx, `
		SELECT id, email, name, password, created_at
		FROM users
		WHERE email = $1
	`, email).Scan(&user.ID, &user.Email, &user.Name, &user.Password, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, models.ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("failed to get user data: %w", err)
	}

	return user, nil
}

func (m *Manager) Close() error {
	return m.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isInvalidUUID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}
