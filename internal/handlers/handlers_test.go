package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jayjaytrn/order-management-system/internal/auth"
	"github.com/jayjaytrn/order-management-system/internal/clock"
	"github.com/jayjaytrn/order-management-system/internal/db"
	"github.com/jayjaytrn/order-management-system/internal/dispatch"
	"github.com/jayjaytrn/order-management-system/internal/events"
	"github.com/jayjaytrn/order-management-system/internal/middleware"
	"github.com/jayjaytrn/order-management-system/internal/orders"
	"github.com/jayjaytrn/order-management-system/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	handler *Handler
	store   *db.MemoryStore
	queue   *dispatch.MemoryQueue
	router  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop().Sugar()
	clk := clock.NewManual(time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC))
	store := db.NewMemoryStore()
	queue := dispatch.NewMemoryQueue()
	tokens := auth.NewTokenService("secret", 15*time.Minute, time.Hour, auth.NewMemoryLedger(), clk)
	dispatcher := dispatch.New(queue, clk, dispatch.Options{Visibility: time.Minute, MaxAttempts: 3}, logger)

	h := &Handler{
		Auth:   auth.NewAuthenticator(store, tokens, clk, logger),
		Tokens: tokens,
		Orders: orders.NewService(store, dispatcher, events.NopPublisher{}, clk, logger),
		Logger: logger,
	}

	// The owner header stands in for the authentication gate.
	asOwner := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			next(w, r.WithContext(middleware.WithOwner(r.Context(), r.Header.Get("X-Test-Owner"))))
		}
	}
	r := chi.NewRouter()
	r.Post("/api/auth/register", h.Register)
	r.Post("/api/auth/login", h.Login)
	r.Post("/api/auth/refresh", h.Refresh)
	r.Post("/api/auth/logout", h.Logout)
	r.Post("/api/orders", asOwner(h.CreateOrder))
	r.Get("/api/orders", asOwner(h.ListOrders))
	r.Get("/api/orders/{id}", asOwner(h.GetOrder))
	r.Post("/api/orders/{id}/cancel", asOwner(h.CancelOrder))

	return &testEnv{handler: h, store: store, queue: queue, router: r}
}

func (e *testEnv) do(t *testing.T, method, path, owner string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if owner != "" {
		req.Header.Set("X-Test-Owner", owner)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	return v
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	reg := models.RegisterRequest{Name: "Ada", Email: "Ada@Example.com", Password: "password123"}

	rr := env.do(t, http.MethodPost, "/api/auth/register", "", reg)
	require.Equal(t, http.StatusCreated, rr.Code)
	user := decode[models.UserResponse](t, rr)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.NotEmpty(t, user.ID)

	rr = env.do(t, http.MethodPost, "/api/auth/register", "", reg)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "user_exists", decode[models.ErrorResponse](t, rr).Code)

	rr = env.do(t, http.MethodPost, "/api/auth/register", "", models.RegisterRequest{Name: "Eve", Email: "eve", Password: "x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/auth/login", "", models.Credentials{Email: "ada@example.com", Password: "password123"})
	require.Equal(t, http.StatusOK, rr.Code)
	pair := decode[models.TokenPair](t, rr)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	rr = env.do(t, http.MethodPost, "/api/auth/login", "", models.Credentials{Email: "ada@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "invalid_credentials", decode[models.ErrorResponse](t, rr).Code)
}

func TestRefresh(t *testing.T) {
	env := newTestEnv(t)
	pair, err := env.handler.Tokens.Issue(context.Background(), "user-1")
	require.NoError(t, err)

	rr := env.do(t, http.MethodPost, "/api/auth/refresh", "", models.RefreshRequest{RefreshToken: pair.RefreshToken})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/auth/refresh", "", models.RefreshRequest{RefreshToken: pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "replayed_credential", decode[models.ErrorResponse](t, rr).Code)

	rr = env.do(t, http.MethodPost, "/api/auth/refresh", "", models.RefreshRequest{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	pair, err := env.handler.Tokens.Issue(context.Background(), "user-1")
	require.NoError(t, err)

	rr := env.do(t, http.MethodPost, "/api/auth/logout", "", models.RefreshRequest{RefreshToken: pair.RefreshToken})
	require.Equal(t, http.StatusNoContent, rr.Code)

	_, err = env.handler.Tokens.Validate(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, models.ErrRevokedCredential)

	rr = env.do(t, http.MethodPost, "/api/auth/refresh", "", models.RefreshRequest{RefreshToken: pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/auth/logout", "", models.RefreshRequest{RefreshToken: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "malformed_credential", decode[models.ErrorResponse](t, rr).Code)
}

func TestOrders(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/orders", "user-1", map[string]any{"product_name": "Book", "amount": 99.0})
	require.Equal(t, http.StatusCreated, rr.Code)
	created := decode[models.OrderResponse](t, rr)
	assert.Equal(t, models.OrderPending, created.Status)
	assert.Equal(t, int64(0), created.Version)
	assert.Equal(t, "user-1", created.UserID)
	require.NotNil(t, created.Dispatched)
	assert.True(t, *created.Dispatched)
	assert.Equal(t, 1, env.queue.Len())

	rr = env.do(t, http.MethodGet, "/api/orders/"+created.ID, "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, created.ID, decode[models.OrderResponse](t, rr).ID)

	rr = env.do(t, http.MethodGet, "/api/orders/"+created.ID, "user-2", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/orders?status=PENDING", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]models.OrderResponse](t, rr), 1)

	rr = env.do(t, http.MethodGet, "/api/orders?status=bogus", "user-1", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/orders/"+created.ID+"/cancel", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	cancelled := decode[models.OrderResponse](t, rr)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)
	assert.Equal(t, int64(1), cancelled.Version)

	rr = env.do(t, http.MethodPost, "/api/orders/"+created.ID+"/cancel", "user-1", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "invalid_transition", decode[models.ErrorResponse](t, rr).Code)
}

func TestCreateOrder_Invalid(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{name: "zero amount", body: map[string]any{"product_name": "Book", "amount": 0}, want: http.StatusUnprocessableEntity},
		{name: "negative amount", body: map[string]any{"product_name": "Book", "amount": -5}, want: http.StatusUnprocessableEntity},
		{name: "missing amount", body: map[string]any{"product_name": "Book"}, want: http.StatusUnprocessableEntity},
		{name: "empty product", body: map[string]any{"product_name": " ", "amount": 1}, want: http.StatusUnprocessableEntity},
		{name: "amount is text", body: map[string]any{"product_name": "Book", "amount": "lots"}, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/orders", "user-1", tt.body)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
	assert.Equal(t, 0, env.queue.Len())
}

func TestCreateOrder_DispatchUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.queue.Close()

	rr := env.do(t, http.MethodPost, "/api/orders", "user-1", map[string]any{"product_name": "Book", "amount": 10})
	require.Equal(t, http.StatusAccepted, rr.Code)
	created := decode[models.OrderResponse](t, rr)
	require.NotNil(t, created.Dispatched)
	assert.False(t, *created.Dispatched)

	stored, err := env.store.GetOrder(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, stored.Status)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{models.ErrExpiredCredential, http.StatusUnauthorized},
		{models.ErrMalformedCredential, http.StatusUnauthorized},
		{models.ErrReplayedCredential, http.StatusUnauthorized},
		{models.ErrRateLimitExceeded, http.StatusTooManyRequests},
		{models.ErrInvalidTransition, http.StatusConflict},
		{models.ErrChannelUnavailable, http.StatusServiceUnavailable},
		{models.ErrOrderNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := statusOf(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}
