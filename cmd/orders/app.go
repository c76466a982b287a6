package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jayjaytrn/order-management-system/config"
	"github.com/jayjaytrn/order-management-system/internal/auth"
	"github.com/jayjaytrn/order-management-system/internal/clock"
	"github.com/jayjaytrn/order-management-system/internal/db"
	"github.com/jayjaytrn/order-management-system/internal/dispatch"
	"github.com/jayjaytrn/order-management-system/internal/events"
	"github.com/jayjaytrn/order-management-system/internal/handlers"
	"github.com/jayjaytrn/order-management-system/internal/middleware"
	"github.com/jayjaytrn/order-management-system/internal/orders"
	"github.com/jayjaytrn/order-management-system/internal/processing"
	"github.com/jayjaytrn/order-management-system/internal/ratelimit"
	"go.uber.org/zap"
)

const simulatedFulfillmentDelay = 50 * time.Millisecond

// app holds every long-lived component of the process. Each is built once
// here and passed explicitly to the components that need it.
type app struct {
	cfg    *config.Config
	clock  clock.Clock
	logger *zap.SugaredLogger

	database   db.Database
	queue      dispatch.Queue
	publisher  events.Publisher
	limiter    *ratelimit.Limiter
	tokens     *auth.TokenService
	dispatcher *dispatch.Dispatcher
	workers    *processing.Manager
	reconciler *dispatch.Reconciler
	handler    *handlers.Handler
}

func newApp(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *zap.SugaredLogger) (*app, error) {
	a := &app{cfg: cfg, clock: clk, logger: logger}

	var ledger auth.Ledger
	if cfg.DatabaseURI != "" {
		manager, err := db.NewManager(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.database = manager
		a.queue = db.NewJobQueue(manager.DB())
		ledger = db.NewLedger(manager.DB())
		logger.Info("using PostgreSQL storage")
	} else {
		a.database = db.NewMemoryStore()
		a.queue = dispatch.NewMemoryQueue()
		ledger = auth.NewMemoryLedger()
		logger.Warn("DATABASE_URI is not set, using in-memory storage")
	}

	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			_ = a.database.Close()
			return nil, err
		}
		if err := publisher.EnsureTopic(ctx, 1, 1); err != nil {
			logger.Warnw("failed to ensure kafka topic", "topic", cfg.KafkaTopic, "error", err)
		}
		a.publisher = publisher
	} else {
		a.publisher = events.NopPublisher{}
	}

	var fulfiller processing.Fulfiller = processing.SimulatedFulfiller{Delay: simulatedFulfillmentDelay}
	if cfg.FulfillmentSystemAddress != "" {
		fulfiller = processing.NewHTTPFulfiller(cfg.FulfillmentSystemAddress, cfg.FulfillmentTimeout, logger)
	}

	a.limiter = ratelimit.New(cfg.RateLimits)
	a.tokens = auth.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, ledger, clk)
	a.dispatcher = dispatch.New(a.queue, clk, dispatch.Options{
		Visibility:   cfg.VisibilityTimeout,
		Backoff:      cfg.RetryBackoff,
		MaxAttempts:  cfg.MaxAttempts,
		PollInterval: cfg.PollInterval,
	}, logger)
	a.workers = processing.NewManager(a.dispatcher, a.database, fulfiller, a.publisher, clk, logger)
	a.reconciler = dispatch.NewReconciler(a.database, a.dispatcher, clk, cfg.ReconcileGrace, logger)
	a.handler = &handlers.Handler{
		Auth:   auth.NewAuthenticator(a.database, a.tokens, clk, logger),
		Tokens: a.tokens,
		Orders: orders.NewService(a.database, a.dispatcher, a.publisher, clk, logger),
		Logger: logger,
	}
	return a, nil
}

// startBackground launches the worker pool, the reconciler and the limiter
// sweep. The returned function waits for all of them after ctx is done.
func (a *app) startBackground(ctx context.Context) func() {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.workers.StartOrderProcessing(ctx, a.cfg.Workers); err != nil {
			a.logger.Fatalw("failed to start order workers", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.reconciler.Run(ctx, a.cfg.ReconcileInterval)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.sweepRateLimits(ctx, time.Minute)
	}()

	return wg.Wait
}

func (a *app) sweepRateLimits(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.limiter.Sweep(a.clock.Now()); n > 0 {
				a.logger.Debugw("evicted rate limit windows", "count", n)
			}
		}
	}
}

func (a *app) Close() {
	a.publisher.Close()
	if err := a.database.Close(); err != nil {
		a.logger.Errorw("failed to close database", "error", err)
	}
}

func (a *app) router() *chi.Mux {
	h := a.handler
	authenticate := middleware.Authenticate(a.tokens)
	limit := func(endpoint string) middleware.Middleware {
		return middleware.RateLimit(a.limiter, a.clock, endpoint)
	}

	// Public endpoints are limited per client address.
	public := func(handler http.HandlerFunc, endpoint string) http.Handler {
		return middleware.Conveyor(handler, h.Logger,
			middleware.RequireJSON,
			middleware.WriteWithCompression,
			middleware.ReadWithCompression,
			limit(endpoint),
		)
	}
	// Protected endpoints pass the token gate first, then the user's ceiling.
	protected := func(handler http.HandlerFunc, endpoint string, body bool) http.Handler {
		chain := []middleware.Middleware{
			middleware.WriteWithCompression,
			middleware.ReadWithCompression,
			limit(endpoint),
			authenticate,
		}
		if body {
			chain = append([]middleware.Middleware{middleware.RequireJSON}, chain...)
		}
		return middleware.Conveyor(handler, h.Logger, chain...)
	}

	r := chi.NewRouter()
	r.Get(`/health`, h.Health)

	r.Method(http.MethodPost, `/api/auth/register`, public(h.Register, config.EndpointRegister))
	r.Method(http.MethodPost, `/api/auth/login`, public(h.Login, config.EndpointLogin))
	r.Method(http.MethodPost, `/api/auth/refresh`, public(h.Refresh, config.EndpointRefresh))
	r.Method(http.MethodPost, `/api/auth/logout`, public(h.Logout, config.EndpointLogout))

	r.Method(http.MethodPost, `/api/orders`, protected(h.CreateOrder, config.EndpointOrdersCreate, true))
	r.Method(http.MethodGet, `/api/orders`, protected(h.ListOrders, config.EndpointOrdersList, false))
	r.Method(http.MethodGet, `/api/orders/{id}`, protected(h.GetOrder, config.EndpointOrdersGet, false))
	r.Method(http.MethodPost, `/api/orders/{id}/cancel`, protected(h.CancelOrder, config.EndpointOrdersCancel, false))

	return r
}
