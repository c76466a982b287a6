package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jayjaytrn/order-management-system/config"
	"github.com/jayjaytrn/order-management-system/internal/clock"
	"github.com/jayjaytrn/order-management-system/internal/tracing"
	"github.com/jayjaytrn/order-management-system/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.GetConfig()

	logger := logging.GetSugaredLogger(cfg.LogLevel, cfg.LogFormat)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ExporterURL: cfg.OTLPEndpoint,
		SampleRate:  cfg.TraceSampleRate,
		ServiceName: "orders",
	})
	if err != nil {
		logger.Fatalw("failed to initialize tracing", "error", err)
	}

	a, err := newApp(ctx, cfg, clock.NewSystem(), logger)
	if err != nil {
		logger.Fatalw("failed to initialize", "error", err)
	}
	defer a.Close()

	wait := a.startBackground(ctx)

	srv := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           tracing.WrapHTTPHandler(a.router(), "orders-api"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infow("server started", "address", cfg.RunAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("failed to shut down server", "error", err)
	}
	wait()

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Errorw("failed to flush traces", "error", err)
	}
}
