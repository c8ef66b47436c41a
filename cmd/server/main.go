package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"orderflow/cmd/server/config"
	"orderflow/internal/audit"
	"orderflow/internal/httpapi"
	"orderflow/internal/observability"
	"orderflow/internal/orders"
	"orderflow/internal/payments"
	"orderflow/internal/realtime"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	st := buildStores(ctx, logger)
	defer st.cleanup()

	customerCache, cacheTTL, cacheCleanup, err := buildCache(ctx, logger)
	if err != nil {
		return err
	}
	defer cacheCleanup()

	directory, inventory, err := buildCollaborators(logger, customerCache, cacheTTL)
	if err != nil {
		return err
	}

	msg, err := buildMessaging(logger)
	if err != nil {
		return err
	}
	defer msg.cleanup()

	paymentCfg, err := config.LoadPayment()
	if err != nil {
		return err
	}
	gateway := payments.NewService(st.payments, msg.publisher, payments.Config{
		Ceiling:     paymentCfg.Ceiling,
		Floor:       paymentCfg.Floor,
		MinDelay:    paymentCfg.MinDelay,
		MaxDelay:    paymentCfg.MaxDelay,
		SuccessRate: paymentCfg.SuccessRate,
	}, nil, logger)

	orderService := orders.NewService(directory, inventory, gateway, st.orders, orders.ServiceConfig{}, logger)

	feed := realtime.NewFeed(logger)
	go feed.Run(ctx)
	orderService.OnStatusChange(feed.NotifyStatusChange)
	orderService.OnStatusChange(func(o orders.Order, from orders.Status) {
		switch o.Status {
		case orders.StatusConfirmed:
			metrics.AddOrderConfirmed()
			metrics.AddPaymentApproved()
		case orders.StatusCancelled:
			metrics.AddOrderCancelled()
			// A pending order only cancels when its charge was declined.
			if from == orders.StatusPending {
				metrics.AddPaymentDeclined()
			}
		}
	})

	if msg.queue != nil {
		consumer := audit.NewConsumer(msg.queue, st.audit, logger, metrics)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("audit consumer stopped", "error", err)
			}
		}()
	}

	httpCfg, err := config.LoadHTTP()
	if err != nil {
		return err
	}
	handler := httpapi.NewHandler(orderService, logger, metrics)
	srv := &http.Server{
		Addr:    httpCfg.Addr,
		Handler: httpapi.NewRouter(handler, feed, logger, metrics),
	}

	obsSrv, err := startObservabilityServer(logger, metrics)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", httpCfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		metrics.MarkShutdown(0)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpCfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
		if obsSrv != nil {
			obsCtx, obsCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer obsCancel()
			_ = obsSrv.Shutdown(obsCtx)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startObservabilityServer serves the metrics snapshot on its own listener
// when OBS_ADDR is set.
func startObservabilityServer(logger *slog.Logger, metrics *observability.Metrics) (*http.Server, error) {
	if os.Getenv("OBS_ADDR") == "" {
		return nil, nil
	}
	cfg, err := config.LoadObservability()
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(metrics))

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("observability server error", "error", err)
		}
	}()

	return srv, nil
}
