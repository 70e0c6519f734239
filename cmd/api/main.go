package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/safar/go-shop-api/internal/api"
	"github.com/safar/go-shop-api/internal/checkout"
	"github.com/safar/go-shop-api/internal/config"
	"github.com/safar/go-shop-api/internal/database"
	"github.com/safar/go-shop-api/internal/logging"
	"github.com/safar/go-shop-api/internal/payment"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Create logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("connected to database")

	if err := run(cfg, db, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, db *sql.DB, logger *zap.Logger) error {
	gateway := newGateway(cfg.Payment, logger)

	svc := checkout.NewService(db, gateway, logger, checkout.Config{
		Currency: cfg.Payment.Currency,
		ClaimTTL: cfg.Checkout.ClaimTTL,
	})

	handler := api.NewHandler(db, svc, logger)
	router := api.NewRouter(handler, cfg.Server.RequestTimeout)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(router, "shop-api"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return err
	}

	logger.Info("server exited")
	return nil
}

func newGateway(cfg config.PaymentConfig, logger *zap.Logger) payment.Gateway {
	var gateway payment.Gateway
	switch cfg.Provider {
	case "fake":
		logger.Warn("using in-memory payment gateway, cards are never charged")
		gateway = payment.NewFakeGateway()
	default:
		gateway = payment.NewStripeGateway(cfg.SecretKey, cfg.Timeout)
	}

	return payment.NewBreakerGateway(gateway, payment.BreakerSettings{
		Name:        cfg.Provider,
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
	}, logger)
}
