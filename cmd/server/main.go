package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/concurrent-ledger/internal/breaker"
	"github.com/sheikh-saqib/concurrent-ledger/internal/config"
	"github.com/sheikh-saqib/concurrent-ledger/internal/events/kafka"
	"github.com/sheikh-saqib/concurrent-ledger/internal/httpapi"
	"github.com/sheikh-saqib/concurrent-ledger/internal/ledger"
	"github.com/sheikh-saqib/concurrent-ledger/internal/logging"
	"github.com/sheikh-saqib/concurrent-ledger/internal/metrics"
	"github.com/sheikh-saqib/concurrent-ledger/internal/ratelimit"
	"github.com/sheikh-saqib/concurrent-ledger/internal/storage/memory"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, _, err := logging.New(logging.Config{
		Environment: logging.Environment(cfg.Environment),
		Level:       cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []ledger.Option{
		ledger.WithLockTimeout(cfg.LockTimeout),
		ledger.WithLogger(logger.Named("ledger")),
	}
	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("close kafka publisher", zap.Error(err))
			}
		}()
		opts = append(opts, ledger.WithPublisher(publisher))
		logger.Info("publishing transfer events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	ledgerService := ledger.NewLedger(opts...)
	accounts := memory.NewAccountStore(ledger.WithAccountLockTimeout(cfg.LockTimeout))

	// Outermost first: rate limit, then breaker, then metrics around the ledger.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	measured, err := metrics.NewTransferer(ledgerService, reg)
	if err != nil {
		return err
	}
	var transfers ledger.Transferer = breaker.New(measured, breaker.Config{
		Name:                "ledger",
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             cfg.BreakerTimeout,
		ConsecutiveFailures: cfg.BreakerFailures,
	}, logger.Named("breaker"))
	if limiter := ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.RateLimitIdleTTL); limiter != nil {
		transfers = ratelimit.NewTransferer(transfers, limiter)
	}

	handlers := httpapi.NewHandlers(accounts, transfers, ledgerService, logger.Named("http"))
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.Router(handlers, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", cfg.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
