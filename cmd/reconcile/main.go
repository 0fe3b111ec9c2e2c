package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"bookstore-payment/internal/config"
	"bookstore-payment/internal/database"
	"bookstore-payment/internal/infrastructure/payment"
	"bookstore-payment/internal/logger"
	"bookstore-payment/internal/repo"
	"bookstore-payment/internal/service"
	"bookstore-payment/internal/worker"

	"go.uber.org/zap"
)

func main() {
	olderThan := flag.Duration("older-than", 15*time.Minute, "only check payments untouched for at least this long")
	batch := flag.Int("batch", 100, "maximum number of orders to check")
	flag.Parse()

	cfg := config.MustLoad()
	l, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.DB.URL())
	if err != nil {
		l.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	paymentCfg := cfg.PaymentConfig()
	orderRepo := repo.NewOrderRepo(db)
	reconciliation := service.NewReconciliationService(
		repo.NewTxRunner(db),
		orderRepo,
		repo.NewPaymentEventRepo(db),
		paymentCfg,
		payment.NewStatusClient(paymentCfg.StatusURL, cfg.Gateway.StatusTimeout, l),
		cfg.Gateway.CallbackBaseURL,
		nil,
		l,
	)

	w := worker.NewReconciliationWorker(orderRepo, reconciliation, *olderThan, *batch, l)
	result, err := w.RunOnce(ctx)
	if err != nil {
		l.Fatal("reconciliation sweep failed", zap.Error(err))
	}
	l.Info(
		"reconciliation sweep finished",
		zap.Int("checked", result.Checked),
		zap.Int("settled", result.Settled),
		zap.Int("failed", result.Failed),
		zap.Int("conflicts", result.Conflict),
	)
}
