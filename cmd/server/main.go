package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"bookstore-payment/internal/config"
	"bookstore-payment/internal/database"
	"bookstore-payment/internal/infrastructure/payment"
	"bookstore-payment/internal/logger"
	"bookstore-payment/internal/metrics"
	"bookstore-payment/internal/repo"
	"bookstore-payment/internal/service"
	transport "bookstore-payment/internal/transport/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
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

	if err := database.Migrate(db); err != nil {
		l.Fatal("failed to migrate database", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	paymentCfg := cfg.PaymentConfig()
	txRunner := repo.NewTxRunner(db)
	orderRepo := repo.NewOrderRepo(db)
	bookRepo := repo.NewBookRepo(db)
	eventRepo := repo.NewPaymentEventRepo(db)
	gateway := payment.NewStatusClient(paymentCfg.StatusURL, cfg.Gateway.StatusTimeout, l)

	orderService := service.NewOrderService(txRunner, orderRepo, bookRepo, l)
	reconciliationService := service.NewReconciliationService(
		txRunner,
		orderRepo,
		eventRepo,
		paymentCfg,
		gateway,
		cfg.Gateway.CallbackBaseURL,
		metrics.NewPaymentMetrics(reg),
		l,
	)

	if cfg.Env == "prod" || cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := transport.NewRouter(transport.Deps{
		Orders:         orderService,
		Reconciliation: reconciliationService,
		DB:             database.New(db),
		JWTSecret:      cfg.Auth.JWTSecret,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		ServerMetrics:  metrics.NewServerMetrics(reg),
		Gatherer:       reg,
		Logger:         l,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		l.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Port), zap.String("gateway_env", cfg.Gateway.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	l.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("graceful shutdown failed", zap.Error(err))
	}
}
