package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"bookstore-payment/internal/config"
	"bookstore-payment/internal/database"
	"bookstore-payment/internal/domain"
	"bookstore-payment/internal/infrastructure/payment"
	"bookstore-payment/internal/logger"
	"bookstore-payment/internal/repo"
	"bookstore-payment/internal/service"
	"bookstore-payment/internal/worker"

	"go.uber.org/zap"
)

// Runs orders through the full gateway round trip against an in-process
// fake gateway, then sweeps the ones whose callback got lost.
func main() {
	orders := flag.Int("orders", 20, "number of orders to simulate")
	flag.Parse()

	cfg := config.MustLoad()
	l, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer l.Sync()

	ctx := context.Background()
	db, err := database.NewPostgres(cfg.DB.URL())
	if err != nil {
		l.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		l.Fatal("failed to migrate database", zap.Error(err))
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO books (id, title, price) VALUES
			('sim-book-1', 'The Go Programming Language', 750),
			('sim-book-2', 'Designing Data-Intensive Applications', 250)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		l.Fatal("failed to seed books", zap.Error(err))
	}

	paymentCfg := cfg.PaymentConfig()
	gateway := payment.NewFakeGateway(paymentCfg)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		l.Fatal("failed to listen for fake gateway", zap.Error(err))
	}
	defer ln.Close()
	go func() {
		if err := http.Serve(ln, gateway); err != nil && !errors.Is(err, net.ErrClosed) {
			l.Error("fake gateway stopped", zap.Error(err))
		}
	}()
	paymentCfg.StatusURL = "http://" + ln.Addr().String() + "/status"

	txRunner := repo.NewTxRunner(db)
	orderRepo := repo.NewOrderRepo(db)
	orderService := service.NewOrderService(txRunner, orderRepo, repo.NewBookRepo(db), l)
	reconciliation := service.NewReconciliationService(
		txRunner,
		orderRepo,
		repo.NewPaymentEventRepo(db),
		paymentCfg,
		payment.NewStatusClient(paymentCfg.StatusURL, time.Second, l),
		cfg.Gateway.CallbackBaseURL,
		nil,
		l,
	)

	customer := domain.Principal{UserID: "sim", Email: "reader@example.com"}

	fmt.Printf("--- STARTING SIMULATION (%d ORDERS) ---\n", *orders)
	for i := 0; i < *orders; i++ {
		order, err := orderService.CreateOrder(ctx, customer, service.CreateOrderInput{
			Name:          "Sim Reader",
			Phone:         "9800000000",
			Address:       "Kathmandu",
			PaymentMethod: domain.PaymentExternalGateway,
			Items: []service.OrderItemInput{
				{BookID: "sim-book-1", Quantity: 1},
				{BookID: "sim-book-2", Quantity: 1 + i%2},
			},
		})
		if err != nil {
			fmt.Printf("[%d] create failed: %v\n", i+1, err)
			continue
		}

		req, err := reconciliation.Initiate(ctx, customer, order.ID.String())
		if err != nil {
			fmt.Printf("[%d] initiate failed: %v\n", i+1, err)
			continue
		}

		fmt.Printf("[%d] order %s total %s ... ", i+1, order.ID, req.TotalAmount)
		payload, err := gateway.Submit(req)
		switch {
		case err != nil:
			fmt.Printf("GATEWAY ERROR: %v\n", err)
			continue
		case payload == nil:
			fmt.Println("CALLBACK LOST")
		default:
			if _, err := reconciliation.HandleCallback(ctx, payload); err != nil {
				fmt.Printf("CALLBACK REJECTED: %v\n", err)
			} else {
				fmt.Printf("CALLBACK %v\n", payload["status"])
			}
		}

		fresh, err := orderRepo.FindById(ctx, order.ID)
		if err != nil || fresh == nil {
			fmt.Printf("    -> reload failed: %v\n", err)
			continue
		}
		fmt.Printf("    -> DB status: %s, payment: %s\n", fresh.Status, paymentStatusOf(fresh))
	}

	fmt.Println("--- SWEEPING UNSETTLED PAYMENTS ---")
	sweep := worker.NewReconciliationWorker(orderRepo, reconciliation, 0, *orders, l)
	result, err := sweep.RunOnce(ctx)
	if err != nil {
		l.Fatal("reconciliation sweep failed", zap.Error(err))
	}
	fmt.Printf("checked=%d settled=%d failed=%d conflicts=%d\n", result.Checked, result.Settled, result.Failed, result.Conflict)
}

func paymentStatusOf(o *domain.Order) domain.PaymentStatus {
	if o.PaymentReference == nil {
		return "none"
	}
	return o.PaymentReference.Status
}
