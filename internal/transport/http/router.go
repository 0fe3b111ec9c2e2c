package http

import (
	"time"

	"bookstore-payment/internal/database"
	"bookstore-payment/internal/metrics"
	"bookstore-payment/internal/service"
	"bookstore-payment/internal/transport/http/handler"
	"bookstore-payment/internal/transport/http/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type Deps struct {
	Orders         service.OrderService
	Reconciliation service.ReconciliationService
	DB             database.Service
	JWTSecret      string
	CORSOrigins    []string
	ServerMetrics  *metrics.ServerMetrics
	Gatherer       prometheus.Gatherer
	Logger         *zap.Logger
}

func NewRouter(d Deps) *gin.Engine {
	orderHandler := handler.NewOrderHandler(d.Orders, d.Logger)
	paymentHandler := handler.NewPaymentHandler(d.Reconciliation, d.Logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(d.CORSOrigins)))
	if d.ServerMetrics != nil {
		router.Use(d.ServerMetrics.Middleware())
	}

	if d.DB != nil {
		router.GET("/healthz", handler.Health(d.DB))
	}
	if d.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(d.Gatherer)))
	}

	gateway := router.Group("/payments/gateway")
	gateway.POST("/callback", paymentHandler.Callback)
	gateway.GET("/callback", paymentHandler.Callback)
	gateway.GET("/success", paymentHandler.Callback)
	gateway.GET("/failure", paymentHandler.Failure)

	api := router.Group("/api", middleware.NewAuthMiddleware(d.JWTSecret))

	orders := api.Group("/orders")
	orders.POST("", orderHandler.Create)
	orders.GET("/mine", orderHandler.ListMine)
	orders.GET("/:id", orderHandler.Get)
	orders.POST("/:id/cancel", orderHandler.Cancel)
	orders.POST("/:id/refund", orderHandler.RequestRefund)

	payments := api.Group("/payments")
	payments.POST("/:orderId/initiate", paymentHandler.Initiate)
	payments.GET("/:orderId/status", paymentHandler.Status)

	admin := api.Group("/admin", middleware.RequireAdmin())
	admin.GET("/orders", orderHandler.ListByEmail)
	admin.PATCH("/orders/:id/status", orderHandler.UpdateStatus)
	admin.POST("/orders/:id/refund/approve", orderHandler.ApproveRefund)
	admin.DELETE("/orders", orderHandler.DeleteAll)

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
