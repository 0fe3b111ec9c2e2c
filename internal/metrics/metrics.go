package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bookstore",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bookstore",
		Subsystem: "http",
		Name:      "request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	reg.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// Middleware records every request under its route pattern.
func (m *ServerMetrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		handler := c.FullPath()
		if handler == "" {
			handler = "unmatched"
		}
		m.Requests.WithLabelValues(handler, strconv.Itoa(c.Writer.Status())).Inc()
		m.LatencyMS.WithLabelValues(handler).Observe(float64(time.Since(start).Milliseconds()))
	}
}

// PaymentMetrics counts gateway exchanges by kind and result. A nil
// *PaymentMetrics records nothing.
type PaymentMetrics struct {
	Exchanges *prometheus.CounterVec
}

func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	exchanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bookstore",
		Subsystem: "payment",
		Name:      "gateway_exchanges_total",
		Help:      "Gateway exchanges by kind (initiate, callback, poll) and result.",
	}, []string{"kind", "result"})

	reg.MustRegister(exchanges)
	return &PaymentMetrics{Exchanges: exchanges}
}

func (m *PaymentMetrics) Observe(kind, result string) {
	if m == nil {
		return
	}
	m.Exchanges.WithLabelValues(kind, result).Inc()
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
