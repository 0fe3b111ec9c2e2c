package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"bookstore-payment/internal/domain"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const DefaultStatusTimeout = 10 * time.Second

type StatusQuery struct {
	ProductCode     string
	TransactionUUID string
	TotalAmount     string
}

type StatusResult struct {
	Status          string `json:"status"`
	RefID           string `json:"ref_id"`
	TransactionUUID string `json:"transaction_uuid"`
	ProductCode     string `json:"product_code"`
}

type PaymentGateway interface {
	CheckStatus(ctx context.Context, query StatusQuery) (*StatusResult, error)
}

type statusClient struct {
	statusURL string
	client    *http.Client
	timeout   time.Duration
	cb        *gobreaker.CircuitBreaker
	logger    *zap.Logger
}

func NewStatusClient(statusURL string, timeout time.Duration, logger *zap.Logger) PaymentGateway {
	if timeout <= 0 {
		timeout = DefaultStatusTimeout
	}
	settings := gobreaker.Settings{
		Name:        "PaymentGatewayStatus",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn(
				"Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &statusClient{
		statusURL: statusURL,
		client:    &http.Client{},
		timeout:   timeout,
		cb:        gobreaker.NewCircuitBreaker(settings),
		logger:    logger,
	}
}

func (c *statusClient) CheckStatus(ctx context.Context, query StatusQuery) (*StatusResult, error) {
	res, err := executeWithBreaker(c.cb, func() (*StatusResult, error) {
		return c.fetch(ctx, query)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	return res, nil
}

func (c *statusClient) fetch(ctx context.Context, query StatusQuery) (*StatusResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u, err := url.Parse(c.statusURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("product_code", query.ProductCode)
	q.Set("total_amount", query.TotalAmount)
	q.Set("transaction_uuid", query.TransactionUUID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status endpoint returned %d: %s", resp.StatusCode, body)
	}

	var result StatusResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	if result.Status == "" {
		return nil, fmt.Errorf("status response has no status")
	}
	return &result, nil
}

func executeWithBreaker[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return *new(T), err
	}
	return res.(T), nil
}
