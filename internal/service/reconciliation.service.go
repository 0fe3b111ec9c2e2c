package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookstore-payment/internal/domain"
	"bookstore-payment/internal/infrastructure/payment"
	"bookstore-payment/internal/metrics"
	"bookstore-payment/internal/repo"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	SuccessPath  = "/payments/gateway/success"
	FailurePath  = "/payments/gateway/failure"
	CallbackPath = "/payments/gateway/callback"
)

// System is the principal used by operator tooling such as the sweep.
var System = domain.Principal{UserID: "system", Admin: true}

// ReconciliationService drives the gateway protocol and folds its results
// back into orders.
type ReconciliationService interface {
	Initiate(ctx context.Context, p domain.Principal, orderId string) (*payment.PaymentRequest, error)
	HandleCallback(ctx context.Context, payload map[string]any) (*domain.Order, error)
	PollStatus(ctx context.Context, p domain.Principal, orderId string) (*domain.Order, error)
}

type reconciliationService struct {
	tx              repo.TxRunner
	orderRepo       repo.OrderRepo
	eventRepo       repo.PaymentEventRepo
	builder         *payment.RequestBuilder
	verifier        *payment.Verifier
	gateway         payment.PaymentGateway
	merchantCode    string
	callbackBaseURL string
	metrics         *metrics.PaymentMetrics
	logger          *zap.Logger
}

func NewReconciliationService(
	tx repo.TxRunner,
	orderRepo repo.OrderRepo,
	eventRepo repo.PaymentEventRepo,
	cfg payment.Config,
	gateway payment.PaymentGateway,
	callbackBaseURL string,
	m *metrics.PaymentMetrics,
	logger *zap.Logger,
) ReconciliationService {
	return &reconciliationService{
		tx:              tx,
		orderRepo:       orderRepo,
		eventRepo:       eventRepo,
		builder:         payment.NewRequestBuilder(cfg),
		verifier:        payment.NewVerifier(cfg),
		gateway:         gateway,
		merchantCode:    cfg.MerchantCode,
		callbackBaseURL: strings.TrimRight(callbackBaseURL, "/"),
		metrics:         m,
		logger:          logger,
	}
}

func (s *reconciliationService) Initiate(ctx context.Context, p domain.Principal, orderId string) (*payment.PaymentRequest, error) {
	order, err := loadOrder(ctx, s.orderRepo, orderId)
	if err != nil {
		return nil, err
	}
	if !order.OwnedBy(p) {
		return nil, fmt.Errorf("%w: order %s", domain.ErrForbidden, orderId)
	}
	if order.Status != domain.OrderPending {
		return nil, &domain.TransitionError{From: order.Status, Event: "initiate_payment"}
	}
	if ref := order.PaymentReference; ref != nil && ref.Status == domain.PaymentCompleted {
		return nil, fmt.Errorf("%w: order %s is already paid", domain.ErrInvalidTransition, orderId)
	}

	req, err := s.builder.Build(order, s.callbackBaseURL+SuccessPath, s.callbackBaseURL+FailurePath)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order.PaymentMethod = domain.PaymentExternalGateway
	order.PaymentReference = &domain.PaymentReference{
		Method:        domain.PaymentExternalGateway,
		TransactionID: order.ID.String(),
		Status:        domain.PaymentInitiated,
		UpdatedAt:     &now,
	}
	order.UpdatedAt = now

	err = s.persist(ctx, order, true, &domain.PaymentEvent{
		OrderID:   order.ID.String(),
		Source:    domain.EventSourceInitiate,
		Accepted:  true,
		Detail:    "total_amount=" + req.TotalAmount,
		CreatedAt: now,
	})
	if err != nil {
		s.metrics.Observe("initiate", "error")
		return nil, err
	}

	s.metrics.Observe("initiate", "ok")
	s.logger.Info("Payment initiated", zap.String("order_id", orderId), zap.String("total_amount", req.TotalAmount))
	return req, nil
}

func (s *reconciliationService) HandleCallback(ctx context.Context, payload map[string]any) (*domain.Order, error) {
	transactionUUID := payloadString(payload, "transaction_uuid")
	gatewayStatus := payloadString(payload, "status")

	valid, err := s.verifier.Verify(payload)
	if err != nil || !valid {
		reason := "signature mismatch"
		if err != nil {
			reason = err.Error()
		}
		s.reject(ctx, transactionUUID, gatewayStatus, reason)
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidSignature, reason)
	}

	id, err := uuid.Parse(transactionUUID)
	if err != nil {
		s.reject(ctx, transactionUUID, gatewayStatus, "malformed transaction_uuid")
		return nil, fmt.Errorf("%w: transaction_uuid %q", domain.ErrMalformedID, transactionUUID)
	}

	order, err := s.orderRepo.FindById(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil {
		s.reject(ctx, transactionUUID, gatewayStatus, "unknown order")
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, transactionUUID)
	}

	if code := payloadString(payload, "product_code"); code != s.merchantCode {
		s.reject(ctx, transactionUUID, gatewayStatus, "product_code mismatch")
		return nil, fmt.Errorf("%w: product_code %q", domain.ErrValidation, code)
	}
	if amount := payloadString(payload, "total_amount"); !sameAmount(amount, order.TotalPrice) {
		s.reject(ctx, transactionUUID, gatewayStatus, "total_amount mismatch")
		return nil, fmt.Errorf("%w: total_amount %q does not match order total %s", domain.ErrValidation, amount, order.TotalPrice)
	}
	if gatewayStatus == "" {
		s.reject(ctx, transactionUUID, gatewayStatus, "missing status")
		return nil, fmt.Errorf("%w: callback has no status", domain.ErrValidation)
	}
	if !awaitsGateway(order) {
		s.reject(ctx, transactionUUID, gatewayStatus, "payment not initiated")
		return nil, fmt.Errorf("%w: order %s has no gateway payment", domain.ErrInvalidTransition, transactionUUID)
	}

	refID := payloadString(payload, "ref_id")
	if refID == "" {
		refID = payloadString(payload, "transaction_code")
	}

	now := time.Now().UTC()
	changed := order.ApplyPayment(gatewayUpdate(gatewayStatus, refID, now), now)

	err = s.persist(ctx, order, changed, &domain.PaymentEvent{
		OrderID:       order.ID.String(),
		Source:        domain.EventSourceCallback,
		GatewayStatus: gatewayStatus,
		ReferenceID:   refID,
		Accepted:      true,
		CreatedAt:     now,
	})
	if err != nil {
		s.metrics.Observe("callback", "error")
		return nil, err
	}

	s.metrics.Observe("callback", "accepted")
	s.logger.Info(
		"Gateway callback applied",
		zap.String("order_id", transactionUUID),
		zap.String("gateway_status", gatewayStatus),
		zap.String("order_status", string(order.Status)),
	)
	return order, nil
}

func (s *reconciliationService) PollStatus(ctx context.Context, p domain.Principal, orderId string) (*domain.Order, error) {
	order, err := loadOrder(ctx, s.orderRepo, orderId)
	if err != nil {
		return nil, err
	}
	if !order.OwnedBy(p) {
		return nil, fmt.Errorf("%w: order %s", domain.ErrForbidden, orderId)
	}
	if !awaitsGateway(order) {
		return nil, fmt.Errorf("%w: order %s has no gateway payment to check", domain.ErrInvalidTransition, orderId)
	}

	result, err := s.gateway.CheckStatus(ctx, payment.StatusQuery{
		ProductCode:     s.merchantCode,
		TransactionUUID: order.ID.String(),
		TotalAmount:     order.TotalPrice.String(),
	})
	if err != nil {
		s.metrics.Observe("poll", "unavailable")
		s.logger.Warn("Gateway status check failed", zap.String("order_id", orderId), zap.Error(err))
		if !errors.Is(err, domain.ErrGatewayUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
		}
		return nil, err
	}

	now := time.Now().UTC()
	changed := order.ApplyPayment(gatewayUpdate(result.Status, result.RefID, now), now)

	err = s.persist(ctx, order, changed, &domain.PaymentEvent{
		OrderID:       order.ID.String(),
		Source:        domain.EventSourcePoll,
		GatewayStatus: result.Status,
		ReferenceID:   result.RefID,
		Accepted:      true,
		CreatedAt:     now,
	})
	if err != nil {
		s.metrics.Observe("poll", "error")
		return nil, err
	}

	s.metrics.Observe("poll", "ok")
	s.logger.Info(
		"Gateway status reconciled",
		zap.String("order_id", orderId),
		zap.String("gateway_status", result.Status),
		zap.String("order_status", string(order.Status)),
	)
	return order, nil
}

// persist writes the order and its audit event as one unit. An unchanged
// order only gets the event.
func (s *reconciliationService) persist(ctx context.Context, order *domain.Order, save bool, event *domain.PaymentEvent) error {
	err := s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		if save {
			if err := s.orderRepo.Save(ctx, tx, order); err != nil {
				return err
			}
		}
		return s.eventRepo.Record(ctx, tx, event)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrConcurrentModification) {
		s.logger.Warn("Concurrent order update", zap.String("order_id", order.ID.String()))
		return err
	}
	s.logger.Error("Failed to save order", zap.String("order_id", order.ID.String()), zap.Error(err))
	return fmt.Errorf("failed to save order: %w", err)
}

// reject audits a callback that did not change any order. Forged callbacks
// are a security event, so they are logged at warn.
func (s *reconciliationService) reject(ctx context.Context, transactionUUID, gatewayStatus, reason string) {
	s.metrics.Observe("callback", "rejected")
	s.logger.Warn(
		"Gateway callback rejected",
		zap.String("transaction_uuid", transactionUUID),
		zap.String("gateway_status", gatewayStatus),
		zap.String("reason", reason),
	)

	err := s.eventRepo.Record(ctx, nil, &domain.PaymentEvent{
		OrderID:       transactionUUID,
		Source:        domain.EventSourceCallback,
		GatewayStatus: gatewayStatus,
		Accepted:      false,
		Detail:        reason,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error("Failed to record rejected callback", zap.String("transaction_uuid", transactionUUID), zap.Error(err))
	}
}

// awaitsGateway reports whether the order went through Initiate.
func awaitsGateway(o *domain.Order) bool {
	return o.PaymentMethod == domain.PaymentExternalGateway && o.PaymentReference != nil
}

func gatewayUpdate(gatewayStatus, refID string, now time.Time) domain.PaymentReference {
	update := domain.PaymentReference{
		Status:      domain.PaymentStatusFromGateway(gatewayStatus),
		ReferenceID: refID,
	}
	if update.Status == domain.PaymentCompleted {
		update.CompletedAt = &now
	}
	update.UpdatedAt = &now
	return update
}

func sameAmount(raw string, total decimal.Decimal) bool {
	amount, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(raw), ",", ""))
	if err != nil {
		return false
	}
	return amount.Equal(total)
}

func payloadString(payload map[string]any, key string) string {
	switch v := payload[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}
