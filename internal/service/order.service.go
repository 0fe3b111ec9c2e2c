package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookstore-payment/internal/domain"
	"bookstore-payment/internal/repo"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderItemInput struct {
	BookID   string `json:"bookId" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,gte=1"`
}

type CreateOrderInput struct {
	Name          string               `json:"name" binding:"required"`
	Phone         string               `json:"phone" binding:"required"`
	Address       string               `json:"address" binding:"required"`
	PaymentMethod domain.PaymentMethod `json:"paymentMethod" binding:"required,oneof=CashOnDelivery CreditCard DebitCard PayPal ExternalGateway"`
	Items         []OrderItemInput     `json:"products" binding:"required,min=1,dive"`
	TotalPrice    decimal.Decimal      `json:"totalPrice"`
}

type OrderService interface {
	CreateOrder(ctx context.Context, p domain.Principal, in CreateOrderInput) (*domain.Order, error)
	GetOrder(ctx context.Context, p domain.Principal, orderId string) (*domain.Order, error)
	ListMyOrders(ctx context.Context, p domain.Principal) ([]domain.Order, error)
	ListOrdersByEmail(ctx context.Context, p domain.Principal, email string) ([]domain.Order, error)
	CancelOrder(ctx context.Context, p domain.Principal, orderId string) (*domain.Order, error)
	RequestRefund(ctx context.Context, p domain.Principal, orderId, reason string) (*domain.Order, error)
	ApproveRefund(ctx context.Context, p domain.Principal, orderId string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, p domain.Principal, orderId string, status domain.OrderStatus) (*domain.Order, error)
	DeleteAllOrders(ctx context.Context, p domain.Principal) (int64, error)
}

type orderService struct {
	tx        repo.TxRunner
	orderRepo repo.OrderRepo
	bookRepo  repo.BookRepo
	logger    *zap.Logger
}

func NewOrderService(
	tx repo.TxRunner,
	orderRepo repo.OrderRepo,
	bookRepo repo.BookRepo,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		tx:        tx,
		orderRepo: orderRepo,
		bookRepo:  bookRepo,
		logger:    logger,
	}
}

func (s *orderService) CreateOrder(ctx context.Context, p domain.Principal, in CreateOrderInput) (*domain.Order, error) {
	if p.Email == "" {
		return nil, fmt.Errorf("%w: principal has no email", domain.ErrValidation)
	}

	items := make([]domain.LineItem, 0, len(in.Items))
	for _, item := range in.Items {
		book, err := s.bookRepo.FindById(ctx, item.BookID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up book %s: %w", item.BookID, err)
		}
		if book == nil {
			return nil, fmt.Errorf("%w: book %s", domain.ErrNotFound, item.BookID)
		}
		items = append(items, domain.LineItem{
			BookID:   book.ID,
			Title:    book.Title,
			Price:    book.Price,
			Quantity: item.Quantity,
		})
	}

	order, err := domain.NewOrder(p.Email, in.Name, in.Phone, in.Address, in.PaymentMethod, items, in.TotalPrice, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		return s.orderRepo.CreateOrder(ctx, tx, order)
	})
	if err != nil {
		s.logger.Error("Failed to create order", zap.String("email", p.Email), zap.Error(err))
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.logger.Info(
		"Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("total_price", order.TotalPrice.String()),
		zap.String("payment_method", string(order.PaymentMethod)),
	)
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, p domain.Principal, orderId string) (*domain.Order, error) {
	order, err := loadOrder(ctx, s.orderRepo, orderId)
	if err != nil {
		return nil, err
	}
	if !order.OwnedBy(p) {
		return nil, fmt.Errorf("%w: order %s", domain.ErrForbidden, orderId)
	}
	return order, nil
}

func (s *orderService) ListMyOrders(ctx context.Context, p domain.Principal) ([]domain.Order, error) {
	if p.Email == "" {
		return nil, fmt.Errorf("%w: principal has no email", domain.ErrValidation)
	}
	return s.orderRepo.FindByEmail(ctx, p.Email)
}

func (s *orderService) ListOrdersByEmail(ctx context.Context, p domain.Principal, email string) ([]domain.Order, error) {
	if !p.Admin {
		return nil, fmt.Errorf("%w: admin only", domain.ErrForbidden)
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", domain.ErrValidation)
	}
	return s.orderRepo.FindByEmail(ctx, email)
}

func (s *orderService) CancelOrder(ctx context.Context, p domain.Principal, orderId string) (*domain.Order, error) {
	return s.mutate(ctx, p, orderId, false, "cancel", func(o *domain.Order, now time.Time) error {
		return o.Cancel(now)
	})
}

func (s *orderService) RequestRefund(ctx context.Context, p domain.Principal, orderId, reason string) (*domain.Order, error) {
	return s.mutate(ctx, p, orderId, false, "request_refund", func(o *domain.Order, now time.Time) error {
		return o.RequestRefund(reason, now)
	})
}

func (s *orderService) ApproveRefund(ctx context.Context, p domain.Principal, orderId string) (*domain.Order, error) {
	return s.mutate(ctx, p, orderId, true, "approve_refund", func(o *domain.Order, now time.Time) error {
		return o.ApproveRefund(now)
	})
}

func (s *orderService) UpdateStatus(ctx context.Context, p domain.Principal, orderId string, status domain.OrderStatus) (*domain.Order, error) {
	return s.mutate(ctx, p, orderId, true, "update_status", func(o *domain.Order, now time.Time) error {
		return o.UpdateStatus(status, now)
	})
}

func (s *orderService) DeleteAllOrders(ctx context.Context, p domain.Principal) (int64, error) {
	if !p.Admin {
		return 0, fmt.Errorf("%w: admin only", domain.ErrForbidden)
	}
	count, err := s.orderRepo.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orders: %w", err)
	}
	s.logger.Warn("All orders deleted", zap.String("by", p.UserID), zap.Int64("count", count))
	return count, nil
}

// mutate loads the order, applies fn and saves it against the version it
// was read at. A losing concurrent writer gets ErrConcurrentModification.
// When fn leaves the order as it was nothing is written.
func (s *orderService) mutate(
	ctx context.Context,
	p domain.Principal,
	orderId string,
	adminOnly bool,
	op string,
	fn func(o *domain.Order, now time.Time) error,
) (*domain.Order, error) {
	if adminOnly && !p.Admin {
		return nil, fmt.Errorf("%w: admin only", domain.ErrForbidden)
	}

	order, err := loadOrder(ctx, s.orderRepo, orderId)
	if err != nil {
		return nil, err
	}
	if !order.OwnedBy(p) {
		return nil, fmt.Errorf("%w: order %s", domain.ErrForbidden, orderId)
	}

	from := order.Status
	if err := fn(order, time.Now().UTC()); err != nil {
		s.logger.Info(
			"Order operation rejected",
			zap.String("op", op),
			zap.String("order_id", orderId),
			zap.String("status", string(order.Status)),
			zap.Error(err),
		)
		return nil, err
	}
	// every operation here moves the status unless it was a no-op
	if order.Status == from {
		return order, nil
	}

	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		return s.orderRepo.Save(ctx, tx, order)
	})
	if err != nil {
		if errors.Is(err, domain.ErrConcurrentModification) {
			s.logger.Warn("Concurrent order update", zap.String("op", op), zap.String("order_id", orderId))
			return nil, err
		}
		s.logger.Error("Failed to save order", zap.String("op", op), zap.String("order_id", orderId), zap.Error(err))
		return nil, fmt.Errorf("failed to save order: %w", err)
	}

	s.logger.Info(
		"Order updated",
		zap.String("op", op),
		zap.String("order_id", orderId),
		zap.String("status", string(order.Status)),
	)
	return order, nil
}

func loadOrder(ctx context.Context, orderRepo repo.OrderRepo, orderId string) (*domain.Order, error) {
	id, err := uuid.Parse(orderId)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrMalformedID, orderId)
	}
	order, err := orderRepo.FindById(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderId)
	}
	return order, nil
}
