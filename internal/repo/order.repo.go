package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"bookstore-payment/internal/domain"

	"github.com/google/uuid"
)

type OrderRepo interface {
	FindById(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindByEmail(ctx context.Context, email string) ([]domain.Order, error)
	CreateOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error
	// Save writes the order only if its version is unchanged since it was
	// read, then bumps order.Version.
	Save(ctx context.Context, tx *sql.Tx, order *domain.Order) error
	DeleteAll(ctx context.Context) (int64, error)
	FindStalePayments(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error)
}

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

const orderColumns = `id, email, name, phone, address, products, total_price, status, payment_method,
	payment_reference, cancelled_at, refunded_at, refund_reason, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order       domain.Order
		products    []byte
		reference   []byte
		cancelledAt sql.NullTime
		refundedAt  sql.NullTime
	)
	if err := row.Scan(
		&order.ID,
		&order.Email,
		&order.Name,
		&order.Phone,
		&order.Address,
		&products,
		&order.TotalPrice,
		&order.Status,
		&order.PaymentMethod,
		&reference,
		&cancelledAt,
		&refundedAt,
		&order.RefundReason,
		&order.Version,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(products, &order.Products); err != nil {
		return nil, fmt.Errorf("decode products of order %s: %w", order.ID, err)
	}
	if len(reference) > 0 {
		var ref domain.PaymentReference
		if err := json.Unmarshal(reference, &ref); err != nil {
			return nil, fmt.Errorf("decode payment reference of order %s: %w", order.ID, err)
		}
		order.PaymentReference = &ref
	}
	if cancelledAt.Valid {
		order.CancelledAt = &cancelledAt.Time
	}
	if refundedAt.Valid {
		order.RefundedAt = &refundedAt.Time
	}
	return &order, nil
}

func scanOrders(rows *sql.Rows) ([]domain.Order, error) {
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func encodeReference(ref *domain.PaymentReference) (any, error) {
	if ref == nil {
		return nil, nil
	}
	data, err := json.Marshal(ref)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (r *orderRepo) FindById(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err // system error
	}
	return order, nil
}

func (r *orderRepo) FindByEmail(ctx context.Context, email string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE email = $1 ORDER BY created_at DESC",
		email,
	)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

func (r *orderRepo) CreateOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	products, err := json.Marshal(order.Products)
	if err != nil {
		return err
	}
	reference, err := encodeReference(order.PaymentReference)
	if err != nil {
		return err
	}
	if order.Version == 0 {
		order.Version = 1
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, email, name, phone, address, products, total_price, status, payment_method,
			payment_reference, cancelled_at, refunded_at, refund_reason, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		order.ID,
		order.Email,
		order.Name,
		order.Phone,
		order.Address,
		string(products),
		order.TotalPrice,
		order.Status,
		order.PaymentMethod,
		reference,
		nullTime(order.CancelledAt),
		nullTime(order.RefundedAt),
		order.RefundReason,
		order.Version,
		order.CreatedAt,
		order.UpdatedAt,
	)
	return err
}

func (r *orderRepo) Save(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	reference, err := encodeReference(order.PaymentReference)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $3,
		    payment_method = $4,
		    payment_reference = $5,
		    cancelled_at = $6,
		    refunded_at = $7,
		    refund_reason = $8,
		    updated_at = $9,
		    version = version + 1
		WHERE id = $1 AND version = $2`,
		order.ID,
		order.Version,
		order.Status,
		order.PaymentMethod,
		reference,
		nullTime(order.CancelledAt),
		nullTime(order.RefundedAt),
		order.RefundReason,
		order.UpdatedAt,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: order %s changed since version %d", domain.ErrConcurrentModification, order.ID, order.Version)
	}
	order.Version++
	return nil
}

func (r *orderRepo) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM orders")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FindStalePayments returns gateway orders whose payment was started but
// never settled, oldest first.
func (r *orderRepo) FindStalePayments(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE payment_method = $1
		AND payment_reference ->> 'status' IN ($2, $3)
		AND updated_at < $4
		ORDER BY updated_at
		LIMIT $5`,
		domain.PaymentExternalGateway,
		domain.PaymentInitiated,
		domain.PaymentPending,
		time.Now().Add(-olderThan),
		limit,
	)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}
