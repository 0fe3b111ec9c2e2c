package repo

import (
	"context"
	"database/sql"

	"bookstore-payment/internal/domain"
)

// PaymentEventRepo stores the audit trail of gateway exchanges.
type PaymentEventRepo interface {
	// tx may be nil when the event is not part of an order write
	Record(ctx context.Context, tx *sql.Tx, event *domain.PaymentEvent) error
	FindByOrder(ctx context.Context, orderID string) ([]domain.PaymentEvent, error)
}

type paymentEventRepo struct {
	db *sql.DB
}

func NewPaymentEventRepo(db *sql.DB) PaymentEventRepo {
	return &paymentEventRepo{db: db}
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *paymentEventRepo) Record(ctx context.Context, tx *sql.Tx, event *domain.PaymentEvent) error {
	var exec queryRower = r.db
	if tx != nil {
		exec = tx
	}

	query := `
		INSERT INTO payment_events (order_id, source, gateway_status, reference_id, accepted, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	return exec.QueryRowContext(
		ctx, query, event.OrderID, event.Source, event.GatewayStatus, event.ReferenceID, event.Accepted, event.Detail, event.CreatedAt,
	).Scan(&event.ID)
}

func (r *paymentEventRepo) FindByOrder(ctx context.Context, orderID string) ([]domain.PaymentEvent, error) {
	query := `
		SELECT id, order_id, source, gateway_status, reference_id, accepted, detail, created_at
		FROM payment_events
		WHERE order_id = $1
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.PaymentEvent
	for rows.Next() {
		var e domain.PaymentEvent
		err := rows.Scan(
			&e.ID,
			&e.OrderID,
			&e.Source,
			&e.GatewayStatus,
			&e.ReferenceID,
			&e.Accepted,
			&e.Detail,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
