package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"bookstore-payment/internal/domain"
	"bookstore-payment/internal/infrastructure/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memOrderRepo keeps orders by value so callers never share state, and
// enforces the same version check as the Postgres repo.
type memOrderRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]domain.Order
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[uuid.UUID]domain.Order)}
}

func (r *memOrderRepo) FindById(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	return cloneOrder(o), nil
}

func (r *memOrderRepo) FindByEmail(ctx context.Context, email string) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, o := range r.orders {
		if o.Email == email {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memOrderRepo) CreateOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if order.Version == 0 {
		order.Version = 1
	}
	r.orders[order.ID] = *cloneOrder(*order)
	return nil
}

func (r *memOrderRepo) Save(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.orders[order.ID]
	if !ok || current.Version != order.Version {
		return fmt.Errorf("%w: order %s", domain.ErrConcurrentModification, order.ID)
	}
	order.Version++
	r.orders[order.ID] = *cloneOrder(*order)
	return nil
}

func (r *memOrderRepo) DeleteAll(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(len(r.orders))
	r.orders = make(map[uuid.UUID]domain.Order)
	return n, nil
}

func (r *memOrderRepo) FindStalePayments(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []domain.Order
	for _, o := range r.orders {
		ref := o.PaymentReference
		if o.PaymentMethod != domain.PaymentExternalGateway || ref == nil {
			continue
		}
		if ref.Status != domain.PaymentInitiated && ref.Status != domain.PaymentPending {
			continue
		}
		if !o.UpdatedAt.Before(cutoff) {
			continue
		}
		out = append(out, *cloneOrder(o))
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// bump simulates another writer committing in between.
func (r *memOrderRepo) bump(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.orders[id]
	o.Version++
	r.orders[id] = o
}

func cloneOrder(o domain.Order) *domain.Order {
	out := o
	out.Products = append([]domain.LineItem(nil), o.Products...)
	if o.PaymentReference != nil {
		ref := *o.PaymentReference
		out.PaymentReference = &ref
	}
	return &out
}

type memEventRepo struct {
	mu     sync.Mutex
	events []domain.PaymentEvent
}

func (r *memEventRepo) Record(ctx context.Context, tx *sql.Tx, event *domain.PaymentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event.ID = int64(len(r.events) + 1)
	r.events = append(r.events, *event)
	return nil
}

func (r *memEventRepo) FindByOrder(ctx context.Context, orderID string) ([]domain.PaymentEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PaymentEvent
	for _, e := range r.events {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memBookRepo map[string]domain.Book

func (r memBookRepo) FindById(ctx context.Context, id string) (*domain.Book, error) {
	b, ok := r[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

// inlineTx runs fn without a real transaction; the fakes ignore tx.
type inlineTx struct{}

func (inlineTx) WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}

type stubGateway struct {
	result *payment.StatusResult
	err    error
	calls  int
}

func (g *stubGateway) CheckStatus(ctx context.Context, query payment.StatusQuery) (*payment.StatusResult, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	res := *g.result
	res.TransactionUUID = query.TransactionUUID
	return &res, nil
}

var testBooks = memBookRepo{
	"go-book":  {ID: "go-book", Title: "The Go Programming Language", Price: decimal.NewFromInt(750)},
	"ddia-2nd": {ID: "ddia-2nd", Title: "Designing Data-Intensive Applications", Price: decimal.NewFromInt(250)},
}

// racingRepo runs onRead after every FindById, before the caller can save.
type racingRepo struct {
	*memOrderRepo
	onRead func()
}

func (r *racingRepo) FindById(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	o, err := r.memOrderRepo.FindById(ctx, id)
	if r.onRead != nil {
		r.onRead()
	}
	return o, err
}
