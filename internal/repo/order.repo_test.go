package repo

import (
	"database/sql"
	"errors"
	"time"

	"bookstore-payment/internal/database"
	"bookstore-payment/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (s *RepoSuite) newOrder(email string, method domain.PaymentMethod) *domain.Order {
	order, err := domain.NewOrder(email, "Reader", "9800000000", "Kathmandu", method, []domain.LineItem{
		{BookID: "go-book", Title: "The Go Programming Language", Price: decimal.RequireFromString("750.50"), Quantity: 1},
		{BookID: "ddia-2nd", Title: "DDIA", Price: decimal.NewFromInt(250), Quantity: 2},
	}, decimal.Zero, time.Now().UTC())
	s.Require().NoError(err)

	err = s.Tx.WithinTx(s.Ctx, func(tx *sql.Tx) error {
		return s.Orders.CreateOrder(s.Ctx, tx, order)
	})
	s.Require().NoError(err)
	return order
}

func (s *RepoSuite) TestCreateAndFind() {
	order := s.newOrder("reader@example.com", domain.PaymentCashOnDelivery)

	found, err := s.Orders.FindById(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().NotNil(found)

	s.Equal(order.ID, found.ID)
	s.Equal(domain.OrderPending, found.Status)
	s.Equal(domain.PaymentCashOnDelivery, found.PaymentMethod)
	s.True(found.TotalPrice.Equal(decimal.RequireFromString("1250.50")), found.TotalPrice.String())
	s.Require().Len(found.Products, 2)
	s.Equal("DDIA", found.Products[1].Title)
	s.Equal(2, found.Products[1].Quantity)
	s.Nil(found.PaymentReference)
	s.Nil(found.CancelledAt)
	s.EqualValues(1, found.Version)
	s.WithinDuration(order.CreatedAt, found.CreatedAt, time.Millisecond)
}

func (s *RepoSuite) TestFindById_Missing() {
	found, err := s.Orders.FindById(s.Ctx, uuid.New())
	s.NoError(err)
	s.Nil(found)
}

func (s *RepoSuite) TestSave_RoundTripsPaymentState() {
	order := s.newOrder("reader@example.com", domain.PaymentExternalGateway)
	now := time.Now().UTC()
	order.ApplyPayment(domain.PaymentReference{Status: domain.PaymentCompleted, ReferenceID: "REF1", CompletedAt: &now}, now)
	s.Require().NoError(order.Cancel(now))

	err := s.Tx.WithinTx(s.Ctx, func(tx *sql.Tx) error {
		return s.Orders.Save(s.Ctx, tx, order)
	})
	s.Require().NoError(err)
	s.EqualValues(2, order.Version)

	found, err := s.Orders.FindById(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderCancelled, found.Status)
	s.EqualValues(2, found.Version)
	s.Require().NotNil(found.PaymentReference)
	s.Equal(domain.PaymentRefunded, found.PaymentReference.Status)
	s.Equal("REF1", found.PaymentReference.ReferenceID)
	s.Require().NotNil(found.PaymentReference.CompletedAt)
	s.Require().NotNil(found.CancelledAt)
	s.WithinDuration(now, *found.CancelledAt, time.Millisecond)
	s.Equal(domain.CustomerCancelReason, found.RefundReason)
}

func (s *RepoSuite) TestSave_StaleVersion() {
	order := s.newOrder("reader@example.com", domain.PaymentCreditCard)

	first, err := s.Orders.FindById(s.Ctx, order.ID)
	s.Require().NoError(err)
	second, err := s.Orders.FindById(s.Ctx, order.ID)
	s.Require().NoError(err)

	now := time.Now().UTC()
	s.Require().NoError(first.Cancel(now))
	s.Require().NoError(second.UpdateStatus(domain.OrderProcessing, now))

	err = s.Tx.WithinTx(s.Ctx, func(tx *sql.Tx) error {
		return s.Orders.Save(s.Ctx, tx, first)
	})
	s.Require().NoError(err)

	err = s.Tx.WithinTx(s.Ctx, func(tx *sql.Tx) error {
		return s.Orders.Save(s.Ctx, tx, second)
	})
	s.ErrorIs(err, domain.ErrConcurrentModification)
	s.EqualValues(1, second.Version)

	found, err := s.Orders.FindById(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderCancelled, found.Status)
}

func (s *RepoSuite) TestWithinTx_RollsBack() {
	order := s.newOrder("reader@example.com", domain.PaymentExternalGateway)
	order.Status = domain.OrderProcessing
	boom := errors.New("boom")

	err := s.Tx.WithinTx(s.Ctx, func(tx *sql.Tx) error {
		if err := s.Orders.Save(s.Ctx, tx, order); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	found, err := s.Orders.FindById(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderPending, found.Status)
	s.EqualValues(1, found.Version)
}

func (s *RepoSuite) TestFindByEmail() {
	s.newOrder("a@example.com", domain.PaymentCashOnDelivery)
	latest := s.newOrder("a@example.com", domain.PaymentCreditCard)
	s.newOrder("b@example.com", domain.PaymentCashOnDelivery)

	orders, err := s.Orders.FindByEmail(s.Ctx, "a@example.com")
	s.Require().NoError(err)
	s.Require().Len(orders, 2)
	s.Equal(latest.ID, orders[0].ID)

	n, err := s.Orders.DeleteAll(s.Ctx)
	s.Require().NoError(err)
	s.EqualValues(3, n)
}

func (s *RepoSuite) TestFindStalePayments() {
	stale := s.newOrder("a@example.com", domain.PaymentExternalGateway)
	fresh := s.newOrder("b@example.com", domain.PaymentExternalGateway)
	settled := s.newOrder("c@example.com", domain.PaymentExternalGateway)
	s.newOrder("d@example.com", domain.PaymentCashOnDelivery)

	old := time.Now().UTC().Add(-time.Hour)
	save := func(o *domain.Order, status domain.PaymentStatus, at time.Time) {
		o.PaymentReference = &domain.PaymentReference{
			Method:        domain.PaymentExternalGateway,
			TransactionID: o.ID.String(),
			Status:        status,
		}
		o.UpdatedAt = at
		err := s.Tx.WithinTx(s.Ctx, func(tx *sql.Tx) error { return s.Orders.Save(s.Ctx, tx, o) })
		s.Require().NoError(err)
	}
	save(stale, domain.PaymentInitiated, old)
	save(fresh, domain.PaymentPending, time.Now().UTC())
	save(settled, domain.PaymentCompleted, old)

	orders, err := s.Orders.FindStalePayments(s.Ctx, 15*time.Minute, 10)
	s.Require().NoError(err)
	s.Require().Len(orders, 1)
	s.Equal(stale.ID, orders[0].ID)
}

func (s *RepoSuite) TestBooks() {
	_, err := s.DB.ExecContext(s.Ctx, "INSERT INTO books (id, title, price) VALUES ('go-book', 'The Go Programming Language', 750.50)")
	s.Require().NoError(err)

	book, err := s.Books.FindById(s.Ctx, "go-book")
	s.Require().NoError(err)
	s.Require().NotNil(book)
	s.True(book.Price.Equal(decimal.RequireFromString("750.5")))

	missing, err := s.Books.FindById(s.Ctx, "nope")
	s.NoError(err)
	s.Nil(missing)
}

func (s *RepoSuite) TestPaymentEvents() {
	order := s.newOrder("reader@example.com", domain.PaymentExternalGateway)
	id := order.ID.String()

	err := s.Tx.WithinTx(s.Ctx, func(tx *sql.Tx) error {
		return s.Events.Record(s.Ctx, tx, &domain.PaymentEvent{
			OrderID: id, Source: domain.EventSourceInitiate, Accepted: true, CreatedAt: time.Now().UTC(),
		})
	})
	s.Require().NoError(err)

	rejected := &domain.PaymentEvent{
		OrderID: id, Source: domain.EventSourceCallback, GatewayStatus: "COMPLETE",
		Accepted: false, Detail: "signature mismatch", CreatedAt: time.Now().UTC(),
	}
	s.Require().NoError(s.Events.Record(s.Ctx, nil, rejected))
	s.NotZero(rejected.ID)

	events, err := s.Events.FindByOrder(s.Ctx, id)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(domain.EventSourceInitiate, events[0].Source)
	s.False(events[1].Accepted)
	s.Equal("signature mismatch", events[1].Detail)
}

func (s *RepoSuite) TestHealth() {
	stats := database.New(s.DB).Health(s.Ctx)
	s.Equal("up", stats["status"])
}
