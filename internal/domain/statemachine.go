package domain

import (
	"fmt"
	"strings"
	"time"
)

type Event string

const (
	EventProcess          Event = "process"
	EventShip             Event = "ship"
	EventDeliver          Event = "deliver"
	EventPaymentCompleted Event = "payment_completed"
	EventCancel           Event = "cancel"
	EventRequestRefund    Event = "request_refund"
	EventApproveRefund    Event = "approve_refund"
)

const CustomerCancelReason = "Order cancelled by customer"

type transition struct {
	from  OrderStatus
	event Event
}

// Every status change goes through this table. A (status, event) pair that
// is missing is rejected.
var transitions = map[transition]OrderStatus{
	{OrderPending, EventProcess}:                OrderProcessing,
	{OrderPending, EventPaymentCompleted}:       OrderProcessing,
	{OrderProcessing, EventShip}:                OrderShipped,
	{OrderShipped, EventDeliver}:                OrderDelivered,
	{OrderPending, EventCancel}:                 OrderCancelled,
	{OrderProcessing, EventCancel}:              OrderCancelled,
	{OrderCancelled, EventCancel}:               OrderCancelled,
	{OrderRefundProcessing, EventCancel}:        OrderRefundProcessing,
	{OrderRefunded, EventCancel}:                OrderRefunded,
	{OrderCancelled, EventRequestRefund}:        OrderRefundProcessing,
	{OrderRefundProcessing, EventApproveRefund}: OrderRefunded,
}

// adminEvents are the forward edges reachable through UpdateStatus.
var adminEvents = map[OrderStatus]Event{
	OrderProcessing: EventProcess,
	OrderShipped:    EventShip,
	OrderDelivered:  EventDeliver,
}

// Next returns the status the event leads to from the given status.
func Next(from OrderStatus, event Event) (OrderStatus, error) {
	to, ok := transitions[transition{from, event}]
	if !ok {
		return from, &TransitionError{From: from, Event: event}
	}
	return to, nil
}

// Fire applies event to the order status.
func (o *Order) Fire(event Event, now time.Time) error {
	to, err := Next(o.Status, event)
	if err != nil {
		return err
	}
	o.Status = to
	o.UpdatedAt = now
	return nil
}

// Cancel moves the order to cancelled. An order that is already cancelled,
// or further along the refund path, is left as it is. Gateway-paid orders are
// marked refunded on the payment reference right away; the order itself stays
// cancelled until a refund is requested and approved.
func (o *Order) Cancel(now time.Time) error {
	to, err := Next(o.Status, EventCancel)
	if err != nil {
		return err
	}
	if to == o.Status {
		return nil
	}
	if err := o.Fire(EventCancel, now); err != nil {
		return err
	}
	o.CancelledAt = &now

	if o.PaymentMethod == PaymentExternalGateway {
		ref := PaymentReference{Method: PaymentExternalGateway, TransactionID: o.ID.String()}
		if o.PaymentReference != nil {
			ref = *o.PaymentReference
		}
		ref.Status = PaymentRefunded
		ref.UpdatedAt = &now
		o.PaymentReference = &ref
		o.RefundReason = CustomerCancelReason
		o.RefundedAt = &now
	}
	return nil
}

func (o *Order) RequestRefund(reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("%w: refund reason is required", ErrValidation)
	}
	if o.Status == OrderCancelled && o.PaymentMethod == PaymentCashOnDelivery {
		return fmt.Errorf("%w: cash on delivery orders are not refundable", ErrInvalidTransition)
	}
	if err := o.Fire(EventRequestRefund, now); err != nil {
		return err
	}
	o.RefundReason = reason
	return nil
}

func (o *Order) ApproveRefund(now time.Time) error {
	if err := o.Fire(EventApproveRefund, now); err != nil {
		return err
	}
	o.RefundedAt = &now
	return nil
}

// UpdateStatus is the administrative path. Only the forward fulfilment edges
// are reachable here; cancellation and refunds have their own operations.
func (o *Order) UpdateStatus(target OrderStatus, now time.Time) error {
	if !target.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, target)
	}
	event, ok := adminEvents[target]
	if !ok {
		return &TransitionError{From: o.Status, Event: Event("set_" + string(target))}
	}
	return o.Fire(event, now)
}

// ApplyPayment folds a gateway result into the order and reports whether
// anything changed. A completed payment moves a pending order to processing;
// in any other status the order keeps its status and only the reference is
// updated. A reference already marked refunded by a cancel is final: later
// gateway results are left to the audit trail.
func (o *Order) ApplyPayment(update PaymentReference, now time.Time) bool {
	ref := PaymentReference{Method: PaymentExternalGateway, TransactionID: o.ID.String()}
	if o.PaymentReference != nil {
		ref = *o.PaymentReference
	}
	if ref.Status == PaymentRefunded {
		return false
	}
	// first completion time wins
	if ref.Status == PaymentCompleted && update.Status == PaymentCompleted && ref.CompletedAt != nil {
		update.CompletedAt = nil
	}
	ref = ref.Merge(update)
	o.PaymentReference = &ref
	o.UpdatedAt = now

	if ref.Status != PaymentCompleted {
		return true
	}
	if to, err := Next(o.Status, EventPaymentCompleted); err == nil {
		o.Status = to
	}
	return true
}
