package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation             = errors.New("validation error")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrMalformedID            = errors.New("malformed id")
	ErrNotFound               = errors.New("not found")
	ErrGatewayUnavailable     = errors.New("gateway unavailable")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrForbidden              = errors.New("forbidden")
)

// TransitionError is returned when an event is not allowed from the
// order's current status.
type TransitionError struct {
	From  OrderStatus
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s an order that is %s", e.Event, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

type Kind string

const (
	KindValidation             Kind = "ValidationError"
	KindInvalidTransition      Kind = "InvalidTransition"
	KindInvalidSignature       Kind = "InvalidSignature"
	KindMalformedID            Kind = "MalformedId"
	KindNotFound               Kind = "NotFound"
	KindGatewayUnavailable     Kind = "GatewayUnavailable"
	KindConcurrentModification Kind = "ConcurrentModification"
	KindForbidden              Kind = "Forbidden"
	KindInternal               Kind = "Internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrValidation, KindValidation},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrInvalidSignature, KindInvalidSignature},
	{ErrMalformedID, KindMalformedID},
	{ErrNotFound, KindNotFound},
	{ErrGatewayUnavailable, KindGatewayUnavailable},
	{ErrConcurrentModification, KindConcurrentModification},
	{ErrForbidden, KindForbidden},
}

// KindOf returns the machine-readable kind of err.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
