package domain

import (
	"strings"
	"time"
)

type PaymentMethod string

const (
	PaymentCashOnDelivery  PaymentMethod = "CashOnDelivery"
	PaymentCreditCard      PaymentMethod = "CreditCard"
	PaymentDebitCard       PaymentMethod = "DebitCard"
	PaymentPayPal          PaymentMethod = "PayPal"
	PaymentExternalGateway PaymentMethod = "ExternalGateway"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCashOnDelivery, PaymentCreditCard, PaymentDebitCard, PaymentPayPal, PaymentExternalGateway:
		return true
	}
	return false
}

// PaymentStatus is the gateway-side view of a payment. It is tracked apart
// from OrderStatus and the two are allowed to differ.
type PaymentStatus string

const (
	PaymentInitiated PaymentStatus = "initiated"
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentCanceled  PaymentStatus = "canceled"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// GatewayComplete is the status string the gateway uses for a settled payment.
const GatewayComplete = "COMPLETE"

// PaymentStatusFromGateway maps a raw gateway status onto the reference
// status. COMPLETE becomes completed; anything else is lower-cased as is.
func PaymentStatusFromGateway(status string) PaymentStatus {
	if strings.EqualFold(status, GatewayComplete) {
		return PaymentCompleted
	}
	return PaymentStatus(strings.ToLower(strings.TrimSpace(status)))
}

type PaymentReference struct {
	Method        PaymentMethod `json:"method"`
	TransactionID string        `json:"transactionId"`
	ReferenceID   string        `json:"referenceId,omitempty"`
	Status        PaymentStatus `json:"status"`
	CompletedAt   *time.Time    `json:"completedAt,omitempty"`
	UpdatedAt     *time.Time    `json:"updatedAt,omitempty"`
}

// Merge overlays the non-empty fields of other onto a copy of r.
func (r PaymentReference) Merge(other PaymentReference) PaymentReference {
	out := r
	if other.Method != "" {
		out.Method = other.Method
	}
	if other.TransactionID != "" {
		out.TransactionID = other.TransactionID
	}
	if other.ReferenceID != "" {
		out.ReferenceID = other.ReferenceID
	}
	if other.Status != "" {
		out.Status = other.Status
	}
	if other.CompletedAt != nil {
		out.CompletedAt = other.CompletedAt
	}
	if other.UpdatedAt != nil {
		out.UpdatedAt = other.UpdatedAt
	}
	return out
}

// PaymentEvent is an audit record of one exchange with the gateway.
type PaymentEvent struct {
	ID            int64
	OrderID       string
	Source        PaymentEventSource
	GatewayStatus string
	ReferenceID   string
	Accepted      bool
	Detail        string
	CreatedAt     time.Time
}

type PaymentEventSource string

const (
	EventSourceInitiate PaymentEventSource = "initiate"
	EventSourceCallback PaymentEventSource = "callback"
	EventSourcePoll     PaymentEventSource = "poll"
)
