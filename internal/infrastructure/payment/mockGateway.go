package payment

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"

	"bookstore-payment/internal/domain"

	"github.com/google/uuid"
)

// Outcome is what the fake gateway does with a submitted payment.
type Outcome int

const (
	// OutcomeComplete settles the payment and delivers the callback.
	OutcomeComplete Outcome = iota
	// OutcomeCanceled declines the payment and delivers the callback.
	OutcomeCanceled
	// OutcomeLostCallback settles the payment but the callback never
	// arrives. Only a status poll can find it.
	OutcomeLostCallback
)

var ErrUnknownTransaction = errors.New("unknown transaction")

type fakeTransaction struct {
	totalAmount string
	successURL  string
	status      string
	refID       string
}

// FakeGateway is an in-process gateway speaking the signed form/callback
// protocol and serving the status endpoint. Used by the simulator and tests.
type FakeGateway struct {
	mu             sync.RWMutex
	merchantCode   string
	secret         string
	callbackFields []string
	transactions   map[string]*fakeTransaction
	roll           func() Outcome
}

func NewFakeGateway(cfg Config) *FakeGateway {
	return &FakeGateway{
		merchantCode:   cfg.MerchantCode,
		secret:         cfg.SecretKey,
		callbackFields: callbackFields(cfg),
		transactions:   make(map[string]*fakeTransaction),
		roll:           randomOutcome,
	}
}

// WithOutcome fixes the outcome of every following submission.
func (g *FakeGateway) WithOutcome(o Outcome) *FakeGateway {
	g.mu.Lock()
	g.roll = func() Outcome { return o }
	g.mu.Unlock()
	return g
}

func randomOutcome() Outcome {
	chance := rand.IntN(100)
	switch {
	case chance < 70:
		return OutcomeComplete
	case chance < 90:
		return OutcomeCanceled
	default:
		return OutcomeLostCallback
	}
}

// Submit plays the customer's redirect to the gateway form. It returns the
// callback payload the gateway would post back, or nil when the callback
// is lost. Resubmitting a known transaction returns its recorded result.
func (g *FakeGateway) Submit(req *PaymentRequest) (map[string]any, error) {
	values := req.Values()
	names := strings.Split(req.SignedFieldNames, ",")
	fields := make([]Field, 0, len(names))
	for _, name := range names {
		fields = append(fields, Field{Name: name, Value: values[name]})
	}
	ok, err := Verify(fields, req.Signature, g.secret)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidSignature
	}

	g.mu.Lock()
	if txn, exists := g.transactions[req.TransactionUUID]; exists {
		g.mu.Unlock()
		return g.callback(req.TransactionUUID, txn)
	}
	outcome := g.roll()
	txn := &fakeTransaction{totalAmount: req.TotalAmount, successURL: req.SuccessURL, refID: strings.ToUpper(uuid.NewString()[:8])}
	switch outcome {
	case OutcomeCanceled:
		txn.status = "CANCELED"
	default:
		txn.status = "COMPLETE"
	}
	g.transactions[req.TransactionUUID] = txn
	g.mu.Unlock()

	if outcome == OutcomeLostCallback {
		return nil, nil
	}
	return g.callback(req.TransactionUUID, txn)
}

// SetStatus overrides the gateway-side status of a transaction.
func (g *FakeGateway) SetStatus(transactionUUID, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if txn, ok := g.transactions[transactionUUID]; ok {
		txn.status = status
	}
}

// Callback returns a freshly signed callback for a known transaction.
func (g *FakeGateway) Callback(transactionUUID string) (map[string]any, error) {
	g.mu.RLock()
	txn, ok := g.transactions[transactionUUID]
	g.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownTransaction
	}
	return g.callback(transactionUUID, txn)
}

func (g *FakeGateway) callback(transactionUUID string, txn *fakeTransaction) (map[string]any, error) {
	g.mu.RLock()
	values := map[string]string{
		"transaction_code":   txn.refID,
		"ref_id":             txn.refID,
		"status":             txn.status,
		"total_amount":       txn.totalAmount,
		"transaction_uuid":   transactionUUID,
		"product_code":       g.merchantCode,
		"success_url":        txn.successURL,
		"signed_field_names": strings.Join(g.callbackFields, ","),
	}
	g.mu.RUnlock()

	fields := make([]Field, 0, len(g.callbackFields))
	for _, name := range g.callbackFields {
		fields = append(fields, Field{Name: name, Value: values[name]})
	}
	signature, err := Sign(fields, g.secret)
	if err != nil {
		return nil, err
	}

	payload := make(map[string]any, len(values)+1)
	for k, v := range values {
		payload[k] = v
	}
	payload["signature"] = signature
	return payload, nil
}

// ServeHTTP answers the status endpoint.
func (g *FakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	transactionUUID := q.Get("transaction_uuid")

	g.mu.RLock()
	txn, ok := g.transactions[transactionUUID]
	var result StatusResult
	if ok {
		result = StatusResult{
			Status:          txn.status,
			RefID:           txn.refID,
			TransactionUUID: transactionUUID,
			ProductCode:     g.merchantCode,
		}
	}
	g.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok || q.Get("product_code") != g.merchantCode {
		result = StatusResult{Status: "NOT_FOUND", TransactionUUID: transactionUUID, ProductCode: q.Get("product_code")}
	}
	_ = json.NewEncoder(w).Encode(result)
}
