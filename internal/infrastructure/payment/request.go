package payment

import (
	"fmt"
	"net/url"
	"strings"

	"bookstore-payment/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = fmt.Errorf("%w: invalid amount", domain.ErrValidation)

// RequestSignedFields are the fields signed on an outbound payment request,
// in signing order.
var RequestSignedFields = []string{"total_amount", "transaction_uuid", "product_code"}

// Config is the gateway configuration shared by the builder, the verifier and
// the status client. It is read once at startup and never mutated.
type Config struct {
	MerchantCode   string
	SecretKey      string
	TaxRate        decimal.Decimal
	FormURL        string
	StatusURL      string
	CallbackFields []string
}

// PaymentRequest is the form the client posts to the gateway.
type PaymentRequest struct {
	FormURL               string `json:"formUrl"`
	Amount                string `json:"amount"`
	TaxAmount             string `json:"tax_amount"`
	TotalAmount           string `json:"total_amount"`
	TransactionUUID       string `json:"transaction_uuid"`
	ProductCode           string `json:"product_code"`
	ProductServiceCharge  string `json:"product_service_charge"`
	ProductDeliveryCharge string `json:"product_delivery_charge"`
	SuccessURL            string `json:"success_url"`
	FailureURL            string `json:"failure_url"`
	SignedFieldNames      string `json:"signed_field_names"`
	Signature             string `json:"signature"`
}

func (r *PaymentRequest) Values() map[string]string {
	return map[string]string{
		"amount":                  r.Amount,
		"tax_amount":              r.TaxAmount,
		"total_amount":            r.TotalAmount,
		"transaction_uuid":        r.TransactionUUID,
		"product_code":            r.ProductCode,
		"product_service_charge":  r.ProductServiceCharge,
		"product_delivery_charge": r.ProductDeliveryCharge,
		"success_url":             r.SuccessURL,
		"failure_url":             r.FailureURL,
		"signed_field_names":      r.SignedFieldNames,
		"signature":               r.Signature,
	}
}

func (r *PaymentRequest) Form() url.Values {
	form := url.Values{}
	for k, v := range r.Values() {
		form.Set(k, v)
	}
	return form
}

type RequestBuilder struct {
	cfg Config
}

func NewRequestBuilder(cfg Config) *RequestBuilder {
	return &RequestBuilder{cfg: cfg}
}

// SplitTax returns the pre-tax amount and the tax contained in total.
func SplitTax(total, rate decimal.Decimal) (amount, tax decimal.Decimal) {
	tax = total.Mul(rate).Round(2)
	return total.Sub(tax), tax
}

func (b *RequestBuilder) Build(order *domain.Order, successURL, failureURL string) (*PaymentRequest, error) {
	if order == nil || order.TotalPrice.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if order.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: order has no id", domain.ErrValidation)
	}

	amount, tax := SplitTax(order.TotalPrice, b.cfg.TaxRate)
	req := &PaymentRequest{
		FormURL:               b.cfg.FormURL,
		Amount:                amount.String(),
		TaxAmount:             tax.String(),
		TotalAmount:           order.TotalPrice.String(),
		TransactionUUID:       order.ID.String(),
		ProductCode:           b.cfg.MerchantCode,
		ProductServiceCharge:  "0",
		ProductDeliveryCharge: "0",
		SuccessURL:            successURL,
		FailureURL:            failureURL,
		SignedFieldNames:      strings.Join(RequestSignedFields, ","),
	}

	values := req.Values()
	fields := make([]Field, 0, len(RequestSignedFields))
	for _, name := range RequestSignedFields {
		fields = append(fields, Field{Name: name, Value: values[name]})
	}
	signature, err := Sign(fields, b.cfg.SecretKey)
	if err != nil {
		return nil, err
	}
	req.Signature = signature
	return req, nil
}
