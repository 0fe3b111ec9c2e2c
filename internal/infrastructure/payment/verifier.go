package payment

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrMissingFields    = errors.New("missing signed fields")
	ErrFieldSetMismatch = errors.New("signed field set does not match protocol")
	ErrUnsignedStatus   = errors.New("callback field list must sign status")
)

// CallbackSignedFields is the list the gateway signs on its callback, in
// signing order.
var CallbackSignedFields = []string{
	"transaction_code", "status", "total_amount", "transaction_uuid",
	"product_code", "success_url", "signed_field_names",
}

// ValidateCallbackFields rejects callback field lists that leave the payment
// status or the order binding unsigned. The request signature covers
// total_amount, transaction_uuid and product_code, so a list without status
// would accept that signature replayed with any status.
func ValidateCallbackFields(fields []string) error {
	if !slices.Contains(fields, "status") {
		return ErrUnsignedStatus
	}
	for _, name := range []string{"total_amount", "transaction_uuid"} {
		if !slices.Contains(fields, name) {
			return fmt.Errorf("%w: callback field list must sign %s", ErrMissingFields, name)
		}
	}
	return nil
}

// Verifier checks inbound gateway callbacks. The accepted field list is
// fixed at construction; a callback declaring any other list is rejected
// before its signature is computed.
type Verifier struct {
	secret string
	fields []string
}

func NewVerifier(cfg Config) *Verifier {
	return &Verifier{secret: cfg.SecretKey, fields: callbackFields(cfg)}
}

// callbackFields is the configured callback list, or the gateway's own when
// none is set.
func callbackFields(cfg Config) []string {
	if len(cfg.CallbackFields) == 0 {
		return slices.Clone(CallbackSignedFields)
	}
	return slices.Clone(cfg.CallbackFields)
}

func (v *Verifier) Verify(payload map[string]any) (bool, error) {
	declared, ok := payload["signed_field_names"]
	if !ok {
		return false, fmt.Errorf("%w: signed_field_names", ErrMissingFields)
	}
	provided, ok := payload["signature"]
	if !ok {
		return false, fmt.Errorf("%w: signature", ErrMissingFields)
	}
	declaredStr, err := stringValue(declared)
	if err != nil {
		return false, fmt.Errorf("%w: signed_field_names: %v", ErrEncoding, err)
	}
	signature, err := stringValue(provided)
	if err != nil {
		return false, fmt.Errorf("%w: signature: %v", ErrEncoding, err)
	}

	names := strings.Split(declaredStr, ",")
	for i := range names {
		names[i] = strings.TrimSpace(names[i])
	}
	fields, err := FieldsFromMap(payload, names)
	if err != nil {
		return false, err
	}
	if !slices.Equal(names, v.fields) {
		return false, fmt.Errorf("%w: got %q", ErrFieldSetMismatch, declaredStr)
	}

	return Verify(fields, signature, v.secret)
}
