package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrEncoding = errors.New("malformed signed field")

// Field is one name=value pair of a signed message.
type Field struct {
	Name  string
	Value string
}

// Canonical joins the fields as name=value, comma separated, in the order
// given. The order is part of the signature.
func Canonical(fields []Field) (string, error) {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Name == "" || strings.ContainsAny(f.Name, ",=") {
			return "", fmt.Errorf("%w: field name %q", ErrEncoding, f.Name)
		}
		parts = append(parts, f.Name+"="+f.Value)
	}
	return strings.Join(parts, ","), nil
}

func Sign(fields []Field, secret string) (string, error) {
	canonical, err := Canonical(fields)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

func Verify(fields []Field, signature, secret string) (bool, error) {
	expected, err := Sign(fields, secret)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(expected), []byte(signature)), nil
}

// FieldsFromMap picks the named fields out of an untyped payload, keeping
// the order of names.
func FieldsFromMap(payload map[string]any, names []string) ([]Field, error) {
	fields := make([]Field, 0, len(names))
	for _, name := range names {
		raw, ok := payload[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingFields, name)
		}
		value, err := stringValue(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrEncoding, name, err)
		}
		fields = append(fields, Field{Name: name, Value: value})
	}
	return fields, nil
}

func stringValue(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	default:
		return "", fmt.Errorf("value of type %T is not a string", v)
	}
}
