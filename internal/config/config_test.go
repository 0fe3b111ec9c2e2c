package config

import (
	"testing"
	"time"

	"bookstore-payment/internal/infrastructure/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GATEWAY_SECRET_KEY", "s3cret")
	t.Setenv("JWT_SECRET", testJWTSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTP.Port)
	assert.Equal(t, GatewayEnvTest, cfg.Gateway.Environment)
	assert.Equal(t, 10*time.Second, cfg.Gateway.StatusTimeout)

	pc := cfg.PaymentConfig()
	assert.Equal(t, "EPAYTEST", pc.MerchantCode)
	assert.Equal(t, "s3cret", pc.SecretKey)
	assert.True(t, pc.TaxRate.Equal(decimal.RequireFromString("0.13")))
	assert.Equal(t, gatewayURLs[GatewayEnvTest].form, pc.FormURL)
	assert.Equal(t, gatewayURLs[GatewayEnvTest].status, pc.StatusURL)
	assert.Equal(t, payment.CallbackSignedFields, pc.CallbackFields)
	assert.Contains(t, pc.CallbackFields, "status")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GATEWAY_SECRET_KEY", "s3cret")
	t.Setenv("JWT_SECRET", testJWTSecret)
	t.Setenv("GATEWAY_ENV", GatewayEnvProduction)
	t.Setenv("GATEWAY_STATUS_URL", "http://127.0.0.1:9999/status")
	t.Setenv("GATEWAY_TAX_RATE", "0")
	t.Setenv("GATEWAY_CALLBACK_SIGNED_FIELDS", "transaction_code, status ,total_amount,transaction_uuid")

	cfg, err := Load()
	require.NoError(t, err)

	pc := cfg.PaymentConfig()
	assert.Equal(t, gatewayURLs[GatewayEnvProduction].form, pc.FormURL)
	assert.Equal(t, "http://127.0.0.1:9999/status", pc.StatusURL)
	assert.True(t, pc.TaxRate.IsZero())
	assert.Equal(t, []string{"transaction_code", "status", "total_amount", "transaction_uuid"}, pc.CallbackFields)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"GATEWAY_SECRET_KEY": ""}},
		{"unknown gateway env", map[string]string{"GATEWAY_ENV": "staging"}},
		{"tax rate not a number", map[string]string{"GATEWAY_TAX_RATE": "thirteen"}},
		{"tax rate too high", map[string]string{"GATEWAY_TAX_RATE": "1"}},
		{"tax rate negative", map[string]string{"GATEWAY_TAX_RATE": "-0.1"}},
		{"missing jwt secret", map[string]string{"JWT_SECRET": ""}},
		{"short jwt secret", map[string]string{"JWT_SECRET": "change-me"}},
		{"callback list without status", map[string]string{"GATEWAY_CALLBACK_SIGNED_FIELDS": "total_amount,transaction_uuid,product_code"}},
		{"callback list without total", map[string]string{"GATEWAY_CALLBACK_SIGNED_FIELDS": "status,transaction_uuid"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GATEWAY_SECRET_KEY", "x")
			t.Setenv("JWT_SECRET", testJWTSecret)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestDBURL(t *testing.T) {
	db := DB{Database: "shop", Password: "pw", Username: "app", Port: "5433", Host: "db", Schema: "public"}
	assert.Equal(t, "postgres://app:pw@db:5433/shop?sslmode=disable&search_path=public", db.URL())
}
