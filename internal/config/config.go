package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"bookstore-payment/internal/infrastructure/payment"

	"github.com/ilyakaznacheev/cleanenv"
	_ "github.com/joho/godotenv/autoload"
	"github.com/shopspring/decimal"
)

const (
	GatewayEnvTest       = "test"
	GatewayEnvProduction = "production"
)

const minJWTSecretLen = 32

var gatewayURLs = map[string]struct{ form, status string }{
	GatewayEnvTest: {
		form:   "https://rc-epay.esewa.com.np/api/epay/main/v2/form",
		status: "https://rc.esewa.com.np/api/epay/transaction/status/",
	},
	GatewayEnvProduction: {
		form:   "https://epay.esewa.com.np/api/epay/main/v2/form",
		status: "https://epay.esewa.com.np/api/epay/transaction/status/",
	},
}

type Config struct {
	Env      string `env:"APP_ENV" env-default:"local"`
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`
	HTTP     HTTP
	DB       DB
	Gateway  Gateway
	Auth     Auth
}

type HTTP struct {
	Port        string   `env:"HTTP_PORT" env-default:":8080"`
	CORSOrigins []string `env:"CORS_ORIGINS" env-separator:"," env-default:"http://localhost:3000"`
}

// DB keeps the BLUEPRINT_DB_* names used by the deployment scripts.
type DB struct {
	Database string `env:"BLUEPRINT_DB_DATABASE" env-default:"bookstore"`
	Password string `env:"BLUEPRINT_DB_PASSWORD"`
	Username string `env:"BLUEPRINT_DB_USERNAME" env-default:"postgres"`
	Port     string `env:"BLUEPRINT_DB_PORT" env-default:"5432"`
	Host     string `env:"BLUEPRINT_DB_HOST" env-default:"localhost"`
	Schema   string `env:"BLUEPRINT_DB_SCHEMA" env-default:"public"`
}

func (d DB) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.Schema,
	)
}

type Gateway struct {
	Environment          string        `env:"GATEWAY_ENV" env-default:"test"`
	MerchantCode         string        `env:"GATEWAY_MERCHANT_CODE" env-default:"EPAYTEST"`
	SecretKey            string        `env:"GATEWAY_SECRET_KEY"`
	TaxRate              string        `env:"GATEWAY_TAX_RATE" env-default:"0.13"`
	FormURL              string        `env:"GATEWAY_FORM_URL"`
	StatusURL            string        `env:"GATEWAY_STATUS_URL"`
	StatusTimeout        time.Duration `env:"GATEWAY_STATUS_TIMEOUT" env-default:"10s"`
	CallbackSignedFields []string      `env:"GATEWAY_CALLBACK_SIGNED_FIELDS" env-separator:"," env-default:"transaction_code,status,total_amount,transaction_uuid,product_code,success_url,signed_field_names"`
	CallbackBaseURL      string        `env:"CALLBACK_BASE_URL" env-default:"http://localhost:8080"`
}

type Auth struct {
	JWTSecret string `env:"JWT_SECRET"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("error reading config: %v", err)
	}
	return cfg
}

func (c *Config) validate() error {
	if _, ok := gatewayURLs[c.Gateway.Environment]; !ok {
		return fmt.Errorf("GATEWAY_ENV must be %q or %q, got %q", GatewayEnvTest, GatewayEnvProduction, c.Gateway.Environment)
	}
	if c.Gateway.SecretKey == "" {
		return fmt.Errorf("GATEWAY_SECRET_KEY is required")
	}
	rate, err := decimal.NewFromString(c.Gateway.TaxRate)
	if err != nil {
		return fmt.Errorf("GATEWAY_TAX_RATE: %w", err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("GATEWAY_TAX_RATE must be in [0, 1), got %s", rate)
	}
	if err := payment.ValidateCallbackFields(c.callbackFields()); err != nil {
		return fmt.Errorf("GATEWAY_CALLBACK_SIGNED_FIELDS: %w", err)
	}
	if len(c.Auth.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLen)
	}
	return nil
}

func (c *Config) callbackFields() []string {
	fields := make([]string, 0, len(c.Gateway.CallbackSignedFields))
	for _, f := range c.Gateway.CallbackSignedFields {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// PaymentConfig resolves the gateway settings into the immutable value the
// payment components are built from.
func (c *Config) PaymentConfig() payment.Config {
	urls := gatewayURLs[c.Gateway.Environment]
	formURL, statusURL := urls.form, urls.status
	if c.Gateway.FormURL != "" {
		formURL = c.Gateway.FormURL
	}
	if c.Gateway.StatusURL != "" {
		statusURL = c.Gateway.StatusURL
	}

	return payment.Config{
		MerchantCode:   c.Gateway.MerchantCode,
		SecretKey:      c.Gateway.SecretKey,
		TaxRate:        decimal.RequireFromString(c.Gateway.TaxRate),
		FormURL:        formURL,
		StatusURL:      statusURL,
		CallbackFields: c.callbackFields(),
	}
}
