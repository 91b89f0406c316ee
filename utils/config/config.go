// Package config loads runtime settings from the environment (optionally
// seeded from a .env file) and the fee table from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gigpay-bend/utils/fees"

	"github.com/joho/godotenv"
)

// Storage backends
const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

// Gateways
const (
	GatewayPayPal = "paypal"
	GatewayFake   = "fake"
)

// Mail holds the outgoing email settings
type Mail struct {
	MailgunDomain     string
	MailgunPrivateKey string
	From              string
	SMTPSender        string
	SMTPPassword      string
}

// Config ...
type Config struct {
	Env     string
	Port    string
	Storage string

	MongoURI  string
	MongoUser string
	MongoPass string
	MongoDB   string

	JWTSecret      string
	AdminTokenHash string

	Gateway            string
	PayPalClientID     string
	PayPalClientSecret string
	PayPalWebhookID    string
	FakeGatewaySecret  string
	GatewayTimeout     time.Duration

	ReconcileInterval time.Duration
	Pricing           fees.Pricing

	Mail                  Mail
	ServiceAccountKeyPath string

	// DotEnv reports whether a .env file was found
	DotEnv bool
}

// Dev reports whether the server runs in development mode
func (c Config) Dev() bool {
	return c.Env == "dev"
}

// Load reads .env (a missing file is fine) and then the environment
func Load() (Config, error) {
	found := godotenv.Load() == nil
	cfg, err := FromEnv(os.Getenv)
	cfg.DotEnv = found
	return cfg, err
}

// FromEnv builds a Config from getenv
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		Env:                get("ENV", "dev"),
		Port:               get("PORT", "8080"),
		Storage:            get("STORAGE", StorageMongo),
		MongoURI:           getenv("MONGO_URI"),
		MongoUser:          getenv("MONGO_USER"),
		MongoPass:          getenv("MONGO_PASS"),
		MongoDB:            get("MONGO_DB", "gigpay"),
		JWTSecret:          getenv("SECRET"),
		AdminTokenHash:     getenv("ADMIN_TOKEN_HASH"),
		Gateway:            get("GATEWAY", GatewayPayPal),
		PayPalClientID:     getenv("PAYPAL_CLIENT_ID"),
		PayPalClientSecret: getenv("PAYPAL_CLIENT_SECRET"),
		PayPalWebhookID:    getenv("PAYPAL_WEBHOOK_ID"),
		FakeGatewaySecret:  getenv("FAKE_GATEWAY_SECRET"),
		Mail: Mail{
			MailgunDomain:     getenv("MAILGUN_DOMAIN"),
			MailgunPrivateKey: getenv("MAILGUN_PRIVATE_KEY"),
			From:              get("MAIL_FROM", "GigPay <no-reply@gigpay.app>"),
			SMTPSender:        getenv("EMAIL_SENDER"),
			SMTPPassword:      getenv("EMAIL_SENDER_PASS"),
		},
		ServiceAccountKeyPath: getenv("SERVICE_ACCOUNT_KEY_PATH"),
	}

	var err error
	if cfg.GatewayTimeout, err = time.ParseDuration(get("GATEWAY_TIMEOUT", "15s")); err != nil {
		return cfg, fmt.Errorf("GATEWAY_TIMEOUT: %w", err)
	}
	if cfg.ReconcileInterval, err = time.ParseDuration(get("RECONCILE_INTERVAL", "1m")); err != nil {
		return cfg, fmt.Errorf("RECONCILE_INTERVAL: %w", err)
	}

	cfg.Pricing = fees.DefaultPricing()
	if path := getenv("PRICING_FILE"); path != "" {
		if cfg.Pricing, err = LoadPricing(path); err != nil {
			return cfg, err
		}
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Storage {
	case StorageMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI not set")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE %q", c.Storage)
	}

	switch c.Gateway {
	case GatewayPayPal:
		if c.PayPalClientID == "" || c.PayPalClientSecret == "" {
			return errors.New("PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET must be set")
		}
		if c.PayPalWebhookID == "" {
			return errors.New("PAYPAL_WEBHOOK_ID not set")
		}
	case GatewayFake:
		if !c.Dev() {
			return errors.New("the fake gateway is only allowed with ENV=dev")
		}
	default:
		return fmt.Errorf("unknown GATEWAY %q", c.Gateway)
	}

	if c.JWTSecret == "" {
		return errors.New("SECRET not set")
	}
	return nil
}
