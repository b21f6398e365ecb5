package config

import (
	"fmt"
	"time"
)

type PaymentConfig struct {
	Stripe   *StripeConfig   `yaml:"stripe"`
	Razorpay *RazorpayConfig `yaml:"razorpay"`
	// WebhookDedupTTL is how long a processed webhook event id is remembered.
	WebhookDedupTTL time.Duration `yaml:"webhook_dedup_ttl"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type RazorpayConfig struct {
	KeyID     string `yaml:"key_id"`
	KeySecret string `yaml:"key_secret"`
	Webhook   string `yaml:"webhook_secret"`
}

func loadPaymentConfig() *PaymentConfig {
	return &PaymentConfig{
		Stripe: &StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		Razorpay: &RazorpayConfig{
			KeyID:     getEnv("RAZORPAY_KEY_ID", ""),
			KeySecret: getEnv("RAZORPAY_KEY_SECRET", ""),
			Webhook:   getEnv("RAZORPAY_WEBHOOK_SECRET", ""),
		},
		WebhookDedupTTL: getEnvAsDuration("PAYMENT_WEBHOOK_DEDUP_TTL", 72*time.Hour),
	}
}

func (c *PaymentConfig) validate() error {
	if c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}
	if (c.Razorpay.KeyID == "") != (c.Razorpay.KeySecret == "") {
		return fmt.Errorf("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET must be set together")
	}
	if c.WebhookDedupTTL <= 0 {
		return fmt.Errorf("PAYMENT_WEBHOOK_DEDUP_TTL must be positive")
	}
	return nil
}
