package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/tripnest/paycore/internal/config"
	"github.com/tripnest/paycore/internal/payment"
)

func TestPaymentConfigValidatorModeMismatch(t *testing.T) {
	validator := NewPaymentConfigValidator(config.PaymentConfig{
		SecretKey:      "sk_live_abc123",
		PublishableKey: "pk_test_def456",
	}, "production")

	result := validator.Validate()
	if result.Valid {
		t.Fatalf("expected invalid result")
	}
	found := false
	for _, msg := range result.Errors {
		if strings.Contains(msg, "mismatch") && strings.Contains(msg, "secret key is live") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected mismatch error, got %v", result.Errors)
	}
	if !errors.Is(result.Err(), payment.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", result.Err())
	}
	if _, err := validator.ValidateAndLog(); !errors.Is(err, payment.ErrConfiguration) {
		t.Fatalf("expected startup to be refused, got %v", err)
	}
}

func TestPaymentConfigValidatorMissingAndMalformedKeys(t *testing.T) {
	result := NewPaymentConfigValidator(config.PaymentConfig{}, "development").Validate()
	if result.Valid || len(result.Errors) != 2 {
		t.Fatalf("expected two missing key errors, got %+v", result)
	}

	result = NewPaymentConfigValidator(config.PaymentConfig{
		SecretKey:      "pk_test_wrongslot",
		PublishableKey: "sk_test_wrongslot",
	}, "development").Validate()
	if result.Valid || len(result.Errors) != 2 {
		t.Fatalf("expected prefix errors, got %+v", result)
	}
	for _, msg := range result.Errors {
		if strings.Contains(msg, "wrongslot") {
			t.Fatalf("errors must not echo key material: %s", msg)
		}
	}
}

func TestPaymentConfigValidatorWarnings(t *testing.T) {
	cases := []struct {
		name        string
		secret      string
		publishable string
		environment string
		mode        payment.Mode
		warnings    int
		contains    string
	}{
		{name: "production with test keys", secret: "sk_test_1", publishable: "pk_test_1", environment: "production", mode: payment.ModeTest, warnings: 1, contains: "no real charges"},
		{name: "development with live keys", secret: "sk_live_1", publishable: "pk_live_1", environment: "development", mode: payment.ModeLive, warnings: 1, contains: "real funds"},
		{name: "production with live keys", secret: "sk_live_1", publishable: "pk_live_1", environment: "production", mode: payment.ModeLive},
		{name: "staging with test keys", secret: "rk_test_1", publishable: "pk_test_1", environment: "Staging", mode: payment.ModeTest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := NewPaymentConfigValidator(config.PaymentConfig{
				SecretKey:      tc.secret,
				PublishableKey: tc.publishable,
			}, tc.environment).ValidateAndLog()
			if err != nil || !result.Valid {
				t.Fatalf("expected valid config, got %+v err=%v", result, err)
			}
			if result.Mode != tc.mode {
				t.Fatalf("unexpected mode: %s", result.Mode)
			}
			if len(result.Warnings) != tc.warnings {
				t.Fatalf("unexpected warnings: %v", result.Warnings)
			}
			if tc.contains != "" && !strings.Contains(result.Warnings[0], tc.contains) {
				t.Fatalf("unexpected warning text: %s", result.Warnings[0])
			}
		})
	}
}
