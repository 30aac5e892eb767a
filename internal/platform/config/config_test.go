package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "shopcore-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "shopcore-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Storefront.DefaultStoreCode != "DEFAULT" {
		t.Errorf("unexpected default store code: %s", cfg.Storefront.DefaultStoreCode)
	}
	if cfg.Storefront.DefaultCurrency != "USD" {
		t.Errorf("unexpected default currency: %s", cfg.Storefront.DefaultCurrency)
	}
	if cfg.Storefront.DefaultLanguage != "en" {
		t.Errorf("unexpected default language: %s", cfg.Storefront.DefaultLanguage)
	}
	if cfg.Storefront.CapturableWindow != 24*time.Hour {
		t.Errorf("unexpected default capturable window: %s", cfg.Storefront.CapturableWindow)
	}
	if !cfg.Features.EnablePromotions {
		t.Errorf("expected promotions enabled by default")
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupInterval != defaultIdempotencyInterval {
		t.Errorf("unexpected default cleanup interval: %s", cfg.Idempotency.CleanupInterval)
	}
	if cfg.Idempotency.CleanupBatchSize != defaultIdempotencyBatchSize {
		t.Errorf("unexpected default cleanup batch size: %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                  "9090",
		"API_SERVER_READ_TIMEOUT":          "20s",
		"API_SERVER_WRITE_TIMEOUT":         "25s",
		"API_SERVER_IDLE_TIMEOUT":          "2m",
		"API_FIREBASE_PROJECT_ID":          "shopcore-prod",
		"API_FIRESTORE_PROJECT_ID":         "shopcore-fire",
		"API_PSP_STRIPE_API_KEY":           "sk_test_123",
		"API_STORE_DEFAULT_CODE":           "emporium",
		"API_STORE_DEFAULT_CURRENCY":       "eur",
		"API_STORE_DEFAULT_LANGUAGE":       "de",
		"API_STORE_CAPTURABLE_WINDOW":      "48h",
		"API_FEATURE_PROMOTIONS":           "false",
		"API_IDEMPOTENCY_HEADER":           "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":              "48h",
		"API_IDEMPOTENCY_CLEANUP_INTERVAL": "30m",
		"API_IDEMPOTENCY_CLEANUP_BATCH":    "500",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Firestore.ProjectID != "shopcore-fire" {
		t.Errorf("unexpected firestore project: %s", cfg.Firestore.ProjectID)
	}
	if cfg.PSP.StripeAPIKey != "sk_test_123" {
		t.Errorf("unexpected stripe api key: %s", cfg.PSP.StripeAPIKey)
	}
	if cfg.Storefront.DefaultStoreCode != "EMPORIUM" {
		t.Errorf("expected upper-cased store code, got %s", cfg.Storefront.DefaultStoreCode)
	}
	if cfg.Storefront.DefaultCurrency != "EUR" {
		t.Errorf("expected upper-cased currency, got %s", cfg.Storefront.DefaultCurrency)
	}
	if cfg.Storefront.DefaultLanguage != "de" {
		t.Errorf("unexpected default language: %s", cfg.Storefront.DefaultLanguage)
	}
	if cfg.Storefront.CapturableWindow != 48*time.Hour {
		t.Errorf("unexpected capturable window: %s", cfg.Storefront.CapturableWindow)
	}
	if cfg.Features.EnablePromotions {
		t.Errorf("expected promotions flag disabled")
	}
	if cfg.Idempotency.Header != "X-Idem-Key" {
		t.Errorf("unexpected idempotency header %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency ttl %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupInterval != 30*time.Minute {
		t.Errorf("unexpected cleanup interval %s", cfg.Idempotency.CleanupInterval)
	}
	if cfg.Idempotency.CleanupBatchSize != 500 {
		t.Errorf("unexpected cleanup batch size %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nAPI_FIREBASE_PROJECT_ID=shopcore-dot\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "shopcore-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestLoadEnvMapPrecedence(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SERVER_PORT=7070\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	overrides := map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithEnvMap(overrides), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Firebase.ProjectID != "override-project" {
		t.Fatalf("expected override project, got %s", cfg.Firebase.ProjectID)
	}
	if cfg.Server.Port != "7070" {
		t.Fatalf("expected dotenv port fallback, got %s", cfg.Server.Port)
	}
}
