package config

import (
	"context"
	"errors"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIRESTORE_PROJECT_ID": "demo-project",
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(baseEnv()),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("unexpected port: %s", cfg.Server.Port)
	}
	if cfg.PubSub.ProjectID != "demo-project" {
		t.Fatalf("pubsub project should default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.TaskTopic != "order-tasks" {
		t.Fatalf("unexpected task topic: %s", cfg.PubSub.TaskTopic)
	}
	if cfg.Orders.ShippingCost != 30_000 {
		t.Fatalf("unexpected shipping cost: %d", cfg.Orders.ShippingCost)
	}
	if cfg.Orders.RefundWindow != 7*24*time.Hour {
		t.Fatalf("unexpected refund window: %s", cfg.Orders.RefundWindow)
	}
	if cfg.Orders.PendingExpiry != 15*time.Minute {
		t.Fatalf("unexpected pending expiry: %s", cfg.Orders.PendingExpiry)
	}
	if cfg.Workers.MaxAttempts != 5 {
		t.Fatalf("unexpected worker attempts: %d", cfg.Workers.MaxAttempts)
	}
	if cfg.Gateway.Version != "2.1.0" {
		t.Fatalf("unexpected gateway version: %s", cfg.Gateway.Version)
	}
	if cfg.Idempotency.Header != "Idempotency-Key" {
		t.Fatalf("unexpected idempotency header: %s", cfg.Idempotency.Header)
	}
}

func TestLoadOverridesFromEnvMap(t *testing.T) {
	env := baseEnv()
	env["API_SERVER_PORT"] = "9090"
	env["API_ORDERS_SHIPPING_COST"] = "45000"
	env["API_ORDERS_REFUND_WINDOW"] = "72h"
	env["API_ORDERS_PENDING_EXPIRY"] = "30m"
	env["API_WORKERS_MAX_ATTEMPTS"] = "3"
	env["API_PUBSUB_PROJECT_ID"] = "queues-project"
	env["API_GATEWAY_MERCHANT_CODE"] = "LUMEN01"

	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(env),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Fatalf("unexpected port: %s", cfg.Server.Port)
	}
	if cfg.Orders.ShippingCost != 45_000 {
		t.Fatalf("unexpected shipping cost: %d", cfg.Orders.ShippingCost)
	}
	if cfg.Orders.RefundWindow != 72*time.Hour {
		t.Fatalf("unexpected refund window: %s", cfg.Orders.RefundWindow)
	}
	if cfg.Orders.PendingExpiry != 30*time.Minute {
		t.Fatalf("unexpected pending expiry: %s", cfg.Orders.PendingExpiry)
	}
	if cfg.Workers.MaxAttempts != 3 {
		t.Fatalf("unexpected worker attempts: %d", cfg.Workers.MaxAttempts)
	}
	if cfg.PubSub.ProjectID != "queues-project" {
		t.Fatalf("unexpected pubsub project: %s", cfg.PubSub.ProjectID)
	}
	if cfg.Gateway.MerchantCode != "LUMEN01" {
		t.Fatalf("unexpected merchant code: %s", cfg.Gateway.MerchantCode)
	}
}

func TestLoadRejectsMissingProject(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{}),
	)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	found := false
	for _, field := range validation.Fields() {
		if field == "Firestore.ProjectID" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Firestore.ProjectID in %v", validation.Fields())
	}
}

func TestLoadResolvesGatewaySecret(t *testing.T) {
	env := baseEnv()
	env["API_GATEWAY_SECRET"] = "sm://projects/demo/secrets/gateway-key"

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref != "secret://projects/demo/secrets/gateway-key" {
			return "", errors.New("unexpected ref " + ref)
		}
		return "hmac-key-value", nil
	})

	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(env),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Gateway.Secret != "hmac-key-value" {
		t.Fatalf("secret was not resolved: %q", cfg.Gateway.Secret)
	}
}

func TestLoadSurfacesSecretErrors(t *testing.T) {
	env := baseEnv()
	env["API_GATEWAY_SECRET"] = "secret://projects/demo/secrets/gateway-key"

	resolver := SecretResolverFunc(func(context.Context, string) (string, error) {
		return "", errors.New("permission denied")
	})

	_, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(env),
		WithSecretResolver(resolver),
	)
	if err == nil {
		t.Fatal("expected secret error")
	}

	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://projects/demo/secrets/gateway-key" {
		t.Fatalf("unexpected ref: %s", secretErr.Ref)
	}
}

func TestLoadReportsMissingRequiredSecrets(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(baseEnv()),
		WithRequiredSecrets("Gateway.Secret"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error")
	}

	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	names := missing.Names()
	if len(names) != 1 || names[0] != "Gateway.Secret" {
		t.Fatalf("unexpected missing names: %v", names)
	}
	for _, redacted := range missing.RedactedNames() {
		if redacted == "Gateway.Secret" {
			t.Fatal("redacted names must not contain the raw identifier")
		}
	}
}

func TestLoadParsesHMACSecretMap(t *testing.T) {
	env := baseEnv()
	env["API_SECURITY_HMAC_SECRETS"] = "payments=topsecret, ops=othersecret"

	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(env),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Security.HMAC.Secrets["payments"] != "topsecret" {
		t.Fatalf("unexpected payments secret: %q", cfg.Security.HMAC.Secrets["payments"])
	}
	if cfg.Security.HMAC.Secrets["ops"] != "othersecret" {
		t.Fatalf("unexpected ops secret: %q", cfg.Security.HMAC.Secrets["ops"])
	}
}
