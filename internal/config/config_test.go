package config

import (
	"strings"
	"testing"
	"time"
)

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("BASE_URL", "https://example.ngrok.io/")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")
	t.Setenv("TWILIO_PHONE_NUMBER", "+10000000000")
	t.Setenv("TELEGRAM_BOT_TOKEN", "bot-token")
	t.Setenv("TELEGRAM_CHAT_ID", "-100123456")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("OPERATOR_PASSWORD", "hunter2")

	// Unrelated vars from the host environment must not leak in.
	t.Setenv("SESSION_BACKEND", "")
	t.Setenv("SESSION_FILE", "")
	t.Setenv("POLL_INTERVAL_SECONDS", "")
	t.Setenv("FLOW_RETRY_LIMIT", "")
	t.Setenv("FLOW_CORRECTION_LIMIT", "")
	t.Setenv("FLOW_WAIT_SECONDS", "")
	t.Setenv("NOTIFY_SUPPRESS_WINDOW", "")
	t.Setenv("NOTIFY_GATE_TTL", "")
	t.Setenv("JWT_ACCESS_TTL", "")
}

func TestLoad_DefaultsApply(t *testing.T) {
	setValidEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if cfg.App.BaseURL != "https://example.ngrok.io" {
		t.Fatalf("base url must lose its trailing slash, got %q", cfg.App.BaseURL)
	}
	if cfg.Telegram.BroadcastChatID != -100123456 {
		t.Fatalf("chat id mismatch: %d", cfg.Telegram.BroadcastChatID)
	}
	if cfg.Telegram.PollInterval != time.Second {
		t.Fatalf("expected 1s default poll interval, got %v", cfg.Telegram.PollInterval)
	}
	if cfg.Session.Backend != SessionBackendFile || cfg.Session.FilePath != "sessions.json" {
		t.Fatalf("expected file backend defaults, got %+v", cfg.Session)
	}
	if cfg.Flow.RetryLimit != 8 || cfg.Flow.CorrectionLimit != 3 || cfg.Flow.WaitSeconds != 10 {
		t.Fatalf("flow defaults mismatch: %+v", cfg.Flow)
	}
	if cfg.Flow.NotifySuppressWindow != 30*time.Second || cfg.Flow.NotifyGateTTL != 5*time.Minute {
		t.Fatalf("notify defaults mismatch: %+v", cfg.Flow)
	}
	if cfg.HTTPAddr() != ":8080" {
		t.Fatalf("http addr mismatch: %q", cfg.HTTPAddr())
	}
}

func TestLoad_DurationsAcceptBareSeconds(t *testing.T) {
	setValidEnv(t)
	t.Setenv("POLL_INTERVAL_SECONDS", "2")
	t.Setenv("NOTIFY_SUPPRESS_WINDOW", "45s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.Telegram.PollInterval != 2*time.Second {
		t.Fatalf("bare seconds not honored: %v", cfg.Telegram.PollInterval)
	}
	if cfg.Flow.NotifySuppressWindow != 45*time.Second {
		t.Fatalf("duration string not honored: %v", cfg.Flow.NotifySuppressWindow)
	}
}

func TestLoad_AggregatesMissingVars(t *testing.T) {
	setValidEnv(t)
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, want := range []string{"TWILIO_ACCOUNT_SID", "TELEGRAM_BOT_TOKEN", "JWT_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error must name %s, got: %v", want, err)
		}
	}
}

func TestLoad_RedisBackendNeedsHost(t *testing.T) {
	setValidEnv(t)
	t.Setenv("SESSION_BACKEND", "redis")
	t.Setenv("REDIS_HOST", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "REDIS_HOST") {
		t.Fatalf("expected REDIS_HOST error, got: %v", err)
	}

	t.Setenv("REDIS_HOST", "localhost")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.RedisAddr() != "localhost:6379" {
		t.Fatalf("redis addr mismatch: %q", cfg.RedisAddr())
	}
}

func TestLoad_PostgresBackend(t *testing.T) {
	setValidEnv(t)
	t.Setenv("SESSION_BACKEND", "postgres")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_USER", "callflow")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_NAME", "callflow")
	t.Setenv("DB_SSLMODE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !strings.Contains(cfg.PostgresDSN(), "sslmode=disable") {
		t.Fatalf("non-production defaults to sslmode=disable: %q", cfg.PostgresDSN())
	}

	// Production refuses an implicit ssl mode.
	t.Setenv("APP_ENV", "production")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "DB_SSLMODE") {
		t.Fatalf("expected DB_SSLMODE error in production, got: %v", err)
	}
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	setValidEnv(t)
	t.Setenv("SESSION_BACKEND", "dynamo")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "SESSION_BACKEND") {
		t.Fatalf("expected SESSION_BACKEND error, got: %v", err)
	}
}

func TestLoad_GateTTLShorterThanWindowRefused(t *testing.T) {
	setValidEnv(t)
	t.Setenv("NOTIFY_SUPPRESS_WINDOW", "10m")
	t.Setenv("NOTIFY_GATE_TTL", "1m")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "NOTIFY_GATE_TTL") {
		t.Fatalf("expected gate TTL error, got: %v", err)
	}
}
