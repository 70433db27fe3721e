package config

import (
	"testing"
	"time"
)

func TestLoad_RequiredDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail when DATABASE_URL is empty")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("ACTIVATION_TTL", "")
	t.Setenv("SWEEP_INTERVAL", "")
	t.Setenv("CONDITION_CACHE_SIZE", "")
	t.Setenv("AUTH_RATE_LIMIT", "")
	t.Setenv("MAX_JSON_BODY_SIZE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.ActivationTTL != 24*time.Hour {
		t.Errorf("ActivationTTL = %v, want 24h", cfg.ActivationTTL)
	}
	if cfg.SweepInterval != time.Minute {
		t.Errorf("SweepInterval = %v, want 1m", cfg.SweepInterval)
	}
	if cfg.ConditionCacheSize != 1024 {
		t.Errorf("ConditionCacheSize = %d, want 1024", cfg.ConditionCacheSize)
	}
	if cfg.AuthRateLimit != 10 {
		t.Errorf("AuthRateLimit = %d, want 10", cfg.AuthRateLimit)
	}
	if cfg.MaxJSONBodySize != 1<<20 {
		t.Errorf("MaxJSONBodySize = %d, want %d", cfg.MaxJSONBodySize, 1<<20)
	}
}

func TestLoad_ActivationTTL_Invalid(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("ACTIVATION_TTL", "not-a-duration")
	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail for invalid ACTIVATION_TTL")
	}
}

func TestLoad_ActivationTTL_Zero(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("ACTIVATION_TTL", "0s")
	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail for zero ACTIVATION_TTL")
	}
}

func TestLoad_ActivationTTL_Negative(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("ACTIVATION_TTL", "-1h")
	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail for negative ACTIVATION_TTL")
	}
}

func TestLoad_SweepInterval_Invalid(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("SWEEP_INTERVAL", "soon")
	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail for invalid SWEEP_INTERVAL")
	}
}

func TestLoad_ConditionCacheSize_Invalid(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("CONDITION_CACHE_SIZE", "0")
	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail for non-positive CONDITION_CACHE_SIZE")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("HTTP_ADDR", ":3000")
	t.Setenv("ACTIVATION_TTL", "2h")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("CONDITION_CACHE_SIZE", "64")
	t.Setenv("AUTH_RATE_LIMIT", "25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTPAddr != ":3000" {
		t.Errorf("HTTPAddr = %q, want :3000", cfg.HTTPAddr)
	}
	if cfg.ActivationTTL != 2*time.Hour {
		t.Errorf("ActivationTTL = %v, want 2h", cfg.ActivationTTL)
	}
	if cfg.SweepInterval != 30*time.Second {
		t.Errorf("SweepInterval = %v, want 30s", cfg.SweepInterval)
	}
	if cfg.ConditionCacheSize != 64 {
		t.Errorf("ConditionCacheSize = %d, want 64", cfg.ConditionCacheSize)
	}
	if cfg.AuthRateLimit != 25 {
		t.Errorf("AuthRateLimit = %d, want 25", cfg.AuthRateLimit)
	}
}

func TestLoad_MaxJSONBodySize_Invalid(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("MAX_JSON_BODY_SIZE", "-1")
	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail for non-positive MAX_JSON_BODY_SIZE")
	}
}

func TestEnvOrDefault_EmptyReturnsDefault(t *testing.T) {
	t.Setenv("TEST_KEY", "")
	got := envOrDefault("TEST_KEY", "fallback")
	if got != "fallback" {
		t.Errorf("envOrDefault() = %q, want %q", got, "fallback")
	}
}

func TestEnvOrDefault_WhitespaceReturnsDefault(t *testing.T) {
	t.Setenv("TEST_KEY", "   ")
	got := envOrDefault("TEST_KEY", "fallback")
	if got != "fallback" {
		t.Errorf("envOrDefault() = %q, want %q", got, "fallback")
	}
}

func TestEnvOrDefault_ValueReturnsValue(t *testing.T) {
	t.Setenv("TEST_KEY", " value ")
	got := envOrDefault("TEST_KEY", "fallback")
	if got != "value" {
		t.Errorf("envOrDefault() = %q, want %q", got, "value")
	}
}
