package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// setRequiredEnv sets the minimum environment for Load to succeed.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GOOGLE_CALDAV_URL", "https://dav.example.com")
	t.Setenv("PRACTICE_API_URL", "https://api.example.com")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.Environment != EnvProduction {
		t.Errorf("expected production default, got %s", cfg.Server.Environment)
	}
	if cfg.Database.Path != "./data/practicesync.db" {
		t.Errorf("unexpected default db path %q", cfg.Database.Path)
	}
	if cfg.Sync.Interval != 5*time.Minute {
		t.Errorf("expected default sync interval 5m, got %v", cfg.Sync.Interval)
	}
	if cfg.Sync.PushInterval != time.Minute {
		t.Errorf("expected default push interval 1m, got %v", cfg.Sync.PushInterval)
	}
	if cfg.RateLimiting.RPS != 10.0 || cfg.RateLimiting.Burst != 20 {
		t.Errorf("unexpected rate limit defaults: %+v", cfg.RateLimiting)
	}
	if cfg.Telemetry.OTLPEndpoint != "" {
		t.Errorf("telemetry should be disabled by default, got %q", cfg.Telemetry.OTLPEndpoint)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("GOOGLE_CALDAV_URL", "")
	t.Setenv("PRACTICE_API_URL", "")

	_, err := Load()
	if !errors.Is(err, ErrMissingConfig) {
		t.Fatalf("expected ErrMissingConfig, got %v", err)
	}
	if !strings.Contains(err.Error(), "GOOGLE_CALDAV_URL") || !strings.Contains(err.Error(), "PRACTICE_API_URL") {
		t.Errorf("expected both missing keys to be named: %v", err)
	}
}

func TestLoadOwnersList(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SYNC_OWNERS", "owner-1, owner-2,,owner-3 ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	want := []string{"owner-1", "owner-2", "owner-3"}
	if len(cfg.Sync.Owners) != len(want) {
		t.Fatalf("expected %d owners, got %v", len(want), cfg.Sync.Owners)
	}
	for i, owner := range want {
		if cfg.Sync.Owners[i] != owner {
			t.Errorf("owner %d: got %q, want %q", i, cfg.Sync.Owners[i], owner)
		}
	}
}

func TestLoadInvalidValues(t *testing.T) {
	t.Run("bad port", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("PORT", "not-a-number")
		if _, err := Load(); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("bad duration", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("SYNC_INTERVAL", "sometimes")
		if _, err := Load(); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("bad bool", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("OTLP_INSECURE", "maybe")
		if _, err := Load(); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("ENVIRONMENT", "Development")
	t.Setenv("SYNC_INTERVAL", "90s")
	t.Setenv("OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTLP_INSECURE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port override not applied: %d", cfg.Server.Port)
	}
	if !cfg.IsDevelopment() {
		t.Error("expected development environment (case-insensitive)")
	}
	if cfg.Sync.Interval != 90*time.Second {
		t.Errorf("interval override not applied: %v", cfg.Sync.Interval)
	}
	if cfg.Telemetry.OTLPEndpoint != "collector:4317" || !cfg.Telemetry.Insecure {
		t.Errorf("telemetry overrides not applied: %+v", cfg.Telemetry)
	}
}
