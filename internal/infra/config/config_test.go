package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.App.Port)
	}
	if cfg.Store.Backend != "memory" {
		t.Fatalf("expected default backend memory, got %q", cfg.Store.Backend)
	}
	if cfg.Store.SweepInterval != time.Minute {
		t.Fatalf("expected default sweep interval 1m, got %v", cfg.Store.SweepInterval)
	}

	cases := []struct {
		scope         string
		maxAttempts   int
		window        time.Duration
		blockDuration time.Duration
	}{
		{"default", 100, time.Minute, time.Minute},
		{"api", 60, time.Minute, 5 * time.Minute},
		{"auth", 5, time.Minute, 15 * time.Minute},
	}
	for _, tc := range cases {
		profile, ok := cfg.Scopes[tc.scope]
		if !ok {
			t.Fatalf("expected scope %q in defaults", tc.scope)
		}
		if profile.MaxAttempts != tc.maxAttempts {
			t.Errorf("scope %s: expected max attempts %d, got %d", tc.scope, tc.maxAttempts, profile.MaxAttempts)
		}
		if profile.Window != tc.window {
			t.Errorf("scope %s: expected window %v, got %v", tc.scope, tc.window, profile.Window)
		}
		if profile.BlockDuration != tc.blockDuration {
			t.Errorf("scope %s: expected block duration %v, got %v", tc.scope, tc.blockDuration, profile.BlockDuration)
		}
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("THROTTLE_APP_PORT", "9090")
	t.Setenv("THROTTLE_STORE_BACKEND", "redis")
	t.Setenv("THROTTLE_SCOPES_AUTH_MAX_ATTEMPTS", "10")
	t.Setenv("THROTTLE_SCOPES_AUTH_BLOCK_DURATION", "30m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Port != 9090 {
		t.Fatalf("expected port override 9090, got %d", cfg.App.Port)
	}
	if cfg.Store.Backend != "redis" {
		t.Fatalf("expected backend override redis, got %q", cfg.Store.Backend)
	}
	if got := cfg.Scopes["auth"].MaxAttempts; got != 10 {
		t.Fatalf("expected auth max attempts override 10, got %d", got)
	}
	if got := cfg.Scopes["auth"].BlockDuration; got != 30*time.Minute {
		t.Fatalf("expected auth block duration override 30m, got %v", got)
	}
}
