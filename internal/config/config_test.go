package config

import (
	"testing"
	"time"
)

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("ISSUEDESK_JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when secret is missing")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ISSUEDESK_JWT_SECRET", "test-secret")
	t.Setenv("ISSUEDESK_ENV", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Fatalf("unexpected access ttl: %v", cfg.AccessTTL)
	}
	if cfg.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("unexpected refresh ttl: %v", cfg.RefreshTTL)
	}
	if cfg.PasswordMaxAge != 90*24*time.Hour {
		t.Fatalf("unexpected password max age: %v", cfg.PasswordMaxAge)
	}
	if cfg.SecureCookies {
		t.Fatal("secure cookies should be off outside production")
	}
	if len(cfg.PasswordBypassPaths) == 0 {
		t.Fatal("expected default bypass paths")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ISSUEDESK_JWT_SECRET", "test-secret")
	t.Setenv("ISSUEDESK_ACCESS_TTL", "5m")
	t.Setenv("ISSUEDESK_PASSWORD_MAX_AGE_DAYS", "30")
	t.Setenv("ISSUEDESK_BYPASS_PATHS", "/login, /refresh-token")
	t.Setenv("ISSUEDESK_ENV", "production")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AccessTTL != 5*time.Minute {
		t.Fatalf("unexpected access ttl: %v", cfg.AccessTTL)
	}
	if cfg.PasswordMaxAge != 30*24*time.Hour {
		t.Fatalf("unexpected password max age: %v", cfg.PasswordMaxAge)
	}
	if len(cfg.PasswordBypassPaths) != 2 {
		t.Fatalf("unexpected bypass paths: %v", cfg.PasswordBypassPaths)
	}
	if !cfg.SecureCookies {
		t.Fatal("expected secure cookies in production")
	}
}

func TestLoadRejectsBadTTL(t *testing.T) {
	t.Setenv("ISSUEDESK_JWT_SECRET", "test-secret")
	t.Setenv("ISSUEDESK_ACCESS_TTL", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed ttl")
	}
}
