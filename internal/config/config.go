package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAddr           = ":8080"
	defaultAccessTTL      = 15 * time.Minute
	defaultRefreshTTL     = 7 * 24 * time.Hour
	defaultPasswordMaxAge = 90 * 24 * time.Hour
)

// defaultBypassPaths lists the endpoints a user may reach while a password
// change is pending. Each entry matches exactly or as a path prefix, under
// the bare, /auth and /api forms the frontend is known to call.
var defaultBypassPaths = []string{
	"/update-password",
	"/auth/update-password",
	"/change-password",
	"/auth/change-password",
	"/api/auth/update-password",
	"/api/auth/change-password",
	"/logout",
	"/auth/logout",
	"/api/auth/logout",
	"/login",
	"/auth/login",
	"/api/auth/login",
	"/refresh-token",
	"/api/refresh-token",
}

// Config carries all runtime settings for the API server.
type Config struct {
	Addr        string
	DatabaseDSN string

	JWTSecret  string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// PasswordMaxAge is the rolling window after which an unchanged
	// password is treated as expired.
	PasswordMaxAge time.Duration

	// PasswordBypassPaths are exact-or-prefix matchers excluded from the
	// password-lifecycle gate.
	PasswordBypassPaths []string

	// SecureCookies controls the Secure attribute on the refresh cookie.
	// Off for local HTTP development, on in production.
	SecureCookies bool

	AllowedOrigins []string
}

// Load reads configuration from the environment. A .env file is honoured
// for local development when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:                envOr("ISSUEDESK_ADDR", defaultAddr),
		DatabaseDSN:         os.Getenv("ISSUEDESK_PG_DSN"),
		JWTSecret:           strings.TrimSpace(os.Getenv("ISSUEDESK_JWT_SECRET")),
		Issuer:              envOr("ISSUEDESK_ISSUER", "issuedesk"),
		AccessTTL:           defaultAccessTTL,
		RefreshTTL:          defaultRefreshTTL,
		PasswordMaxAge:      defaultPasswordMaxAge,
		PasswordBypassPaths: defaultBypassPaths,
		SecureCookies:       os.Getenv("ISSUEDESK_ENV") == "production",
	}

	if raw := os.Getenv("ISSUEDESK_ACCESS_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			return Config{}, fmt.Errorf("invalid ISSUEDESK_ACCESS_TTL %q", raw)
		}
		cfg.AccessTTL = ttl
	}
	if raw := os.Getenv("ISSUEDESK_REFRESH_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			return Config{}, fmt.Errorf("invalid ISSUEDESK_REFRESH_TTL %q", raw)
		}
		cfg.RefreshTTL = ttl
	}
	if raw := os.Getenv("ISSUEDESK_PASSWORD_MAX_AGE_DAYS"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			return Config{}, fmt.Errorf("invalid ISSUEDESK_PASSWORD_MAX_AGE_DAYS %q", raw)
		}
		cfg.PasswordMaxAge = time.Duration(days) * 24 * time.Hour
	}
	if raw := os.Getenv("ISSUEDESK_BYPASS_PATHS"); raw != "" {
		cfg.PasswordBypassPaths = splitList(raw)
	}
	if raw := os.Getenv("ISSUEDESK_ALLOWED_ORIGINS"); raw != "" {
		cfg.AllowedOrigins = splitList(raw)
	}

	if cfg.JWTSecret == "" {
		return Config{}, errors.New("ISSUEDESK_JWT_SECRET is required")
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
