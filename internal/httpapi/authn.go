package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"issuedesk.org/internal/auth"
	"issuedesk.org/internal/obs"
)

// publicPaths never require a bearer token.
var publicPaths = map[string]struct{}{
	"/healthz":           {},
	"/readyz":            {},
	"/metrics":           {},
	"/v1/info":           {},
	"/auth/login":        {},
	"/refresh-token":     {},
	"/api/refresh-token": {},
}

// withAuth is the authentication gate. Every failure mode maps to 401 or
// 403; the gate never reports a 500 for a bad or surprising token.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := publicPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		if token == "" {
			writeFailure(w, http.StatusUnauthorized, "Access token required")
			return
		}

		identity, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, auth.ErrUserInactive):
				writeFailure(w, http.StatusForbidden, "User not found or inactive")
			default:
				// Expired, malformed, resolver failure: all collapse
				// to the same response so the gate fails closed.
				writeFailure(w, http.StatusForbidden, "Invalid or expired token")
			}
			return
		}

		if !a.bypass.Matches(r.URL.Path) {
			if code, ok := a.passwordGate(identity); ok {
				obs.CountPasswordGate(code)
				writeJSON(w, http.StatusForbidden, map[string]any{
					"success":    false,
					"message":    passwordGateMessage(code),
					"code":       code,
					"redirectTo": "/change-password",
				})
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), identity)))
	})
}

// passwordGate checks the password lifecycle. A forced change (first
// login, or no recorded change at all) takes precedence over expiry.
func (a *API) passwordGate(id *auth.Identity) (string, bool) {
	if id.RequiresPasswordChange {
		return "PASSWORD_CHANGE_REQUIRED", true
	}
	if id.PasswordChangedAt != nil && time.Since(*id.PasswordChangedAt) > a.passwordMaxAge {
		return "PASSWORD_EXPIRED", true
	}
	return "", false
}

func passwordGateMessage(code string) string {
	if code == "PASSWORD_EXPIRED" {
		return "Password has expired. Please change your password."
	}
	return "Password change required before accessing this resource."
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
