package httpapi

import (
	"net/http"
	"testing"
	"time"
)

func TestGateRequiresBearerToken(t *testing.T) {
	store := newFakeStore()
	seedAdmin(t, store)
	api := newTestAPI(t, store)

	rec := doJSON(t, api.router, http.MethodGet, "/permissions", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != false || body["message"] != "Access token required" {
		t.Fatalf("body = %v", body)
	}
}

func TestGateRejectsGarbageToken(t *testing.T) {
	store := newFakeStore()
	seedAdmin(t, store)
	api := newTestAPI(t, store)

	for _, header := range []string{
		"Bearer not-a-jwt",
		"Bearer eyJhbGciOiJIUzI1NiJ9.e30.dGFtcGVyZWQ",
		"Basic dXNlcjpwYXNz",
	} {
		rec := doJSON(t, api.router, http.MethodGet, "/permissions", nil, func(r *http.Request) {
			r.Header.Set("Authorization", header)
		})
		switch header {
		case "Basic dXNlcjpwYXNz":
			// Not a bearer scheme at all.
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("%s: status = %d", header, rec.Code)
			}
		default:
			if rec.Code != http.StatusForbidden {
				t.Errorf("%s: status = %d", header, rec.Code)
			}
			if got := decodeBody(t, rec)["message"]; got != "Invalid or expired token" {
				t.Errorf("%s: message = %v", header, got)
			}
		}
	}
}

func TestGateRejectsDeletedOrInactiveUser(t *testing.T) {
	store := newFakeStore()
	u := seedAdmin(t, store)
	api := newTestAPI(t, store)

	token, _ := login(t, api, u.Email, testPassword)

	store.users[u.ID].IsActive = false
	rec := doJSON(t, api.router, http.MethodGet, "/permissions", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("inactive: status = %d", rec.Code)
	}
	if got := decodeBody(t, rec)["message"]; got != "User not found or inactive" {
		t.Fatalf("inactive: message = %v", got)
	}

	delete(store.users, u.ID)
	rec = doJSON(t, api.router, http.MethodGet, "/permissions", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("deleted: status = %d", rec.Code)
	}
}

func TestGateAdmitsPublicPathsUntouched(t *testing.T) {
	store := newFakeStore()
	seedAdmin(t, store)
	api := newTestAPI(t, store)

	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		rec := doJSON(t, api.router, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
	}
}

func TestPasswordGateForcesChangeOnFirstLogin(t *testing.T) {
	store := newFakeStore()
	u := seedAdmin(t, store)
	store.users[u.ID].IsFirstLogin = true
	api := newTestAPI(t, store)

	token, _ := login(t, api, u.Email, testPassword)

	rec := doJSON(t, api.router, http.MethodGet, "/permissions", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["code"] != "PASSWORD_CHANGE_REQUIRED" {
		t.Fatalf("code = %v", body["code"])
	}
	if body["redirectTo"] != "/change-password" {
		t.Fatalf("redirectTo = %v", body["redirectTo"])
	}

	// The change-password endpoint itself is exempt so the forced change
	// can actually happen.
	rec = doJSON(t, api.router, http.MethodPost, "/auth/change-password", map[string]string{
		"currentPassword": testPassword,
		"newPassword":     "a brand new passphrase",
	}, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("change-password status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Flag cleared, the same access token now passes the gate.
	rec = doJSON(t, api.router, http.MethodGet, "/permissions", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("post-change status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestPasswordGateNeverChangedTakesPrecedenceOverExpiry(t *testing.T) {
	store := newFakeStore()
	u := seedAdmin(t, store)
	store.users[u.ID].PasswordChangedAt = nil
	api := newTestAPI(t, store)

	token, _ := login(t, api, u.Email, testPassword)
	rec := doJSON(t, api.router, http.MethodGet, "/permissions", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeBody(t, rec)["code"]; got != "PASSWORD_CHANGE_REQUIRED" {
		t.Fatalf("code = %v", got)
	}
}

func TestPasswordGateExpiry(t *testing.T) {
	store := newFakeStore()
	u := seedAdmin(t, store)
	old := time.Now().Add(-91 * 24 * time.Hour)
	store.users[u.ID].PasswordChangedAt = &old
	api := newTestAPI(t, store)

	token, _ := login(t, api, u.Email, testPassword)
	rec := doJSON(t, api.router, http.MethodGet, "/permissions", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeBody(t, rec)["code"]; got != "PASSWORD_EXPIRED" {
		t.Fatalf("code = %v", got)
	}

	// Logout stays reachable with an expired password.
	rec = doJSON(t, api.router, http.MethodPost, "/auth/logout", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rec.Code)
	}
}
