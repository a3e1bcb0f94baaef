package httpapi

import (
	"errors"
	"net/http"
	"time"

	"issuedesk.org/internal/audit"
	"issuedesk.org/internal/auth"
	"issuedesk.org/internal/obs"
)

const refreshCookieName = "refreshToken"

func (a *API) setRefreshCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *API) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

// refreshTokenFrom prefers the HTTP-only cookie; a JSON body field is
// accepted for clients that cannot send cookies.
func refreshTokenFrom(r *http.Request) string {
	if c, err := r.Cookie(refreshCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeJSON(r, &body); err == nil {
		return body.RefreshToken
	}
	return ""
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeFailure(w, http.StatusUnauthorized, "Invalid email or password")
		case errors.Is(err, auth.ErrUserInactive):
			writeFailure(w, http.StatusForbidden, "User is inactive")
		default:
			writeFailure(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id": session.User.UserID,
		"email":   session.User.Email,
	})
	a.setRefreshCookie(w, session.RefreshToken, session.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"accessToken": session.AccessToken,
		"user":        session.User,
	})
}

// handleRefresh exchanges the refresh cookie for a new token pair. Error
// bodies carry only a message field; clients branch on its text.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := refreshTokenFrom(r)
	if token == "" {
		obs.CountTokenRefresh("missing")
		writeMessage(w, http.StatusUnauthorized, "Refresh token required")
		return
	}

	session, err := a.auth.Rotate(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrRefreshTokenNotFound):
			obs.CountTokenRefresh("invalid")
			writeMessage(w, http.StatusForbidden, "Invalid refresh token")
		case errors.Is(err, auth.ErrRefreshTokenExpired):
			obs.CountTokenRefresh("expired")
			writeMessage(w, http.StatusForbidden, "Refresh token expired")
		case errors.Is(err, auth.ErrUserNotFound):
			obs.CountTokenRefresh("user_not_found")
			writeMessage(w, http.StatusNotFound, "User not found")
		case errors.Is(err, auth.ErrUserInactive):
			obs.CountTokenRefresh("user_inactive")
			writeMessage(w, http.StatusForbidden, "User is inactive")
		default:
			obs.CountTokenRefresh("error")
			writeMessage(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	obs.CountTokenRefresh("success")
	a.setRefreshCookie(w, session.RefreshToken, session.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken": session.AccessToken,
		"user":        session.User,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(refreshCookieName); err == nil && c.Value != "" {
		if err := a.auth.RevokeRefreshToken(r.Context(), c.Value); err != nil {
			writeFailure(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	a.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out successfully",
	})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeFailure(w, http.StatusUnauthorized, "Access token required")
		return
	}
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.auth.ChangePassword(r.Context(), identity.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeFailure(w, http.StatusUnauthorized, "Current password is incorrect")
		default:
			writeFailure(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.password_change", nil)

	// Every refresh token was just revoked; the cookie is now useless.
	a.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Password changed successfully. Please log in again.",
	})
}
