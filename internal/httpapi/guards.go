package httpapi

import (
	"net/http"
	"strings"

	"issuedesk.org/internal/auth"
)

// RequirePermission admits only identities holding resource:action.
func RequirePermission(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				writeFailure(w, http.StatusForbidden, "Access denied: No permissions found")
				return
			}
			if !id.HasPermission(resource, action) {
				writeFailure(w, http.StatusForbidden,
					"Access denied: Required permission "+resource+":"+action)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole admits only identities carrying the named role or sub-role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				writeFailure(w, http.StatusForbidden, "Access denied: No roles found")
				return
			}
			if !id.HasRole(role) {
				writeFailure(w, http.StatusForbidden, "Access denied: Required role "+role)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyRole admits identities carrying at least one of the names.
func RequireAnyRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				writeFailure(w, http.StatusForbidden, "Access denied: No roles found")
				return
			}
			if !id.HasAnyRole(roles...) {
				writeFailure(w, http.StatusForbidden,
					"Access denied: Required one of roles: "+strings.Join(roles, ", "))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
