package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"issuedesk.org/internal/auth"
	"issuedesk.org/internal/obs"
)

// ReadyProbe reports readiness, typically by pinging the database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config carries the HTTP layer settings.
type Config struct {
	Version        string
	SecureCookies  bool
	PasswordMaxAge time.Duration
	// PasswordBypassPaths are exact-or-prefix matchers excluded from the
	// password-lifecycle gate. Injected so the gate is testable in
	// isolation.
	PasswordBypassPaths []string
	AllowedOrigins      []string
	ReadyProbe          ReadyProbe
}

// API is the HTTP layer over the auth service and credential store.
type API struct {
	router *mux.Router
	auth   *auth.Service
	store  auth.Store

	readyProbe     ReadyProbe
	version        string
	secureCookies  bool
	passwordMaxAge time.Duration
	bypass         *PathMatcher
	allowedOrigins []string
}

// New wires routes, guards and the auth gate.
func New(svc *auth.Service, store auth.Store, cfg Config) *API {
	a := &API{
		router:         mux.NewRouter(),
		auth:           svc,
		store:          store,
		readyProbe:     cfg.ReadyProbe,
		version:        cfg.Version,
		secureCookies:  cfg.SecureCookies,
		passwordMaxAge: cfg.PasswordMaxAge,
		bypass:         NewPathMatcher(cfg.PasswordBypassPaths),
		allowedOrigins: cfg.AllowedOrigins,
	}
	if a.passwordMaxAge <= 0 {
		a.passwordMaxAge = 90 * 24 * time.Hour
	}

	r := a.router

	// Probes and metrics.
	r.HandleFunc("/healthz", a.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/v1/info", a.handleInfo).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	// Session endpoints. Refresh is mounted under both forms the
	// frontend calls.
	r.HandleFunc("/auth/login", a.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", a.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/refresh-token", a.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/api/refresh-token", a.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/auth/change-password", a.handleChangePassword).Methods(http.MethodPost)

	// RBAC administration.
	r.Handle("/permissions",
		RequirePermission("permission", "read")(http.HandlerFunc(a.handleListPermissions)),
	).Methods(http.MethodGet)
	r.Handle("/permissions/{permission_id}/activate",
		RequirePermission("permission", "update")(http.HandlerFunc(a.handleActivatePermission)),
	).Methods(http.MethodPut)
	r.Handle("/permissions/{permission_id}/toggle",
		RequirePermission("permission", "update")(http.HandlerFunc(a.handleTogglePermission)),
	).Methods(http.MethodPut)
	r.Handle("/permissions/{permission_id}/deactivate",
		RequirePermission("permission", "update")(http.HandlerFunc(a.handleDeactivatePermission)),
	).Methods(http.MethodPut)
	r.Handle("/roles/{role_id}/permissions",
		RequirePermission("role", "update")(http.HandlerFunc(a.handleSetRolePermissions)),
	).Methods(http.MethodPut)
	r.Handle("/users/{user_id}/roles",
		RequirePermission("user", "update")(http.HandlerFunc(a.handleAssignRole)),
	).Methods(http.MethodPost)

	r.Use(a.withAuth)

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   a.allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	var h http.Handler = a.router
	h = MaxBodyBytes(h, 1<<20)
	h = c.Handler(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RateLimit(h, 20, 10)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Probe handlers ---

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "issuedesk-api",
		"version": a.version,
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "issuedesk-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
