package httpapi

import (
	"context"
	"sync"
	"testing"
	"time"

	"issuedesk.org/internal/auth"
)

// fakeStore is an in-memory auth.Store for handler tests. Consume keeps
// the one-winner semantics of the real store.
type fakeStore struct {
	mu sync.Mutex

	users       map[string]*auth.User
	assignments map[string][]auth.ProjectAssignment
	links       map[string][]auth.SubRoleLink
	direct      map[string][]auth.PermissionGrant
	perms       map[string]*auth.Permission
	tokens      map[string]*auth.RefreshToken

	rolePerms map[string][]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       make(map[string]*auth.User),
		assignments: make(map[string][]auth.ProjectAssignment),
		links:       make(map[string][]auth.SubRoleLink),
		direct:      make(map[string][]auth.PermissionGrant),
		perms:       make(map[string]*auth.Permission),
		tokens:      make(map[string]*auth.RefreshToken),
		rolePerms:   make(map[string][]string),
	}
}

func (f *fakeStore) Users(context.Context) auth.UserStore                 { return (*fakeUsers)(f) }
func (f *fakeStore) Roles(context.Context) auth.RoleStore                 { return (*fakeRoles)(f) }
func (f *fakeStore) Permissions(context.Context) auth.PermissionStore     { return (*fakePerms)(f) }
func (f *fakeStore) RefreshTokens(context.Context) auth.RefreshTokenStore { return (*fakeTokens)(f) }

type fakeUsers fakeStore

func (f *fakeUsers) Find(_ context.Context, id string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (f *fakeUsers) UpdatePassword(_ context.Context, userID, hash string, changedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return auth.ErrUserNotFound
	}
	u.PasswordHash = hash
	u.PasswordChangedAt = &changedAt
	u.IsFirstLogin = false
	return nil
}

type fakeRoles fakeStore

func (f *fakeRoles) AssignmentsForUser(_ context.Context, userID string) ([]auth.ProjectAssignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]auth.ProjectAssignment(nil), f.assignments[userID]...), nil
}

func (f *fakeRoles) SubRoleLinks(_ context.Context, roleID string) ([]auth.SubRoleLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]auth.SubRoleLink(nil), f.links[roleID]...), nil
}

func (f *fakeRoles) DirectGrants(_ context.Context, roleID string) ([]auth.PermissionGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]auth.PermissionGrant(nil), f.direct[roleID]...), nil
}

func (f *fakeRoles) Assign(_ context.Context, assignment auth.ProjectAssignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignments[assignment.UserID] = append(f.assignments[assignment.UserID], assignment)
	return nil
}

type fakePerms fakeStore

func (f *fakePerms) List(context.Context) ([]auth.Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]auth.Permission, 0, len(f.perms))
	for _, p := range f.perms {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakePerms) SetActive(_ context.Context, permissionID string, active bool) (auth.Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.perms[permissionID]
	if !ok {
		return auth.Permission{}, auth.ErrPermissionNotFound
	}
	p.IsActive = active
	return *p, nil
}

func (f *fakePerms) Toggle(_ context.Context, permissionID string) (auth.Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.perms[permissionID]
	if !ok {
		return auth.Permission{}, auth.ErrPermissionNotFound
	}
	p.IsActive = !p.IsActive
	return *p, nil
}

func (f *fakePerms) SetForRole(_ context.Context, roleID string, permissionIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rolePerms[roleID] = append([]string(nil), permissionIDs...)
	return nil
}

type fakeTokens fakeStore

func (f *fakeTokens) Create(_ context.Context, tok *auth.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *tok
	f.tokens[tok.Token] = &cp
	return nil
}

func (f *fakeTokens) Consume(_ context.Context, token string) (*auth.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.tokens[token]
	if !ok || tok.IsRevoked {
		return nil, auth.ErrRefreshTokenNotFound
	}
	tok.IsRevoked = true
	cp := *tok
	return &cp, nil
}

func (f *fakeTokens) Revoke(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tok, ok := f.tokens[token]; ok {
		tok.IsRevoked = true
	}
	return nil
}

func (f *fakeTokens) RevokeAllForUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tok := range f.tokens {
		if tok.UserID == userID {
			tok.IsRevoked = true
		}
	}
	return nil
}

const (
	testSecret   = "handler-test-secret"
	testPassword = "correct horse battery staple"
)

// seedAdmin creates an active user with a direct admin grant covering the
// RBAC endpoints.
func seedAdmin(t *testing.T, store *fakeStore) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	changed := time.Now().Add(-24 * time.Hour)
	u := &auth.User{
		ID:                "user-admin",
		Email:             "admin@issuedesk.org",
		FullName:          "Admin User",
		PasswordHash:      hash,
		IsActive:          true,
		PasswordChangedAt: &changed,
	}
	store.users[u.ID] = u
	store.assignments[u.ID] = []auth.ProjectAssignment{{
		UserID:      u.ID,
		ProjectID:   "proj-1",
		ProjectName: "Helpdesk",
		RoleID:      "role-admin",
		RoleName:    "admin",
		IsActive:    true,
	}}
	for _, pair := range [][2]string{
		{"permission", "read"},
		{"permission", "update"},
		{"role", "update"},
		{"user", "update"},
		{"ticket", "read"},
	} {
		p := auth.Permission{
			ID:       "perm-" + pair[0] + "-" + pair[1],
			Resource: pair[0],
			Action:   pair[1],
			IsActive: true,
		}
		store.perms[p.ID] = &p
		store.direct["role-admin"] = append(store.direct["role-admin"], auth.PermissionGrant{
			ID:         "grant-" + p.ID,
			Permission: p,
			IsActive:   true,
		})
	}
	return u
}

func newTestAPI(t *testing.T, store *fakeStore) *API {
	t.Helper()
	svc, err := auth.NewService(store, testSecret)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return New(svc, store, Config{
		Version:        "test",
		PasswordMaxAge: 90 * 24 * time.Hour,
		PasswordBypassPaths: []string{
			"/auth/login", "/auth/logout", "/auth/change-password",
			"/refresh-token", "/api/refresh-token",
		},
	})
}
