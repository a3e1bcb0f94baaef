package auth

import (
	"context"
	"sync"
	"time"
)

// memStore is an in-memory Store used across the package tests. Consume
// mirrors the conditional-update semantics of the Postgres store so
// rotation races behave the same way.
type memStore struct {
	mu sync.Mutex

	users       map[string]*User
	assignments map[string][]ProjectAssignment
	links       map[string][]SubRoleLink
	direct      map[string][]PermissionGrant
	tokens      map[string]*RefreshToken

	revokedUsers []string
}

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[string]*User),
		assignments: make(map[string][]ProjectAssignment),
		links:       make(map[string][]SubRoleLink),
		direct:      make(map[string][]PermissionGrant),
		tokens:      make(map[string]*RefreshToken),
	}
}

func (m *memStore) Users(context.Context) UserStore                 { return (*memUsers)(m) }
func (m *memStore) Roles(context.Context) RoleStore                 { return (*memRoles)(m) }
func (m *memStore) Permissions(context.Context) PermissionStore     { return (*memPerms)(m) }
func (m *memStore) RefreshTokens(context.Context) RefreshTokenStore { return (*memTokens)(m) }

type memUsers memStore

func (m *memUsers) Find(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memUsers) UpdatePassword(_ context.Context, userID, hash string, changedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	u.PasswordChangedAt = &changedAt
	u.IsFirstLogin = false
	return nil
}

type memRoles memStore

func (m *memRoles) AssignmentsForUser(_ context.Context, userID string) ([]ProjectAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ProjectAssignment(nil), m.assignments[userID]...), nil
}

func (m *memRoles) SubRoleLinks(_ context.Context, roleID string) ([]SubRoleLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SubRoleLink(nil), m.links[roleID]...), nil
}

func (m *memRoles) DirectGrants(_ context.Context, roleID string) ([]PermissionGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PermissionGrant(nil), m.direct[roleID]...), nil
}

func (m *memRoles) Assign(_ context.Context, assignment ProjectAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[assignment.UserID] = append(m.assignments[assignment.UserID], assignment)
	return nil
}

type memPerms memStore

func (m *memPerms) List(context.Context) ([]Permission, error) { return nil, nil }

func (m *memPerms) SetActive(_ context.Context, permissionID string, active bool) (Permission, error) {
	return Permission{ID: permissionID, IsActive: active}, nil
}

func (m *memPerms) Toggle(_ context.Context, permissionID string) (Permission, error) {
	return Permission{ID: permissionID}, nil
}

func (m *memPerms) SetForRole(context.Context, string, []string) error { return nil }

type memTokens memStore

func (m *memTokens) Create(_ context.Context, tok *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tok
	m.tokens[tok.Token] = &cp
	return nil
}

func (m *memTokens) Consume(_ context.Context, token string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[token]
	if !ok || tok.IsRevoked {
		return nil, ErrRefreshTokenNotFound
	}
	tok.IsRevoked = true
	cp := *tok
	return &cp, nil
}

func (m *memTokens) Revoke(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tok, ok := m.tokens[token]; ok {
		tok.IsRevoked = true
	}
	return nil
}

func (m *memTokens) RevokeAllForUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tok := range m.tokens {
		if tok.UserID == userID {
			tok.IsRevoked = true
		}
	}
	m.revokedUsers = append(m.revokedUsers, userID)
	return nil
}
