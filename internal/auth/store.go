package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Permissions(ctx context.Context) PermissionStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
}

// UserStore manages identity records.
type UserStore interface {
	// Find loads a user by id together with institute, user-type,
	// position and node summaries.
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// UpdatePassword stores a new hash, stamps password_changed_at and
	// clears the first-login flag.
	UpdatePassword(ctx context.Context, userID, passwordHash string, changedAt time.Time) error
}

// RoleStore manages role assignments and their permission associations.
type RoleStore interface {
	// AssignmentsForUser returns the user's active project-role rows with
	// resolved project, role and sub-role names.
	AssignmentsForUser(ctx context.Context, userID string) ([]ProjectAssignment, error)
	// SubRoleLinks returns the role's active sub-role links with their
	// permission grants. An empty result means the role has no sub-role
	// refinement and resolution falls back to direct grants.
	SubRoleLinks(ctx context.Context, roleID string) ([]SubRoleLink, error)
	// DirectGrants returns the role's direct permission grants.
	DirectGrants(ctx context.Context, roleID string) ([]PermissionGrant, error)
	// Assign records a project-role assignment for a user.
	Assign(ctx context.Context, assignment ProjectAssignment) error
}

// PermissionStore manages the permission catalog.
type PermissionStore interface {
	List(ctx context.Context) ([]Permission, error)
	// SetActive sets the definition-level flag and returns the updated
	// record.
	SetActive(ctx context.Context, permissionID string, active bool) (Permission, error)
	// Toggle inverts the definition-level flag atomically.
	Toggle(ctx context.Context, permissionID string) (Permission, error)
	// SetForRole replaces the role's direct grants with the given
	// permission ids.
	SetForRole(ctx context.Context, roleID string, permissionIDs []string) error
}

// RefreshTokenStore manages refresh token lifecycle.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	// Consume atomically revokes the token identified by value if it is
	// not yet revoked and returns the record; at most one concurrent
	// caller wins, the rest get ErrRefreshTokenNotFound.
	Consume(ctx context.Context, token string) (*RefreshToken, error)
	// Revoke marks the token revoked without the exchange semantics.
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}
