package auth

import (
	"context"
	"time"
)

// Identity is the authorization context attached to a request after the
// gate admits it. It is rebuilt live from the store on every request and
// consumed by guards and business handlers.
type Identity struct {
	UserID       string              `json:"user_id"`
	Email        string              `json:"email"`
	FullName     string              `json:"full_name"`
	InstituteID  string              `json:"institute_id,omitempty"`
	UserTypeID   string              `json:"user_type_id,omitempty"`
	UserType     string              `json:"user_type,omitempty"`
	Roles        []string            `json:"roles"`
	Permissions  []string            `json:"permissions"`
	ProjectRoles []ProjectAssignment `json:"project_roles"`

	IsFirstLogin           bool       `json:"is_first_logged_in"`
	PasswordChangedAt      *time.Time `json:"password_changed_at"`
	RequiresPasswordChange bool       `json:"requiresPasswordChange"`

	permissionSet map[string]struct{}
	roleSet       map[string]struct{}
}

// HasPermission reports whether the identity holds "resource:action".
func (id *Identity) HasPermission(resource, action string) bool {
	if id == nil {
		return false
	}
	_, ok := id.permissionSet[resource+":"+action]
	return ok
}

// HasRole reports whether the identity carries the role or sub-role name.
func (id *Identity) HasRole(name string) bool {
	if id == nil {
		return false
	}
	_, ok := id.roleSet[name]
	return ok
}

// HasAnyRole reports whether at least one of the names matches.
func (id *Identity) HasAnyRole(names ...string) bool {
	for _, n := range names {
		if id.HasRole(n) {
			return true
		}
	}
	return false
}

// Index rebuilds the membership sets behind HasPermission and HasRole.
// Call it after constructing or modifying Roles and Permissions directly.
func (id *Identity) Index() {
	id.permissionSet = make(map[string]struct{}, len(id.Permissions))
	for _, p := range id.Permissions {
		id.permissionSet[p] = struct{}{}
	}
	id.roleSet = make(map[string]struct{}, len(id.Roles))
	for _, r := range id.Roles {
		id.roleSet[r] = struct{}{}
	}
}

type identityContextKey struct{}

// ContextWithIdentity attaches the authorization context to the request
// context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	if id == nil {
		return ctx
	}
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the authorization context if present.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	id, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || id == nil {
		return nil, false
	}
	return id, true
}
