package auth

import "time"

// User is the identity record of the credential store. Reference summaries
// are loaded alongside the row; absent associations stay nil. Users are
// never deleted by this core, deactivation is the is_active flag.
type User struct {
	ID                string
	Email             string
	FullName          string
	PasswordHash      string
	IsActive          bool
	IsFirstLogin      bool
	PasswordChangedAt *time.Time

	InstituteID string
	UserTypeID  string

	Institute     *Institute
	UserType      *UserType
	UserPosition  *UserPosition
	HierarchyNode *HierarchyNode
	InternalNode  *InternalNode

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Institute is the organizational owner of a user.
type Institute struct {
	ID   string `json:"institute_id"`
	Name string `json:"name"`
}

// UserType classifies users (internal, external, ...).
type UserType struct {
	ID   string `json:"user_type_id"`
	Name string `json:"name"`
}

// UserPosition is the user's position summary.
type UserPosition struct {
	ID   string `json:"user_position_id"`
	Name string `json:"name"`
}

// HierarchyNode is the user's placement in the organizational tree.
type HierarchyNode struct {
	ID    string `json:"hierarchy_node_id"`
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// InternalNode is the user's placement in the internal tree.
type InternalNode struct {
	ID    string `json:"internal_node_id"`
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// Role is a named permission bundle.
type Role struct {
	ID   string `json:"role_id"`
	Name string `json:"name"`
}

// SubRole refines a role; it carries its own active flag.
type SubRole struct {
	ID       string
	Name     string
	IsActive bool
}

// Permission is an atomic capability identified by its resource/action pair.
// Records are immutable once defined; IsActive toggles the definition.
type Permission struct {
	ID       string `json:"permission_id"`
	Action   string `json:"action"`
	Resource string `json:"resource"`
	IsActive bool   `json:"-"`
}

// Key renders the canonical "resource:action" permission string.
func (p Permission) Key() string {
	return p.Resource + ":" + p.Action
}

// PermissionGrant links a role or sub-role to a permission. The grant's
// IsActive flag is independent of the permission definition.
type PermissionGrant struct {
	ID         string
	Permission Permission
	IsActive   bool
}

// SubRoleLink is an active role to sub-role association together with the
// permission grants recorded on it.
type SubRoleLink struct {
	ID      string
	SubRole SubRole
	Grants  []PermissionGrant
}

// ProjectAssignment scopes a role (and optional sub-role) to a project for
// a user. Only active assignments participate in resolution.
type ProjectAssignment struct {
	UserID      string
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`
	RoleID      string `json:"role_id"`
	RoleName    string `json:"role_name"`
	SubRoleID   string `json:"sub_role_id,omitempty"`
	SubRoleName string `json:"sub_role_name,omitempty"`
	IsActive    bool   `json:"-"`
}

// RefreshToken is a persisted opaque credential. Lifecycle: created,
// exactly-once valid exchange, revoked. Expired-but-unrevoked is invalid.
type RefreshToken struct {
	ID        string
	Token     string
	UserID    string
	ExpiresAt time.Time
	IsRevoked bool
	CreatedAt time.Time
}

// UserSnapshot is the identity/authorization snapshot embedded in access
// tokens and returned to the client on login and refresh. It is a
// point-in-time cache: enforcement always re-resolves from the store.
type UserSnapshot struct {
	UserID        string         `json:"user_id"`
	Email         string         `json:"email"`
	FullName      string         `json:"full_name"`
	UserType      string         `json:"user_type,omitempty"`
	Institute     *Institute     `json:"institute,omitempty"`
	UserPosition  *UserPosition  `json:"user_position,omitempty"`
	HierarchyNode *HierarchyNode `json:"hierarchy_node,omitempty"`
	InternalNode  *InternalNode  `json:"internal_node,omitempty"`
	Permissions   []Permission   `json:"permissions"`
	Roles         []Role         `json:"roles"`
}

// Session is the result of a successful login or refresh-token exchange.
type Session struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             UserSnapshot
}
