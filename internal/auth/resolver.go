package auth

import (
	"context"
	"fmt"
)

// Resolution is the flattened authorization state of a user: deduplicated
// permissions, deduplicated role names and the raw project assignments.
type Resolution struct {
	Permissions []Permission
	RoleNames   []string
	Assignments []ProjectAssignment

	keys map[string]struct{}
}

// HasPermission reports membership of the "resource:action" key.
func (r Resolution) HasPermission(key string) bool {
	_, ok := r.keys[key]
	return ok
}

// PermissionKeys returns the resolved "resource:action" strings.
func (r Resolution) PermissionKeys() []string {
	out := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		out = append(out, p.Key())
	}
	return out
}

// HasRole reports membership of a role or sub-role name.
func (r Resolution) HasRole(name string) bool {
	for _, n := range r.RoleNames {
		if n == name {
			return true
		}
	}
	return false
}

// Resolver walks role associations into a flat permission and role set.
//
// Two association shapes coexist in the store: the role -> sub-role ->
// permission chain and the direct role -> permission grants. The chain is
// canonical whenever a role has active sub-role links; a role without links
// falls back to its direct grants. Grants with is_active=false are excluded
// regardless of the permission definition, and inactive permission
// definitions never resolve.
type Resolver struct {
	store Store
}

// NewResolver constructs a Resolver over the given store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve computes the authorization state for a user id. Resolution is
// read-only and idempotent: permissions merge by permission id (first
// occurrence wins; duplicates are identical because permission records are
// immutable once defined), so the result is independent of traversal order.
func (r *Resolver) Resolve(ctx context.Context, userID string) (Resolution, error) {
	roles := r.store.Roles(ctx)

	assignments, err := roles.AssignmentsForUser(ctx, userID)
	if err != nil {
		return Resolution{}, fmt.Errorf("load assignments: %w", err)
	}

	res := Resolution{
		Assignments: assignments,
		keys:        make(map[string]struct{}),
	}
	seenPerms := make(map[string]struct{})
	seenRoles := make(map[string]struct{})
	seenRoleIDs := make(map[string]struct{})

	addRole := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seenRoles[name]; ok {
			return
		}
		seenRoles[name] = struct{}{}
		res.RoleNames = append(res.RoleNames, name)
	}
	addGrant := func(g PermissionGrant) {
		if !g.IsActive || !g.Permission.IsActive {
			return
		}
		if _, ok := seenPerms[g.Permission.ID]; ok {
			return
		}
		seenPerms[g.Permission.ID] = struct{}{}
		res.Permissions = append(res.Permissions, g.Permission)
		res.keys[g.Permission.Key()] = struct{}{}
	}

	for _, a := range assignments {
		if !a.IsActive {
			continue
		}
		addRole(a.RoleName)
		addRole(a.SubRoleName)
		if a.RoleID == "" {
			continue
		}
		if _, ok := seenRoleIDs[a.RoleID]; ok {
			continue
		}
		seenRoleIDs[a.RoleID] = struct{}{}

		links, err := roles.SubRoleLinks(ctx, a.RoleID)
		if err != nil {
			return Resolution{}, fmt.Errorf("load sub-role links for role %s: %w", a.RoleID, err)
		}
		if len(links) > 0 {
			for _, link := range links {
				if !link.SubRole.IsActive {
					continue
				}
				addRole(link.SubRole.Name)
				for _, g := range link.Grants {
					addGrant(g)
				}
			}
			continue
		}

		direct, err := roles.DirectGrants(ctx, a.RoleID)
		if err != nil {
			return Resolution{}, fmt.Errorf("load direct grants for role %s: %w", a.RoleID, err)
		}
		for _, g := range direct {
			addGrant(g)
		}
	}

	return res, nil
}
