package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"issuedesk.org/internal/audit"
	"issuedesk.org/internal/auth"
)

func (a *API) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := a.store.Permissions(r.Context()).List(r.Context())
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	type permissionView struct {
		auth.Permission
		IsActive bool `json:"is_active"`
	}
	views := make([]permissionView, 0, len(perms))
	for _, p := range perms {
		views = append(views, permissionView{Permission: p, IsActive: p.IsActive})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"permissions": views,
	})
}

func (a *API) handleActivatePermission(w http.ResponseWriter, r *http.Request) {
	a.setPermissionActive(w, r, true)
}

func (a *API) handleTogglePermission(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["permission_id"]
	perm, err := a.store.Permissions(r.Context()).Toggle(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrPermissionNotFound) {
			writeFailure(w, http.StatusNotFound, "Permission not found")
			return
		}
		writeFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	a.writePermissionUpdate(w, r, perm)
}

func (a *API) handleDeactivatePermission(w http.ResponseWriter, r *http.Request) {
	a.setPermissionActive(w, r, false)
}

// setPermissionActive flips the definition-level flag. The change takes
// effect on the next resolution of any affected user; outstanding access
// tokens are not recalled.
func (a *API) setPermissionActive(w http.ResponseWriter, r *http.Request, active bool) {
	id := mux.Vars(r)["permission_id"]
	perm, err := a.store.Permissions(r.Context()).SetActive(r.Context(), id, active)
	if err != nil {
		if errors.Is(err, auth.ErrPermissionNotFound) {
			writeFailure(w, http.StatusNotFound, "Permission not found")
			return
		}
		writeFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	a.writePermissionUpdate(w, r, perm)
}

func (a *API) writePermissionUpdate(w http.ResponseWriter, r *http.Request, perm auth.Permission) {
	_ = audit.LogEvent(r.Context(), "rbac.permission_toggle", map[string]any{
		"permission_id": perm.ID,
		"is_active":     perm.IsActive,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"permission": map[string]any{
			"permission_id": perm.ID,
			"action":        perm.Action,
			"resource":      perm.Resource,
			"is_active":     perm.IsActive,
		},
	})
}

func (a *API) handleSetRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID := mux.Vars(r)["role_id"]
	var req struct {
		PermissionIDs []string `json:"permission_ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, id := range req.PermissionIDs {
		if strings.TrimSpace(id) == "" {
			writeFailure(w, http.StatusBadRequest, "permission_ids must not contain empty values")
			return
		}
	}
	if err := a.store.Permissions(r.Context()).SetForRole(r.Context(), roleID, req.PermissionIDs); err != nil {
		writeFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role_permissions_set", map[string]any{
		"role_id":        roleID,
		"permission_ids": req.PermissionIDs,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Role permissions updated",
	})
}

func (a *API) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	var req struct {
		ProjectID string `json:"project_id"`
		RoleID    string `json:"role_id"`
		SubRoleID string `json:"sub_role_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ProjectID == "" || req.RoleID == "" {
		writeFailure(w, http.StatusBadRequest, "project_id and role_id are required")
		return
	}
	assignment := auth.ProjectAssignment{
		UserID:    userID,
		ProjectID: req.ProjectID,
		RoleID:    req.RoleID,
		SubRoleID: req.SubRoleID,
		IsActive:  true,
	}
	if err := a.store.Roles(r.Context()).Assign(r.Context(), assignment); err != nil {
		writeFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role_assigned", map[string]any{
		"user_id":     userID,
		"project_id":  req.ProjectID,
		"role_id":     req.RoleID,
		"sub_role_id": req.SubRoleID,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Role assigned",
	})
}
