package httpapi

import (
	"net/http"
	"strings"

	"reserv.org/internal/audit"
	"reserv.org/internal/auth"
)

type createUserRequest struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	Status      string `json:"status"`
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	if _, ok := requirePermission(w, r, auth.PermManage); !ok {
		return
	}
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Status == "" {
		req.Status = auth.UserStatusActive
	}
	user, err := a.auth.CreateUser(r.Context(), req.UserID, req.DisplayName, req.Password, req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "user.created", map[string]any{
		"target_user_id": user.ID,
	})
	writeJSON(w, http.StatusCreated, user)
}

// handleUserSubresource routes /v1/users/{id}/roles and /v1/users/{id}/status.
func (a *API) handleUserSubresource(w http.ResponseWriter, r *http.Request) {
	rest, ok := trimPathPrefix(r.URL.Path, "/v1/users/")
	if !ok || rest == "" {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	userID, sub := parts[0], parts[1]
	switch sub {
	case "roles":
		a.handleAssignRole(w, r, userID)
	case "status":
		a.handleUserStatus(w, r, userID)
	default:
		writeError(w, r, http.StatusNotFound, "not found")
	}
}

type assignRoleRequest struct {
	Role string `json:"role"`
}

func (a *API) handleAssignRole(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	if _, ok := requirePermission(w, r, auth.PermManage); !ok {
		return
	}
	var req assignRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Role) == "" {
		writeError(w, r, http.StatusBadRequest, "role is required")
		return
	}
	if err := a.auth.AssignRole(r.Context(), userID, req.Role); err != nil {
		writeServiceError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "user.role.assigned", map[string]any{
		"target_user_id": userID,
		"role":           req.Role,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

type userStatusRequest struct {
	Status string `json:"status"`
}

func (a *API) handleUserStatus(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	if _, ok := requirePermission(w, r, auth.PermManage); !ok {
		return
	}
	var req userStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.auth.SetUserStatus(r.Context(), userID, req.Status); err != nil {
		writeServiceError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "user.status.updated", map[string]any{
		"target_user_id": userID,
		"status":         req.Status,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
