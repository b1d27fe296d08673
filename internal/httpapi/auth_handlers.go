package httpapi

import (
	"net/http"
	"strings"
	"time"

	"reserv.org/internal/audit"
	"reserv.org/internal/auth"
)

type loginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "user_id and password are required")
		return
	}

	user, err := a.auth.Authenticate(r.Context(), req.UserID, req.Password)
	if err != nil {
		audit.LogEvent(r.Context(), "auth.login.denied", map[string]any{
			"user_id": req.UserID,
		})
		writeError(w, r, http.StatusForbidden, "invalid credentials")
		return
	}

	roles, err := a.auth.RoleNames(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	token, err := auth.GenerateToken(user.ID, user.DisplayName, roles, a.tokenTTL)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id": user.ID,
	})
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(a.tokenTTL).UTC(),
	})
}

type meResponse struct {
	UserID      string   `json:"user_id"`
	DisplayName string   `json:"display_name"`
	Status      string   `json:"status"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	roles, err := a.auth.RoleNames(r.Context(), p.UserID())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	perms := make([]string, 0, len(p.Permissions))
	for k := range p.Permissions {
		perms = append(perms, k)
	}
	writeJSON(w, http.StatusOK, meResponse{
		UserID:      p.User.ID,
		DisplayName: p.User.DisplayName,
		Status:      p.User.Status,
		Roles:       roles,
		Permissions: perms,
	})
}

// handlePermission reports whether the caller holds a named permission.
func (a *API) handlePermission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}
	granted, err := a.auth.HasPermission(r.Context(), p.UserID(), name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"permission": name,
		"granted":    granted,
	})
}

type accountNameRequest struct {
	DisplayName string `json:"display_name"`
}

func (a *API) handleAccountName(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req accountNameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.auth.UpdateDisplayName(r.Context(), p.UserID(), req.DisplayName); err != nil {
		writeServiceError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "account.name.updated", nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type accountPasswordRequest struct {
	Current     string `json:"current"`
	Replacement string `json:"replacement"`
}

func (a *API) handleAccountPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req accountPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.auth.UpdatePassword(r.Context(), p.UserID(), req.Current, req.Replacement); err != nil {
		writeServiceError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "account.password.updated", nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
