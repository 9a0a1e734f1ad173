package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/auth"
)

// GET /api/v1/me/permissions
func (h *handlers) myPermissions(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	h.writeEffective(w, r, principal.UserID)
}

// GET /api/v1/users/{userID}/permissions
func (h *handlers) userPermissions(w http.ResponseWriter, r *http.Request) {
	h.writeEffective(w, r, chi.URLParam(r, "userID"))
}

func (h *handlers) writeEffective(w http.ResponseWriter, r *http.Request, userID string) {
	perms, err := h.svc.ResolveEffectivePermissions(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, EffectivePermissionsResponse{UserID: userID, Permissions: perms})
}

// GET /api/v1/users
func (h *handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]UserResponse, 0, len(users))
	for i := range users {
		out = append(out, toUserResponse(&users[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/v1/users/{userID}
func (h *handlers) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// GET /api/v1/users/{userID}/permissions/direct
func (h *handlers) listDirectPermissions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.ListDirectPermissions(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, directGrantResponses(rows))
}

type grantUserPermissionRequest struct {
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// PUT /api/v1/users/{userID}/permissions/{code}
//
// The body is optional; an empty body grants without expiry.
func (h *handlers) grantUserPermission(w http.ResponseWriter, r *http.Request) {
	var req grantUserPermissionRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ctx := r.Context()
	err := h.svc.GrantUserPermission(ctx, chi.URLParam(r, "userID"), chi.URLParam(r, "code"), auth.ActorID(ctx), req.ExpiresAt)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /api/v1/users/{userID}/permissions/{code}/deny
func (h *handlers) denyUserPermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.svc.DenyUserPermission(ctx, chi.URLParam(r, "userID"), chi.URLParam(r, "code"), auth.ActorID(ctx)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/v1/users/{userID}/permissions/{code}
func (h *handlers) revokeUserPermission(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RevokeUserPermission(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "code")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type replaceGroupsRequest struct {
	GroupIDs []string `json:"group_ids"`
}

// PUT /api/v1/users/{userID}/groups
func (h *handlers) replaceUserGroups(w http.ResponseWriter, r *http.Request) {
	var req replaceGroupsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ctx := r.Context()
	if err := h.svc.ReplaceUserGroups(ctx, chi.URLParam(r, "userID"), req.GroupIDs, auth.ActorID(ctx)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/users/{userID}/provisioning/resync
func (h *handlers) resyncProvisioning(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ResyncProvisioning(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
