package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/auth"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/iamerr"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/services/iam"
)

// GET /api/v1/permissions
func (h *handlers) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.svc.ListPermissions(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]PermissionResponse, 0, len(perms))
	for i := range perms {
		out = append(out, toPermissionResponse(&perms[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/v1/permissions/categories
func (h *handlers) permissionCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.svc.PermissionCategories(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// POST /api/v1/permissions
func (h *handlers) createPermission(w http.ResponseWriter, r *http.Request) {
	var in iam.CreatePermissionInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.svc.CreatePermission(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPermissionResponse(p))
}

// DELETE /api/v1/permissions/{permissionID}
func (h *handlers) deletePermission(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeletePermission(r.Context(), chi.URLParam(r, "permissionID")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/groups
func (h *handlers) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.svc.ListGroups(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]GroupResponse, 0, len(groups))
	for i := range groups {
		out = append(out, toGroupResponse(&groups[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /api/v1/groups
func (h *handlers) createGroup(w http.ResponseWriter, r *http.Request) {
	var in iam.CreateGroupInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	g, err := h.svc.CreateGroup(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupResponse(g))
}

// GET /api/v1/groups/{groupID}
func (h *handlers) getGroup(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.GetGroup(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupResponse(g))
}

// PATCH /api/v1/groups/{groupID}
func (h *handlers) updateGroup(w http.ResponseWriter, r *http.Request) {
	var patch iam.GroupPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	g, err := h.svc.UpdateGroup(r.Context(), chi.URLParam(r, "groupID"), patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupResponse(g))
}

// DELETE /api/v1/groups/{groupID}
func (h *handlers) deleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteGroup(r.Context(), chi.URLParam(r, "groupID")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/groups/{groupID}/members
func (h *handlers) listGroupMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.svc.ListGroupMembers(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]MemberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, toMemberResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
}

// POST /api/v1/groups/{groupID}/members
func (h *handlers) addGroupMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.UserID == "" {
		writeError(w, r, h.logger, iamerr.Invalid("user_id", "must not be empty"))
		return
	}
	ctx := r.Context()
	if err := h.svc.AddGroupMember(ctx, chi.URLParam(r, "groupID"), req.UserID, auth.ActorID(ctx)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/v1/groups/{groupID}/members/{userID}
func (h *handlers) removeGroupMember(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveGroupMember(r.Context(), chi.URLParam(r, "groupID"), chi.URLParam(r, "userID")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/groups/{groupID}/permissions
func (h *handlers) listGroupPermissions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.ListGroupPermissions(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, groupGrantResponses(rows))
}

type grantGroupPermissionRequest struct {
	Code string `json:"code"`
}

// POST /api/v1/groups/{groupID}/permissions
func (h *handlers) grantGroupPermission(w http.ResponseWriter, r *http.Request) {
	var req grantGroupPermissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Code == "" {
		writeError(w, r, h.logger, iamerr.Invalid("code", "must not be empty"))
		return
	}
	ctx := r.Context()
	if err := h.svc.GrantGroupPermission(ctx, chi.URLParam(r, "groupID"), req.Code, auth.ActorID(ctx)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/v1/groups/{groupID}/permissions/{code}
func (h *handlers) revokeGroupPermission(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RevokeGroupPermission(r.Context(), chi.URLParam(r, "groupID"), chi.URLParam(r, "code")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
