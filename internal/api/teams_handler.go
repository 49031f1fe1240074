package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/taskhub/internal/team"
)

// teamsHandler groups team and membership handlers. Authorization is decided
// by the team service; handlers only pass the caller's id through.
type teamsHandler struct {
	svc TeamService
}

func newTeamsHandler(svc TeamService) *teamsHandler {
	return &teamsHandler{svc: svc}
}

type createTeamBody struct {
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description"`
}

type memberRefBody struct {
	UserID string `json:"userId" validate:"required"`
}

type memberRoleBody struct {
	Role string `json:"role" validate:"required"`
}

// List handles GET /api/v1/teams.
func (h *teamsHandler) List(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	teams, err := h.svc.ListForUser(r.Context(), u.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if teams == nil {
		teams = []*team.View{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"teams": teams})
}

// Create handles POST /api/v1/teams.
func (h *teamsHandler) Create(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	var req createTeamBody
	if err := readJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	t, err := h.svc.Create(r.Context(), u.ID, req.Name, req.Description)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	auditLog(r, "create", "team", t.ID, "name", t.Name)
	writeJSON(w, http.StatusCreated, t)
}

// Get handles GET /api/v1/teams/{teamID}.
func (h *teamsHandler) Get(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	t, err := h.svc.Get(r.Context(), chi.URLParam(r, "teamID"), u.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Update handles PATCH /api/v1/teams/{teamID}.
func (h *teamsHandler) Update(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	var req team.UpdateInput
	if err := readJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	teamID := chi.URLParam(r, "teamID")
	t, err := h.svc.Update(r.Context(), teamID, u.ID, req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	auditLog(r, "update", "team", teamID)
	writeJSON(w, http.StatusOK, t)
}

// Delete handles DELETE /api/v1/teams/{teamID}.
func (h *teamsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	teamID := chi.URLParam(r, "teamID")
	if err := h.svc.Delete(r.Context(), teamID, u.ID); err != nil {
		writeAppError(w, r, err)
		return
	}
	auditLog(r, "delete", "team", teamID)
	w.WriteHeader(http.StatusNoContent)
}

// ListMembers handles GET /api/v1/teams/{teamID}/members.
func (h *teamsHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	members, err := h.svc.ListMembers(r.Context(), chi.URLParam(r, "teamID"), u.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if members == nil {
		members = []*team.Member{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

// Invite handles POST /api/v1/teams/{teamID}/members.
func (h *teamsHandler) Invite(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	var req memberRefBody
	if err := readJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	teamID := chi.URLParam(r, "teamID")
	m, err := h.svc.Invite(r.Context(), teamID, u.ID, req.UserID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	auditLog(r, "invite", "team", teamID, "target_user_id", req.UserID)
	writeJSON(w, http.StatusCreated, m)
}

// UpdateMemberRole handles PATCH /api/v1/teams/{teamID}/members/{userID}.
func (h *teamsHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	var req memberRoleBody
	if err := readJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	teamID, targetID := chi.URLParam(r, "teamID"), chi.URLParam(r, "userID")
	m, err := h.svc.UpdateMemberRole(r.Context(), teamID, u.ID, targetID, team.Role(req.Role))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	auditLog(r, "change_role", "team", teamID, "target_user_id", targetID, "role", req.Role)
	writeJSON(w, http.StatusOK, m)
}

// RemoveMember handles DELETE /api/v1/teams/{teamID}/members/{userID}.
func (h *teamsHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	teamID, targetID := chi.URLParam(r, "teamID"), chi.URLParam(r, "userID")
	if err := h.svc.RemoveMember(r.Context(), teamID, u.ID, targetID); err != nil {
		writeAppError(w, r, err)
		return
	}
	auditLog(r, "remove_member", "team", teamID, "target_user_id", targetID)
	w.WriteHeader(http.StatusNoContent)
}

// TransferOwnership handles POST /api/v1/teams/{teamID}/owner.
func (h *teamsHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	var req memberRefBody
	if err := readJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	teamID := chi.URLParam(r, "teamID")
	t, err := h.svc.TransferOwnership(r.Context(), teamID, u.ID, req.UserID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	auditLog(r, "transfer_ownership", "team", teamID, "target_user_id", req.UserID)
	writeJSON(w, http.StatusOK, t)
}
