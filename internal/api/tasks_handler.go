package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/taskhub/internal/teamtask"
)

// tasksHandler groups team task handlers.
type tasksHandler struct {
	svc TaskService
}

func newTasksHandler(svc TaskService) *tasksHandler {
	return &tasksHandler{svc: svc}
}

type createTaskBody struct {
	Title       string  `json:"title" validate:"required"`
	Description *string `json:"description"`
}

type completionBody struct {
	Completed *bool `json:"completed" validate:"required"`
}

// List handles GET /api/v1/teams/{teamID}/tasks.
func (h *tasksHandler) List(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	tasks, err := h.svc.List(r.Context(), chi.URLParam(r, "teamID"), u.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []*teamtask.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// Create handles POST /api/v1/teams/{teamID}/tasks.
func (h *tasksHandler) Create(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	var req createTaskBody
	if err := readJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	teamID := chi.URLParam(r, "teamID")
	t, err := h.svc.Create(r.Context(), teamID, u.ID, teamtask.CreateInput{Title: req.Title, Description: req.Description})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	auditLog(r, "create", "team_task", t.ID, "team_id", teamID)
	writeJSON(w, http.StatusCreated, t)
}

// Get handles GET /api/v1/teams/{teamID}/tasks/{taskID}.
func (h *tasksHandler) Get(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	t, err := h.svc.Get(r.Context(), chi.URLParam(r, "teamID"), chi.URLParam(r, "taskID"), u.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Update handles PATCH /api/v1/teams/{teamID}/tasks/{taskID}.
func (h *tasksHandler) Update(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	var req teamtask.UpdateInput
	if err := readJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	t, err := h.svc.Update(r.Context(), chi.URLParam(r, "teamID"), chi.URLParam(r, "taskID"), u.ID, req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Delete handles DELETE /api/v1/teams/{teamID}/tasks/{taskID}.
func (h *tasksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	teamID, taskID := chi.URLParam(r, "teamID"), chi.URLParam(r, "taskID")
	if err := h.svc.Delete(r.Context(), teamID, taskID, u.ID); err != nil {
		writeAppError(w, r, err)
		return
	}
	auditLog(r, "delete", "team_task", taskID, "team_id", teamID)
	w.WriteHeader(http.StatusNoContent)
}

// SetCompletion handles PUT /api/v1/teams/{teamID}/tasks/{taskID}/completion.
func (h *tasksHandler) SetCompletion(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	var req completionBody
	if err := readJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	agg, err := h.svc.SetCompletion(r.Context(), chi.URLParam(r, "teamID"), chi.URLParam(r, "taskID"), u.ID, *req.Completed)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

// Completions handles GET /api/v1/teams/{teamID}/tasks/{taskID}/completions.
func (h *tasksHandler) Completions(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	cs, err := h.svc.Completions(r.Context(), chi.URLParam(r, "teamID"), chi.URLParam(r, "taskID"), u.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if cs == nil {
		cs = []teamtask.Completion{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"completions": cs})
}
