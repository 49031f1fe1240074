package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/taskhub/internal/apperr"
	"github.com/alecgard/taskhub/internal/todo"
)

// todosHandler groups personal todo handlers.
type todosHandler struct {
	svc TodoService
}

func newTodosHandler(svc TodoService) *todosHandler {
	return &todosHandler{svc: svc}
}

type createTodoBody struct {
	Title       string  `json:"title" validate:"required"`
	Description *string `json:"description"`
}

var errInvalidCompletedFilter = apperr.Validation("invalid_filter", "completed", "completed must be true or false")

// List handles GET /api/v1/todos.
func (h *todosHandler) List(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}

	var params todo.ListParams
	if v := r.URL.Query().Get("completed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeAppError(w, r, errInvalidCompletedFilter)
			return
		}
		params.Completed = &b
	}

	todos, err := h.svc.List(r.Context(), u.ID, params)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if todos == nil {
		todos = []*todo.Todo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"todos": todos})
}

// Create handles POST /api/v1/todos.
func (h *todosHandler) Create(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	var req createTodoBody
	if err := readJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	t, err := h.svc.Create(r.Context(), u.ID, todo.CreateInput{Title: req.Title, Description: req.Description})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// Get handles GET /api/v1/todos/{todoID}.
func (h *todosHandler) Get(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	t, err := h.svc.Get(r.Context(), u.ID, chi.URLParam(r, "todoID"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Update handles PATCH /api/v1/todos/{todoID}.
func (h *todosHandler) Update(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	var req todo.UpdateInput
	if err := readJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	t, err := h.svc.Update(r.Context(), u.ID, chi.URLParam(r, "todoID"), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Complete handles POST /api/v1/todos/{todoID}/complete.
func (h *todosHandler) Complete(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	t, err := h.svc.Complete(r.Context(), u.ID, chi.URLParam(r, "todoID"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Delete handles DELETE /api/v1/todos/{todoID}.
func (h *todosHandler) Delete(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	if err := h.svc.Delete(r.Context(), u.ID, chi.URLParam(r, "todoID")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
