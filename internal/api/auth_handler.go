package api

import (
	"net/http"

	"github.com/alecgard/taskhub/internal/auth"
	"github.com/alecgard/taskhub/internal/notify"
	"github.com/alecgard/taskhub/internal/user"
)

// authHandler groups authentication HTTP handlers.
type authHandler struct {
	svc AuthService
}

func newAuthHandler(svc AuthService) *authHandler {
	return &authHandler{svc: svc}
}

type requestCodeBody struct {
	Channel string `json:"channel" validate:"required,oneof=phone email"`
	Value   string `json:"value" validate:"required,max=254"`
}

type verifyCodeBody struct {
	Channel string `json:"channel" validate:"required,oneof=phone email"`
	Value   string `json:"value" validate:"required,max=254"`
	Code    string `json:"code" validate:"required,max=16"`
}

type updateMeBody struct {
	Username string `json:"username" validate:"required"`
}

// RequestCode handles POST /api/v1/auth/request-code.
func (h *authHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req requestCodeBody
	if err := readJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	res, err := h.svc.RequestCode(r.Context(), notify.Channel(req.Channel), req.Value)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// VerifyCode handles POST /api/v1/auth/verify-code.
func (h *authHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeBody
	if err := readJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	tok, err := h.svc.VerifyCode(r.Context(), notify.Channel(req.Channel), req.Value, req.Code)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	auditLog(r, "login", "user", tok.UserID, "channel", req.Channel)
	writeJSON(w, http.StatusOK, tok)
}

// Logout handles POST /api/v1/auth/logout.
func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Logout(r.Context(), auth.TokenFromContext(r.Context()))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// LogoutAll handles POST /api/v1/auth/logout-all.
func (h *authHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	res, err := h.svc.LogoutAll(r.Context(), u.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	auditLog(r, "logout_all", "user", u.ID, "sessions", res.Sessions)
	writeJSON(w, http.StatusOK, res)
}

// Me handles GET /api/v1/auth/me.
func (h *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	fresh, err := h.svc.CurrentUser(r.Context(), u.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fresh)
}

// UpdateMe handles PATCH /api/v1/auth/me.
func (h *authHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r)
	if u == nil {
		return
	}
	var req updateMeBody
	if err := readJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	updated, err := h.svc.UpdateUsername(r.Context(), u.ID, req.Username)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	auditLog(r, "update", "user", u.ID, "username", updated.Username)
	writeJSON(w, http.StatusOK, updated)
}

// Stats handles GET /api/v1/auth/stats.
func (h *authHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// currentUser returns the authenticated user, writing a 401 when the
// request carries none.
func currentUser(w http.ResponseWriter, r *http.Request) *user.User {
	u := auth.UserFromContext(r.Context())
	if u == nil {
		writeAppError(w, r, errNotAuthed)
	}
	return u
}
