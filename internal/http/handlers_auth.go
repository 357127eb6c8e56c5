package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/followscope/followscope/internal/core"
	"github.com/followscope/followscope/internal/domain/model"
)

// AuthHandlers manages the remote session lifecycle: the client logs in to
// the remote network on its side and posts the resulting cookies here so bot
// runs can act as the user.
type AuthHandlers struct {
	Sessions core.SessionStore
	Logger   *slog.Logger
}

// loginRequest is the POST /api/auth/login payload.
type loginRequest struct {
	RemoteUserID string                `json:"remote_user_id"`
	Cookies      []model.SessionCookie `json:"cookies"`
	ProfileURL   string                `json:"profile_url"`
}

// Login stores the caller's remote session.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	ident, ok := IdentityFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("no identity on request"),
		})
		return
	}

	var req loginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.RemoteUserID == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_request",
			Err:     errors.New("remote_user_id is required"),
		})
		return
	}
	if len(req.Cookies) == 0 {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_request",
			Err:     errors.New("at least one session cookie is required"),
		})
		return
	}

	sess := model.RemoteSession{
		UserID:       ident.UserID,
		RemoteUserID: req.RemoteUserID,
		Cookies:      req.Cookies,
		ProfileURL:   req.ProfileURL,
	}
	if err := h.Sessions.Save(r.Context(), sess); err != nil {
		if h.Logger != nil {
			h.Logger.ErrorContext(r.Context(), "failed to save remote session",
				"user_id", ident.UserID, "error", err)
		}
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "session_save_failed",
			Err:     errors.New("could not store session"),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_in"})
}

// Logout removes the caller's stored remote session.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	ident, ok := IdentityFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("no identity on request"),
		})
		return
	}

	if err := h.Sessions.Delete(r.Context(), ident.UserID); err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "session_delete_failed",
			Err:     errors.New("could not delete session"),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}
