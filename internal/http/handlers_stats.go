package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/followscope/followscope/internal/service"
)

// StatsHandlers serves the read-only graph views.
type StatsHandlers struct {
	Status *service.StatusService
	Logger *slog.Logger
}

// NonFollowers handles GET /api/non-followers.
func (h *StatsHandlers) NonFollowers(w http.ResponseWriter, r *http.Request) {
	ident, ok := IdentityFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("no identity on request"),
		})
		return
	}

	list, err := h.Status.NonFollowers(r.Context(), ident.UserID)
	if err != nil {
		if h.Logger != nil {
			h.Logger.ErrorContext(r.Context(), "non-followers read failed",
				"user_id", ident.UserID, "error", err)
		}
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "read_failed",
			Err:     errors.New("could not read non-followers"),
		})
		return
	}
	if list == nil {
		list = []string{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"non_followers": list,
		"count":         len(list),
	})
}

// FollowStats handles GET /api/follow-stats.
func (h *StatsHandlers) FollowStats(w http.ResponseWriter, r *http.Request) {
	ident, ok := IdentityFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("no identity on request"),
		})
		return
	}

	stats, err := h.Status.FollowStats(r.Context(), ident.UserID)
	if err != nil {
		if h.Logger != nil {
			h.Logger.ErrorContext(r.Context(), "follow stats read failed",
				"user_id", ident.UserID, "error", err)
		}
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "read_failed",
			Err:     errors.New("could not read follow stats"),
		})
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}
