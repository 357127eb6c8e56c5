package httpx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/followscope/followscope/internal/adapters/botworker"
	"github.com/followscope/followscope/internal/domain/model"
	"github.com/followscope/followscope/internal/service"
)

// BotSubmitter accepts bot job submissions. Implemented by botworker.Worker.
type BotSubmitter interface {
	Submit(ctx context.Context, userID string, kind model.BotKind) error
}

// BotHandlers serves bot job submission and status polling.
type BotHandlers struct {
	Worker BotSubmitter
	Status *service.StatusService
	Logger *slog.Logger
}

// Run handles POST /api/bots/{kind}/run. It returns 202 Accepted once the
// job is admitted; the client polls status for the outcome.
func (h *BotHandlers) Run(w http.ResponseWriter, r *http.Request) {
	ident, ok := IdentityFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("no identity on request"),
		})
		return
	}

	var kind model.BotKind
	if err := kind.UnmarshalText([]byte(r.PathValue("kind"))); err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_bot_kind",
			Err:     err,
		})
		return
	}

	if err := h.Worker.Submit(r.Context(), ident.UserID, kind); err != nil {
		h.writeSubmitError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"kind":   string(kind),
	})
}

// writeSubmitError maps submission failures to their status codes.
func (h *BotHandlers) writeSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	var busy *service.AlreadyRunningError
	var writeFailed *service.AdmissionWriteError

	switch {
	case errors.As(err, &busy):
		WriteError(w, ErrorParams{
			Code:    http.StatusConflict,
			ErrCode: "already_running",
			Err:     busy,
		})
	case errors.Is(err, service.ErrGlobalCapacity):
		WriteError(w, ErrorParams{
			Code:    http.StatusTooManyRequests,
			ErrCode: "capacity_exhausted",
			Err:     errors.New("too many bots running, retry later"),
		})
	case errors.As(err, &writeFailed):
		WriteError(w, ErrorParams{
			Code:    http.StatusServiceUnavailable,
			ErrCode: "admission_unavailable",
			Err:     errors.New("could not record job start, retry later"),
		})
	case errors.Is(err, botworker.ErrNoSession):
		WriteError(w, ErrorParams{
			Code:    http.StatusPreconditionFailed,
			ErrCode: "no_remote_session",
			Err:     errors.New("log in to the remote network first"),
		})
	default:
		if h.Logger != nil {
			h.Logger.ErrorContext(r.Context(), "bot submission failed", "error", err)
		}
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "submission_failed",
			Err:     errors.New("could not submit job"),
		})
	}
}

// GetStatus handles GET /api/bots/status.
func (h *BotHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	ident, ok := IdentityFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("no identity on request"),
		})
		return
	}

	st, err := h.Status.GetStatus(r.Context(), ident.UserID)
	if err != nil {
		if h.Logger != nil {
			h.Logger.ErrorContext(r.Context(), "status read failed",
				"user_id", ident.UserID, "error", err)
		}
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "status_read_failed",
			Err:     fmt.Errorf("could not read status"),
		})
		return
	}

	WriteJSON(w, http.StatusOK, st)
}
