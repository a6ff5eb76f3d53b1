package user

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/trufflehub/farm-management/internal"
	"github.com/trufflehub/farm-management/internal/transport"
	"github.com/trufflehub/farm-management/pkg/logger"
)

type ServiceAPI interface {
	GetByID(ctx context.Context, userID int64) (*User, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

// GetCurrentUser handles GET /users/me
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	u, err := h.Service.GetByID(r.Context(), actor.UserID)
	if err != nil {
		if appErr, isApp := internal.IsAppError(err); isApp {
			status, body := appErr.ToHTTPResponse()
			h.WriteJSON(w, status, body)
			return
		}
		h.Logger.Error("failed to load current user", "user_id", actor.UserID, "error", err)
		h.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.WriteJSON(w, http.StatusOK, u)
}
