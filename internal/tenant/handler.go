package tenant

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/trufflehub/farm-management/internal"
	"github.com/trufflehub/farm-management/internal/transport"
	"github.com/trufflehub/farm-management/pkg/logger"
)

type CreateTenantDTO struct {
	Name   string `json:"name"`
	Handle string `json:"handle,omitempty"`
}

type MemberDTO struct {
	UserID int64 `json:"user_id"`
}

type Handler struct {
	*transport.BaseHandler
	Service *Service
}

func NewHandler(svc *Service) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

// Create handles POST /farms.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var dto CreateTenantDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if dto.Name == "" {
		h.WriteError(w, http.StatusBadRequest, "name is required")
		return
	}

	t, err := h.Service.Create(r.Context(), dto.Name, dto.Handle)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, t)
}

// List handles GET /farms.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	farms, err := h.Service.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, farms)
}

// GetByHandle handles GET /farms/{handle}.
func (h *Handler) GetByHandle(w http.ResponseWriter, r *http.Request) {
	t, err := h.Service.GetByHandle(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, t)
}

// AddMember handles POST /farms/{id}/members.
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var dto MemberDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil || dto.UserID == 0 {
		h.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	m, err := h.Service.AddMember(r.Context(), tenantID, dto.UserID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, m)
}

// RemoveMember handles DELETE /farms/{id}/members/{userID}.
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := h.Service.RemoveMember(r.Context(), tenantID, userID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetDefault handles POST /farms/{id}/default: the actor makes this farm
// their default scope.
func (h *Handler) SetDefault(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	tenantID, okID := h.pathID(w, r)
	if !okID {
		return
	}

	if err := h.Service.SetDefault(r.Context(), tenantID, actor.UserID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MyMemberships handles GET /farms/memberships for the actor.
func (h *Handler) MyMemberships(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	memberships, err := h.Service.MembershipsForUser(r.Context(), actor.UserID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, memberships)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	if appErr, ok := internal.IsAppError(err); ok {
		status, body := appErr.ToHTTPResponse()
		h.WriteJSON(w, status, body)
		return
	}
	h.WriteError(w, http.StatusInternalServerError, "internal server error")
}
