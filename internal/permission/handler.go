package permission

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/trufflehub/farm-management/internal"
	"github.com/trufflehub/farm-management/internal/transport"
	"github.com/trufflehub/farm-management/pkg/logger"
)

// Handler exposes the registry's admin surface. Every route here sits behind
// the authorize middleware; the handler itself only validates and delegates.
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

// List handles GET /permissions?status=&limit=&offset=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 50
	if raw := q.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	offset := 0
	if raw := q.Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	perms, err := h.Service.List(r.Context(), q.Get("status"), limit, offset)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, perms)
}

// Get handles GET /permissions/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	perm, err := h.Service.GetByID(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, perm)
}

// Register handles POST /permissions: manual registration.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var dto RegisterPermissionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.writeServiceError(w, err)
		return
	}

	perm, err := h.Service.Register(r.Context(), dto.Namespace, dto.Controller, dto.Action, dto.Description)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, perm)
}

// Archive handles POST /permissions/{id}/archive.
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	h.statusChange(w, r, h.Service.Archive)
}

// Reactivate handles POST /permissions/{id}/reactivate.
func (h *Handler) Reactivate(w http.ResponseWriter, r *http.Request) {
	h.statusChange(w, r, h.Service.Reactivate)
}

// AuditTrail handles GET /permissions/{id}/audit.
func (h *Handler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	entries, err := h.Service.AuditTrail(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, entries)
}

// CreateRole handles POST /roles.
func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var dto CreateRoleDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.writeServiceError(w, err)
		return
	}

	role, err := h.Service.CreateRole(r.Context(), dto.Name, dto.Description)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, role)
}

// ListRoles handles GET /roles.
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Service.ListRoles(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, roles)
}

// Grant handles POST /roles/{id}/permissions.
func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var dto GrantDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil || dto.PermissionID == 0 {
		h.WriteError(w, http.StatusBadRequest, "permission_id is required")
		return
	}

	if err := h.Service.GrantToRole(r.Context(), roleID, dto.PermissionID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Revoke handles DELETE /roles/{id}/permissions/{permissionID}.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	permissionID, err := strconv.ParseInt(chi.URLParam(r, "permissionID"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid permission id")
		return
	}

	if err := h.Service.RevokeFromRole(r.Context(), roleID, permissionID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignRole handles POST /role_assignments.
func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	var dto AssignmentDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.writeServiceError(w, err)
		return
	}

	if err := h.Service.AssignRole(r.Context(), dto.UserID, dto.RoleID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveRole handles DELETE /role_assignments.
func (h *Handler) RemoveRole(w http.ResponseWriter, r *http.Request) {
	var dto AssignmentDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.writeServiceError(w, err)
		return
	}

	if err := h.Service.RemoveRole(r.Context(), dto.UserID, dto.RoleID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) statusChange(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int64, reason string) (*Permission, error)) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var dto StatusChangeDTO
	if r.Body != nil {
		// Reason body is optional for status changes.
		_ = json.NewDecoder(r.Body).Decode(&dto)
	}

	perm, err := op(r.Context(), id, dto.Reason)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, perm)
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
