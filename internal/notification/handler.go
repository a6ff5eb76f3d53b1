package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/trufflehub/farm-management/internal"
	"github.com/trufflehub/farm-management/internal/broadcast"
	"github.com/trufflehub/farm-management/internal/transport"
	"github.com/trufflehub/farm-management/pkg/logger"
)

type ServiceAPI interface {
	Notify(ctx context.Context, userID int64, dto CreateNotificationDTO) (*Notification, error)
	NotifyAll(ctx context.Context, userIDs []int64, dto CreateNotificationDTO) (int, error)
	GetByID(ctx context.Context, actor *internal.Actor, id int64) (*Notification, error)
	ListUnread(ctx context.Context, actor *internal.Actor, limit int) ([]*Notification, error)
	UnreadCount(ctx context.Context, userID int64) (int64, error)
	MarkAsRead(ctx context.Context, actor *internal.Actor, id int64) error
	Dismiss(ctx context.Context, actor *internal.Actor, id int64) error
	MarkAsDisplayed(ctx context.Context, actor *internal.Actor, id int64) error
	MarkAllAsRead(ctx context.Context, actor *internal.Actor) (int64, error)
	RequestCount(ctx context.Context, actor *internal.Actor) (int64, error)
}

type Handler struct {
	*transport.BaseHandler
	Service     ServiceAPI
	Broadcaster *broadcast.Broadcaster
}

func NewHandler(svc ServiceAPI, b *broadcast.Broadcaster) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
		Broadcaster: b,
	}
}

// ListUnread handles GET /notifications?limit=n.
func (h *Handler) ListUnread(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	items, err := h.Service.ListUnread(r.Context(), actor, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, items)
}

// UnreadCount handles GET /notifications/unread_count.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	count, err := h.Service.UnreadCount(r.Context(), actor.UserID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, UnreadCountResponse{Count: count})
}

// MarkAsRead handles POST /notifications/{id}/read.
func (h *Handler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.MarkAsRead)
}

// Dismiss handles POST /notifications/{id}/dismiss.
func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.Dismiss)
}

// MarkAsDisplayed handles POST /notifications/{id}/displayed.
func (h *Handler) MarkAsDisplayed(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.MarkAsDisplayed)
}

// MarkAllAsRead handles POST /notifications/read_all.
func (h *Handler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	marked, err := h.Service.MarkAllAsRead(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, MarkAllReadResponse{MarkedRead: marked})
}

// RequestCount handles POST /notifications/request_count: re-broadcasts the
// actor's unread count on their channel.
func (h *Handler) RequestCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	count, err := h.Service.RequestCount(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, UnreadCountResponse{Count: count})
}

// Create handles POST /notifications. Creating notifications for other users
// sits behind the admin authorize middleware on the route.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID int64 `json:"user_id"`
		CreateNotificationDTO
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.UserID == 0 {
		h.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	n, err := h.Service.Notify(r.Context(), body.UserID, body.CreateNotificationDTO)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, n)
}

// NotifyAll handles POST /notifications/broadcast (admin).
func (h *Handler) NotifyAll(w http.ResponseWriter, r *http.Request) {
	var dto NotifyAllDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.writeServiceError(w, err)
		return
	}

	created, err := h.Service.NotifyAll(r.Context(), dto.UserIDs, dto.CreateNotificationDTO)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusAccepted, map[string]int{"created": created})
}

// Stream handles GET /notifications/stream: an SSE bridge onto the actor's
// broadcast channel. The subscription lives for the request context.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.WriteError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := h.Broadcaster.Subscribe(r.Context(), actor.UserID)

	// Prime the stream with the current unread count.
	if count, err := h.Service.UnreadCount(r.Context(), actor.UserID); err == nil {
		h.writeSSE(w, broadcast.UnreadCountEnvelope(count))
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case env, open := <-events:
			if !open {
				return
			}
			h.writeSSE(w, env)
			flusher.Flush()
		}
	}
}

func (h *Handler) writeSSE(w http.ResponseWriter, env broadcast.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.Logger.Error("failed to encode stream envelope", "error", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, actor *internal.Actor, id int64) error) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	if err := op(r.Context(), actor, id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	if appErr, ok := internal.IsAppError(err); ok {
		status, body := appErr.ToHTTPResponse()
		h.WriteJSON(w, status, body)
		return
	}
	h.WriteError(w, http.StatusInternalServerError, "internal server error")
}
