package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/trufflehub/farm-management/internal"
	"github.com/trufflehub/farm-management/internal/broadcast"
)

// Repository is the notification store. The Mark* operations are idempotent
// at the store level: each sets its timestamp only when it is still NULL.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	GetByID(ctx context.Context, id int64) (*Notification, error)
	ListUnread(ctx context.Context, userID int64, limit int) ([]*Notification, error)
	ListForUser(ctx context.Context, userID int64, limit, offset int) ([]*Notification, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
	MarkRead(ctx context.Context, id int64, at time.Time) error
	MarkDismissed(ctx context.Context, id int64, at time.Time) error
	MarkDisplayed(ctx context.Context, id int64, at time.Time) error
	MarkAllRead(ctx context.Context, userID int64, at time.Time) (int64, error)
	FindAutoReadDue(ctx context.Context, types []string, cutoff time.Time) ([]*Notification, error)
	MarkManyRead(ctx context.Context, ids []int64, at time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Publisher is the broadcast side of the service. Publishing is best-effort
// and never blocks or fails the caller; the Broadcaster hub satisfies this.
type Publisher interface {
	Publish(userID int64, env broadcast.Envelope)
}

// Service handles notification creation, the per-notification state machine
// and the broadcast side effects.
type Service struct {
	repo       Repository
	publisher  Publisher
	counts     *CountCache
	logger     *slog.Logger
	batchSize  int
	batchPause time.Duration
}

func NewService(repo Repository, publisher Publisher, counts *CountCache, logger *slog.Logger, cfg internal.NotificationConfig) *Service {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = internal.DefaultNotificationBatchSize
	}
	batchPause := cfg.BatchPause
	if batchPause < 0 {
		batchPause = internal.DefaultNotificationBatchPause
	}

	return &Service{
		repo:       repo,
		publisher:  publisher,
		counts:     counts,
		logger:     logger,
		batchSize:  batchSize,
		batchPause: batchPause,
	}
}

// Notify persists a notification for one user and broadcasts it. The write is
// durable before the broadcast happens; broadcast trouble never rolls the
// creation back. Unknown types coerce to info.
func (s *Service) Notify(ctx context.Context, userID int64, dto CreateNotificationDTO) (*Notification, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("notification validation failed", "error", err, "user_id", userID)
		return nil, err
	}

	n := &Notification{
		UserID:           userID,
		Message:          dto.Message,
		NotificationType: NormalizeType(dto.NotificationType),
		Metadata:         dto.Metadata,
		URL:              dto.URL,
	}

	if err := s.repo.Create(ctx, n); err != nil {
		s.logger.Error("failed to create notification", "error", err, "user_id", userID)
		return nil, err
	}

	s.counts.Invalidate(userID)
	unread := s.unreadCountQuiet(ctx, userID)

	s.publisher.Publish(userID, broadcast.NewNotificationEnvelope(broadcast.NotificationPayload{
		ID:               n.ID,
		Message:          n.Message,
		NotificationType: n.NotificationType,
		CreatedAt:        n.CreatedAt,
		URL:              n.URL,
		UnreadCount:      unread,
		ShowToast:        true,
	}))

	s.logger.Info("notification created",
		"notification_id", n.ID,
		"user_id", userID,
		"notification_type", n.NotificationType)

	return n, nil
}

// NotifyAll applies the single-user path to each target in bounded batches
// with a pause in between, so a large fan-out cannot flood the broadcast
// transport. Per-user failures are logged and skipped, not fatal.
func (s *Service) NotifyAll(ctx context.Context, userIDs []int64, dto CreateNotificationDTO) (int, error) {
	if err := dto.Validate(); err != nil {
		return 0, err
	}

	created := 0
	for start := 0; start < len(userIDs); start += s.batchSize {
		end := start + s.batchSize
		if end > len(userIDs) {
			end = len(userIDs)
		}

		for _, userID := range userIDs[start:end] {
			if _, err := s.Notify(ctx, userID, dto); err != nil {
				s.logger.Error("skipping notification in batch", "error", err, "user_id", userID)
				continue
			}
			created++
		}

		if end < len(userIDs) && s.batchPause > 0 {
			select {
			case <-ctx.Done():
				return created, ctx.Err()
			case <-time.After(s.batchPause):
			}
		}
	}

	s.logger.Info("batch notification complete", "targets", len(userIDs), "created", created)
	return created, nil
}

// GetByID returns the notification only to its owner; anyone else gets
// not-found, never the record.
func (s *Service) GetByID(ctx context.Context, actor *internal.Actor, id int64) (*Notification, error) {
	return s.getOwned(ctx, actor, id)
}

// ListUnread returns the actor's unread notifications, most recent first.
func (s *Service) ListUnread(ctx context.Context, actor *internal.Actor, limit int) ([]*Notification, error) {
	if actor == nil {
		return nil, internal.ErrNotificationNotFound
	}
	return s.repo.ListUnread(ctx, actor.UserID, limit)
}

// UnreadCount serves from the per-user cache when fresh.
func (s *Service) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	if count, ok := s.counts.Get(userID); ok {
		return count, nil
	}
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.counts.Set(userID, count)
	return count, nil
}

// MarkAsRead flips read_at once; repeated calls are no-ops. A fresh unread
// count is broadcast to the owner's channel afterwards.
func (s *Service) MarkAsRead(ctx context.Context, actor *internal.Actor, id int64) error {
	n, err := s.getOwned(ctx, actor, id)
	if err != nil {
		return err
	}

	if err := s.repo.MarkRead(ctx, n.ID, time.Now()); err != nil {
		s.logger.Error("failed to mark notification read", "error", err, "notification_id", id)
		return err
	}

	s.counts.Invalidate(actor.UserID)
	s.broadcastUnreadCount(ctx, actor.UserID)
	return nil
}

// Dismiss flips dismissed_at once and emits both the dismissal event and a
// fresh unread count.
func (s *Service) Dismiss(ctx context.Context, actor *internal.Actor, id int64) error {
	n, err := s.getOwned(ctx, actor, id)
	if err != nil {
		return err
	}

	if err := s.repo.MarkDismissed(ctx, n.ID, time.Now()); err != nil {
		s.logger.Error("failed to dismiss notification", "error", err, "notification_id", id)
		return err
	}

	s.counts.Invalidate(actor.UserID)
	s.publisher.Publish(actor.UserID, broadcast.DismissedEnvelope(n.ID))
	s.broadcastUnreadCount(ctx, actor.UserID)
	return nil
}

// MarkAsDisplayed flips displayed_at once. The unread count does not change
// but a fresh count broadcast still goes out per the channel contract.
func (s *Service) MarkAsDisplayed(ctx context.Context, actor *internal.Actor, id int64) error {
	n, err := s.getOwned(ctx, actor, id)
	if err != nil {
		return err
	}

	if err := s.repo.MarkDisplayed(ctx, n.ID, time.Now()); err != nil {
		s.logger.Error("failed to mark notification displayed", "error", err, "notification_id", id)
		return err
	}

	s.broadcastUnreadCount(ctx, actor.UserID)
	return nil
}

// MarkAllAsRead bulk-reads everything unread for the actor and emits the
// all-read event exactly once.
func (s *Service) MarkAllAsRead(ctx context.Context, actor *internal.Actor) (int64, error) {
	if actor == nil {
		return 0, internal.ErrNotificationNotFound
	}

	marked, err := s.repo.MarkAllRead(ctx, actor.UserID, time.Now())
	if err != nil {
		s.logger.Error("failed to mark all notifications read", "error", err, "user_id", actor.UserID)
		return 0, err
	}

	s.counts.Set(actor.UserID, 0)
	s.publisher.Publish(actor.UserID, broadcast.AllReadEnvelope())

	s.logger.Info("all notifications marked read", "user_id", actor.UserID, "marked", marked)
	return marked, nil
}

// RequestCount re-broadcasts the actor's current unread count on demand.
func (s *Service) RequestCount(ctx context.Context, actor *internal.Actor) (int64, error) {
	if actor == nil {
		return 0, internal.ErrNotificationNotFound
	}
	count, err := s.UnreadCount(ctx, actor.UserID)
	if err != nil {
		return 0, err
	}
	s.publisher.Publish(actor.UserID, broadcast.UnreadCountEnvelope(count))
	return count, nil
}

func (s *Service) getOwned(ctx context.Context, actor *internal.Actor, id int64) (*Notification, error) {
	if actor == nil {
		return nil, internal.ErrNotificationNotFound
	}

	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.UserID != actor.UserID {
		// Not the owner: report not-found so the record's existence leaks
		// nothing.
		s.logger.Warn("cross-user notification access refused",
			"notification_id", id, "owner_id", n.UserID, "actor_id", actor.UserID)
		return nil, internal.ErrNotificationNotFound
	}
	return n, nil
}

func (s *Service) broadcastUnreadCount(ctx context.Context, userID int64) {
	count, err := s.UnreadCount(ctx, userID)
	if err != nil {
		s.logger.Error("failed to compute unread count for broadcast", "error", err, "user_id", userID)
		return
	}
	s.publisher.Publish(userID, broadcast.UnreadCountEnvelope(count))
}

func (s *Service) unreadCountQuiet(ctx context.Context, userID int64) int64 {
	count, err := s.UnreadCount(ctx, userID)
	if err != nil {
		s.logger.Error("failed to compute unread count", "error", err, "user_id", userID)
		return 0
	}
	return count
}
