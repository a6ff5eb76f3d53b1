package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/trufflehub/farm-management/internal"
	"github.com/trufflehub/farm-management/internal/broadcast"
)

// CleanupSummary reports what one cleanup run did.
type CleanupSummary struct {
	AutoRead   int64 `json:"auto_read"`
	OldDeleted int64 `json:"old_deleted"`
}

// CleanupWorker runs two independent, idempotent passes: auto-marking stale
// unread notifications as read (age threshold depends on type), and purging
// everything past the retention window regardless of state. Purged rows leave
// no audit trail; notifications are ephemeral by design.
type CleanupWorker struct {
	repo      Repository
	publisher Publisher
	counts    *CountCache
	logger    *slog.Logger
	retention time.Duration
	now       func() time.Time
}

func NewCleanupWorker(repo Repository, publisher Publisher, counts *CountCache, logger *slog.Logger, cfg internal.NotificationConfig) *CleanupWorker {
	retention := cfg.Retention()
	if retention <= 0 {
		retention = time.Duration(internal.DefaultNotificationRetention) * 24 * time.Hour
	}
	return &CleanupWorker{
		repo:      repo,
		publisher: publisher,
		counts:    counts,
		logger:    logger,
		retention: retention,
		now:       time.Now,
	}
}

// autoReadGroups pairs notification types with the unread age at which they
// flip to read automatically.
var autoReadGroups = []struct {
	types []string
	age   time.Duration
}{
	{types: []string{TypeInfo, TypeSuccess}, age: time.Minute},
	{types: []string{TypeWarning}, age: 5 * time.Minute},
	{types: []string{TypeError}, age: time.Hour},
}

// Run executes both passes. A failure in one pass does not stop the other;
// the first error is returned alongside whatever work completed.
func (w *CleanupWorker) Run(ctx context.Context) (CleanupSummary, error) {
	var summary CleanupSummary
	var firstErr error

	autoRead, err := w.autoReadPass(ctx)
	summary.AutoRead = autoRead
	if err != nil {
		firstErr = err
	}

	deleted, err := w.purgePass(ctx)
	summary.OldDeleted = deleted
	if err != nil && firstErr == nil {
		firstErr = err
	}

	w.logger.Info("notification cleanup finished",
		"auto_read", summary.AutoRead,
		"old_deleted", summary.OldDeleted)
	return summary, firstErr
}

func (w *CleanupWorker) autoReadPass(ctx context.Context) (int64, error) {
	var total int64
	now := w.now()

	for _, group := range autoReadGroups {
		due, err := w.repo.FindAutoReadDue(ctx, group.types, now.Add(-group.age))
		if err != nil {
			return total, fmt.Errorf("auto-read lookup failed: %w", err)
		}
		if len(due) == 0 {
			continue
		}

		ids := make([]int64, len(due))
		affectedUsers := make(map[int64]struct{})
		for i, n := range due {
			ids[i] = n.ID
			affectedUsers[n.UserID] = struct{}{}
		}

		marked, err := w.repo.MarkManyRead(ctx, ids, now)
		if err != nil {
			return total, fmt.Errorf("auto-read update failed: %w", err)
		}
		total += marked

		for userID := range affectedUsers {
			w.counts.Invalidate(userID)
			count, err := w.repo.CountUnread(ctx, userID)
			if err != nil {
				w.logger.Error("failed to recount after auto-read", "error", err, "user_id", userID)
				continue
			}
			w.counts.Set(userID, count)
			w.publisher.Publish(userID, broadcast.UnreadCountEnvelope(count))
		}
	}

	return total, nil
}

func (w *CleanupWorker) purgePass(ctx context.Context) (int64, error) {
	cutoff := w.now().Add(-w.retention)
	deleted, err := w.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention purge failed: %w", err)
	}
	return deleted, nil
}
