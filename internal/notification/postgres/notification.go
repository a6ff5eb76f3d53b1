package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/trufflehub/farm-management/internal"
	notificationDatamodel "github.com/trufflehub/farm-management/internal/core/datamodel/notification"
	"github.com/trufflehub/farm-management/internal/notification"
)

// NotificationRepository implements notification.Repository using GORM.
// All Mark* writes carry a "still NULL" guard so they stay idempotent under
// concurrent or repeated delivery.
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) notification.Repository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	model, err := notification.ToDataModel(n)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	n.ID = model.ID
	n.CreatedAt = model.CreatedAt
	n.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*notification.Notification, error) {
	var model notificationDatamodel.Notification
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrNotificationNotFound
		}
		return nil, err
	}
	return notification.FromDataModel(&model), nil
}

func (r *NotificationRepository) ListUnread(ctx context.Context, userID int64, limit int) ([]*notification.Notification, error) {
	var models []*notificationDatamodel.Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND read_at IS NULL AND dismissed_at IS NULL", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return notification.FromDataModelSlice(models), nil
}

func (r *NotificationRepository) ListForUser(ctx context.Context, userID int64, limit, offset int) ([]*notification.Notification, error) {
	var models []*notificationDatamodel.Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return notification.FromDataModelSlice(models), nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&notificationDatamodel.Notification{}).
		Where("user_id = ? AND read_at IS NULL AND dismissed_at IS NULL", userID).
		Count(&count).Error
	return count, err
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&notificationDatamodel.Notification{}).
		Where("id = ? AND read_at IS NULL", id).
		Updates(map[string]interface{}{"read_at": at, "updated_at": time.Now()}).Error
}

func (r *NotificationRepository) MarkDismissed(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&notificationDatamodel.Notification{}).
		Where("id = ? AND dismissed_at IS NULL", id).
		Updates(map[string]interface{}{"dismissed_at": at, "updated_at": time.Now()}).Error
}

func (r *NotificationRepository) MarkDisplayed(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&notificationDatamodel.Notification{}).
		Where("id = ? AND displayed_at IS NULL", id).
		Updates(map[string]interface{}{"displayed_at": at, "updated_at": time.Now()}).Error
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID int64, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&notificationDatamodel.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Updates(map[string]interface{}{"read_at": at, "updated_at": time.Now()})
	return result.RowsAffected, result.Error
}

func (r *NotificationRepository) FindAutoReadDue(ctx context.Context, types []string, cutoff time.Time) ([]*notification.Notification, error) {
	var models []*notificationDatamodel.Notification
	err := r.db.WithContext(ctx).
		Where("notification_type IN ? AND read_at IS NULL AND created_at < ?", types, cutoff).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return notification.FromDataModelSlice(models), nil
}

func (r *NotificationRepository) MarkManyRead(ctx context.Context, ids []int64, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&notificationDatamodel.Notification{}).
		Where("id IN ? AND read_at IS NULL", ids).
		Updates(map[string]interface{}{"read_at": at, "updated_at": time.Now()})
	return result.RowsAffected, result.Error
}

func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&notificationDatamodel.Notification{})
	return result.RowsAffected, result.Error
}
