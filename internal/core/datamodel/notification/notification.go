package notification

import "time"

type Notification struct {
	ID               int64      `gorm:"primaryKey"`
	UserID           int64      `gorm:"column:user_id;not null;index"`
	Message          string     `gorm:"column:message;not null"`
	NotificationType string     `gorm:"column:notification_type;default:info"`
	Metadata         string     `gorm:"column:metadata;type:text"`
	URL              *string    `gorm:"column:url"`
	ReadAt           *time.Time `gorm:"column:read_at"`
	DismissedAt      *time.Time `gorm:"column:dismissed_at"`
	DisplayedAt      *time.Time `gorm:"column:displayed_at"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
