package notification

import (
	"github.com/trufflehub/farm-management/internal"
)

// CreateNotificationDTO is the creation request shape for both the service
// API and the admin HTTP endpoint.
type CreateNotificationDTO struct {
	Message          string         `json:"message"`
	NotificationType string         `json:"notification_type"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	URL              *string        `json:"url,omitempty"`
}

func (d CreateNotificationDTO) Validate() error {
	if d.Message == "" {
		return internal.NewValidationError("message is required", internal.ErrCodeMissingMessage)
	}
	return nil
}

// NotifyAllDTO targets a set of users with one message.
type NotifyAllDTO struct {
	UserIDs []int64 `json:"user_ids"`
	CreateNotificationDTO
}

func (d NotifyAllDTO) Validate() error {
	if len(d.UserIDs) == 0 {
		return internal.NewValidationError("user_ids is required", internal.ErrCodeValidationFailed)
	}
	return d.CreateNotificationDTO.Validate()
}

// UnreadCountResponse is returned by the count endpoint.
type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

// MarkAllReadResponse reports how many notifications flipped to read.
type MarkAllReadResponse struct {
	MarkedRead int64 `json:"marked_read"`
}
