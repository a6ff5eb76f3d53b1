package broadcast

import "time"

// Server-to-client envelope types carried on a user's channel.
const (
	TypeUnreadCountUpdated    = "unread_count_updated"
	TypeNotificationDismissed = "notification_dismissed"
	TypeAllNotificationsRead  = "all_notifications_read"
	TypePing                  = "ping"
)

// Client-to-server actions accepted on the same channel. The REST layer maps
// them onto notification endpoints; they are listed here because they are
// part of the channel contract.
const (
	ActionMarkAsRead      = "mark_as_read"
	ActionDismiss         = "dismiss"
	ActionMarkAsDisplayed = "mark_as_displayed"
	ActionRequestCount    = "request_count"
	ActionPong            = "pong"
)

// NotificationPayload is the new-notification delivery shape.
type NotificationPayload struct {
	ID               int64     `json:"id"`
	Message          string    `json:"message"`
	NotificationType string    `json:"notification_type"`
	CreatedAt        time.Time `json:"created_at"`
	URL              *string   `json:"url,omitempty"`
	UnreadCount      int64     `json:"unread_count"`
	ShowToast        bool      `json:"show_toast"`
}

// Envelope is the single wire shape for everything published to a user's
// channel. Exactly one of Notification or Type is set.
type Envelope struct {
	Notification *NotificationPayload `json:"notification,omitempty"`
	Type         string               `json:"type,omitempty"`
	Count        *int64               `json:"count,omitempty"`
	ID           int64                `json:"id,omitempty"`
	Timestamp    *time.Time           `json:"timestamp,omitempty"`
}

func NewNotificationEnvelope(payload NotificationPayload) Envelope {
	return Envelope{Notification: &payload}
}

func UnreadCountEnvelope(count int64) Envelope {
	now := time.Now()
	return Envelope{Type: TypeUnreadCountUpdated, Count: &count, Timestamp: &now}
}

func DismissedEnvelope(notificationID int64) Envelope {
	now := time.Now()
	return Envelope{Type: TypeNotificationDismissed, ID: notificationID, Timestamp: &now}
}

func AllReadEnvelope() Envelope {
	now := time.Now()
	var zero int64
	return Envelope{Type: TypeAllNotificationsRead, Count: &zero, Timestamp: &now}
}

func PingEnvelope() Envelope {
	return Envelope{Type: TypePing}
}
