package notification

import (
	"encoding/json"
	"time"

	notificationDatamodel "github.com/trufflehub/farm-management/internal/core/datamodel/notification"
)

const (
	TypeInfo    = "info"
	TypeSuccess = "success"
	TypeWarning = "warning"
	TypeError   = "error"
)

// Notification is owned by exactly one user. Read, dismissed and displayed
// are independent one-way timestamps: each can only go from unset to set, so
// out-of-order or repeated transitions are harmless.
type Notification struct {
	ID               int64          `json:"id"`
	UserID           int64          `json:"user_id"`
	Message          string         `json:"message"`
	NotificationType string         `json:"notification_type"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	URL              *string        `json:"url,omitempty"`
	ReadAt           *time.Time     `json:"read_at,omitempty"`
	DismissedAt      *time.Time     `json:"dismissed_at,omitempty"`
	DisplayedAt      *time.Time     `json:"displayed_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func (n *Notification) IsRead() bool      { return n.ReadAt != nil }
func (n *Notification) IsDismissed() bool { return n.DismissedAt != nil }
func (n *Notification) IsDisplayed() bool { return n.DisplayedAt != nil }

// MarkRead sets read_at if unset. Returns whether anything changed.
func (n *Notification) MarkRead(at time.Time) bool {
	if n.ReadAt != nil {
		return false
	}
	n.ReadAt = &at
	return true
}

// Dismiss sets dismissed_at if unset. Returns whether anything changed.
func (n *Notification) Dismiss(at time.Time) bool {
	if n.DismissedAt != nil {
		return false
	}
	n.DismissedAt = &at
	return true
}

// MarkDisplayed sets displayed_at if unset. Returns whether anything changed.
func (n *Notification) MarkDisplayed(at time.Time) bool {
	if n.DisplayedAt != nil {
		return false
	}
	n.DisplayedAt = &at
	return true
}

var validTypes = map[string]struct{}{
	TypeInfo:    {},
	TypeSuccess: {},
	TypeWarning: {},
	TypeError:   {},
}

// NormalizeType coerces unknown or empty type names to info. Callers passing
// a bogus type get a valid notification, not an error.
func NormalizeType(notificationType string) string {
	if _, ok := validTypes[notificationType]; ok {
		return notificationType
	}
	return TypeInfo
}

// AutoReadAge returns how old an unread notification of this type may get
// before the cleanup worker marks it read.
func AutoReadAge(notificationType string) time.Duration {
	switch notificationType {
	case TypeWarning:
		return 5 * time.Minute
	case TypeError:
		return time.Hour
	default:
		return time.Minute
	}
}

func ToDataModel(n *Notification) (*notificationDatamodel.Notification, error) {
	metadata := ""
	if len(n.Metadata) > 0 {
		raw, err := json.Marshal(n.Metadata)
		if err != nil {
			return nil, err
		}
		metadata = string(raw)
	}

	return &notificationDatamodel.Notification{
		ID:               n.ID,
		UserID:           n.UserID,
		Message:          n.Message,
		NotificationType: n.NotificationType,
		Metadata:         metadata,
		URL:              n.URL,
		ReadAt:           n.ReadAt,
		DismissedAt:      n.DismissedAt,
		DisplayedAt:      n.DisplayedAt,
		CreatedAt:        n.CreatedAt,
		UpdatedAt:        n.UpdatedAt,
	}, nil
}

func FromDataModel(m *notificationDatamodel.Notification) *Notification {
	var metadata map[string]any
	if m.Metadata != "" {
		// Unparseable metadata is dropped rather than failing the read.
		_ = json.Unmarshal([]byte(m.Metadata), &metadata)
	}

	return &Notification{
		ID:               m.ID,
		UserID:           m.UserID,
		Message:          m.Message,
		NotificationType: m.NotificationType,
		Metadata:         metadata,
		URL:              m.URL,
		ReadAt:           m.ReadAt,
		DismissedAt:      m.DismissedAt,
		DisplayedAt:      m.DisplayedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func FromDataModelSlice(models []*notificationDatamodel.Notification) []*Notification {
	result := make([]*Notification, len(models))
	for i, m := range models {
		result[i] = FromDataModel(m)
	}
	return result
}
