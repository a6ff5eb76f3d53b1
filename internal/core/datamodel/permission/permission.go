package permission

import "time"

type Permission struct {
	ID              int64     `gorm:"primaryKey"`
	Namespace       string    `gorm:"column:namespace;not null;uniqueIndex:idx_permissions_route,priority:1"`
	Controller      string    `gorm:"column:controller;not null;uniqueIndex:idx_permissions_route,priority:2"`
	Action          string    `gorm:"column:action;not null;uniqueIndex:idx_permissions_route,priority:3"`
	Description     string    `gorm:"column:description"`
	Status          string    `gorm:"column:status;default:active"`
	DiscoveredAt    time.Time `gorm:"column:discovered_at"`
	DiscoveryMethod string    `gorm:"column:discovery_method;default:manual"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

type Role struct {
	ID          int64     `gorm:"primaryKey"`
	Name        string    `gorm:"column:name;uniqueIndex;not null"`
	Description string    `gorm:"column:description"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

type RolePermission struct {
	ID           int64     `gorm:"primaryKey"`
	RoleID       int64     `gorm:"column:role_id;not null;uniqueIndex:idx_role_permissions_pair,priority:1"`
	PermissionID int64     `gorm:"column:permission_id;not null;uniqueIndex:idx_role_permissions_pair,priority:2"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

type UserRole struct {
	ID        int64     `gorm:"primaryKey"`
	UserID    int64     `gorm:"column:user_id;not null;uniqueIndex:idx_user_roles_pair,priority:1"`
	RoleID    int64     `gorm:"column:role_id;not null;uniqueIndex:idx_user_roles_pair,priority:2"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// AuditEntry rows are append-only; nothing updates or deletes them.
type AuditEntry struct {
	ID            int64     `gorm:"primaryKey"`
	PermissionID  int64     `gorm:"column:permission_id;not null;index"`
	ChangeType    string    `gorm:"column:change_type;not null"`
	PreviousState *string   `gorm:"column:previous_state;type:text"`
	Reason        string    `gorm:"column:reason"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (AuditEntry) TableName() string {
	return "permission_audits"
}
