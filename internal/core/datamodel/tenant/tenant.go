package tenant

import "time"

type Tenant struct {
	ID        int64     `gorm:"primaryKey"`
	Handle    string    `gorm:"column:handle;uniqueIndex;not null"`
	Name      string    `gorm:"column:name;not null"`
	IsActive  bool      `gorm:"column:is_active;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

type Membership struct {
	ID        int64     `gorm:"primaryKey"`
	TenantID  int64     `gorm:"column:tenant_id;not null;uniqueIndex:idx_memberships_pair,priority:1"`
	UserID    int64     `gorm:"column:user_id;not null;uniqueIndex:idx_memberships_pair,priority:2"`
	IsDefault bool      `gorm:"column:is_default;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
