package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/trufflehub/farm-management/internal"
	tenantDatamodel "github.com/trufflehub/farm-management/internal/core/datamodel/tenant"
	"github.com/trufflehub/farm-management/internal/tenant"
)

// TenantRepository implements tenant.Repository using GORM. Handles are stored
// normalized so uniqueness at the column level is also case-insensitive
// uniqueness at the domain level.
type TenantRepository struct {
	db *gorm.DB
}

func NewTenantRepository(db *gorm.DB) tenant.Repository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	model := tenant.ToDataModel(t)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return internal.ErrDuplicateHandle.WithCause(err)
		}
		return err
	}
	t.ID = model.ID
	t.CreatedAt = model.CreatedAt
	t.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *TenantRepository) GetByID(ctx context.Context, id int64) (*tenant.Tenant, error) {
	var model tenantDatamodel.Tenant
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrTenantNotFound
		}
		return nil, err
	}
	return tenant.FromDataModel(&model), nil
}

func (r *TenantRepository) FindByHandle(ctx context.Context, handle string) (*tenant.Tenant, error) {
	var model tenantDatamodel.Tenant
	err := r.db.WithContext(ctx).Where("handle = ?", handle).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrTenantNotFound
		}
		return nil, err
	}
	return tenant.FromDataModel(&model), nil
}

func (r *TenantRepository) List(ctx context.Context) ([]*tenant.Tenant, error) {
	var models []*tenantDatamodel.Tenant
	if err := r.db.WithContext(ctx).Order("handle").Find(&models).Error; err != nil {
		return nil, err
	}
	result := make([]*tenant.Tenant, len(models))
	for i, m := range models {
		result[i] = tenant.FromDataModel(m)
	}
	return result, nil
}

func (r *TenantRepository) AddMembership(ctx context.Context, m *tenant.Membership) error {
	model := &tenantDatamodel.Membership{
		TenantID:  m.TenantID,
		UserID:    m.UserID,
		IsDefault: m.IsDefault,
	}
	err := r.db.WithContext(ctx).Create(model).Error
	if err != nil {
		if isUniqueViolation(err) {
			// Already a member, nothing to do.
			return nil
		}
		return err
	}
	m.ID = model.ID
	m.CreatedAt = model.CreatedAt
	return nil
}

func (r *TenantRepository) RemoveMembership(ctx context.Context, tenantID, userID int64) error {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		Delete(&tenantDatamodel.Membership{}).Error
}

func (r *TenantRepository) HasMembership(ctx context.Context, userID, tenantID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&tenantDatamodel.Membership{}).
		Where("user_id = ? AND tenant_id = ?", userID, tenantID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *TenantRepository) MembershipsForUser(ctx context.Context, userID int64) ([]*tenant.Membership, error) {
	var models []*tenantDatamodel.Membership
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	result := make([]*tenant.Membership, len(models))
	for i, m := range models {
		result[i] = tenant.MembershipFromDataModel(m)
	}
	return result, nil
}

func (r *TenantRepository) ClearDefault(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).
		Model(&tenantDatamodel.Membership{}).
		Where("user_id = ? AND is_default = ?", userID, true).
		Update("is_default", false).Error
}

func (r *TenantRepository) SetDefault(ctx context.Context, tenantID, userID int64) error {
	return r.db.WithContext(ctx).
		Model(&tenantDatamodel.Membership{}).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		Update("is_default", true).Error
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
