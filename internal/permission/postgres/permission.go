package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/trufflehub/farm-management/internal"
	permissionDatamodel "github.com/trufflehub/farm-management/internal/core/datamodel/permission"
	"github.com/trufflehub/farm-management/internal/permission"
)

// PermissionRepository implements permission.Repository using GORM.
type PermissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) permission.Repository {
	return &PermissionRepository{db: db}
}

func (r *PermissionRepository) Create(ctx context.Context, p *permission.Permission) error {
	model := permission.ToDataModel(p)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return internal.ErrDuplicatePermission.WithCause(err)
		}
		return err
	}
	p.ID = model.ID
	p.CreatedAt = model.CreatedAt
	p.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *PermissionRepository) GetByID(ctx context.Context, id int64) (*permission.Permission, error) {
	var model permissionDatamodel.Permission
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrPermissionNotFound
		}
		return nil, err
	}
	return permission.FromDataModel(&model), nil
}

func (r *PermissionRepository) FindByRoute(ctx context.Context, namespace, controller, action string) (*permission.Permission, error) {
	var model permissionDatamodel.Permission
	err := r.db.WithContext(ctx).
		Where("namespace = ? AND controller = ? AND action = ?", namespace, controller, action).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrPermissionNotFound
		}
		return nil, err
	}
	return permission.FromDataModel(&model), nil
}

func (r *PermissionRepository) Update(ctx context.Context, p *permission.Permission) error {
	return r.db.WithContext(ctx).Model(&permissionDatamodel.Permission{}).
		Where("id = ?", p.ID).
		Updates(map[string]interface{}{
			"description":      p.Description,
			"status":           p.Status,
			"discovered_at":    p.DiscoveredAt,
			"discovery_method": p.DiscoveryMethod,
		}).Error
}

func (r *PermissionRepository) List(ctx context.Context, status string, limit, offset int) ([]*permission.Permission, error) {
	query := r.db.WithContext(ctx).Model(&permissionDatamodel.Permission{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var models []*permissionDatamodel.Permission
	err := query.Order("namespace, controller, action").
		Limit(limit).
		Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	result := make([]*permission.Permission, len(models))
	for i, m := range models {
		result[i] = permission.FromDataModel(m)
	}
	return result, nil
}

// RoleRepository implements permission.RoleRepository using GORM.
type RoleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) permission.RoleRepository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) CreateRole(ctx context.Context, role *permission.Role) error {
	model := &permissionDatamodel.Role{
		Name:        role.Name,
		Description: role.Description,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return internal.ErrDuplicateRole.WithCause(err)
		}
		return err
	}
	role.ID = model.ID
	role.CreatedAt = model.CreatedAt
	role.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *RoleRepository) GetRoleByID(ctx context.Context, id int64) (*permission.Role, error) {
	var model permissionDatamodel.Role
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrRoleNotFound
		}
		return nil, err
	}
	return permission.RoleFromDataModel(&model), nil
}

func (r *RoleRepository) GetRoleByName(ctx context.Context, name string) (*permission.Role, error) {
	var model permissionDatamodel.Role
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrRoleNotFound
		}
		return nil, err
	}
	return permission.RoleFromDataModel(&model), nil
}

func (r *RoleRepository) ListRoles(ctx context.Context) ([]*permission.Role, error) {
	var models []*permissionDatamodel.Role
	if err := r.db.WithContext(ctx).Order("name").Find(&models).Error; err != nil {
		return nil, err
	}
	result := make([]*permission.Role, len(models))
	for i, m := range models {
		result[i] = permission.RoleFromDataModel(m)
	}
	return result, nil
}

func (r *RoleRepository) GrantPermission(ctx context.Context, roleID, permissionID int64) error {
	err := r.db.WithContext(ctx).Create(&permissionDatamodel.RolePermission{
		RoleID:       roleID,
		PermissionID: permissionID,
	}).Error
	if isUniqueViolation(err) {
		// Grant already present, nothing to do.
		return nil
	}
	return err
}

func (r *RoleRepository) RevokePermission(ctx context.Context, roleID, permissionID int64) error {
	return r.db.WithContext(ctx).
		Where("role_id = ? AND permission_id = ?", roleID, permissionID).
		Delete(&permissionDatamodel.RolePermission{}).Error
}

func (r *RoleRepository) RolesHaveActiveGrant(ctx context.Context, roleIDs []int64, namespace, controller, action string) (bool, error) {
	if len(roleIDs) == 0 {
		return false, nil
	}

	var count int64
	err := r.db.WithContext(ctx).
		Table("role_permissions").
		Joins("JOIN permissions ON permissions.id = role_permissions.permission_id").
		Where("role_permissions.role_id IN ?", roleIDs).
		Where("permissions.namespace = ? AND permissions.controller = ? AND permissions.action = ?",
			namespace, controller, action).
		Where("permissions.status = ?", permission.StatusActive).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *RoleRepository) AssignRole(ctx context.Context, userID, roleID int64) error {
	err := r.db.WithContext(ctx).Create(&permissionDatamodel.UserRole{
		UserID: userID,
		RoleID: roleID,
	}).Error
	if isUniqueViolation(err) {
		return nil
	}
	return err
}

func (r *RoleRepository) RemoveRole(ctx context.Context, userID, roleID int64) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		Delete(&permissionDatamodel.UserRole{}).Error
}

func (r *RoleRepository) RoleIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&permissionDatamodel.UserRole{}).
		Where("user_id = ?", userID).
		Pluck("role_id", &ids).Error
	return ids, err
}

func (r *RoleRepository) UserIDsWithRole(ctx context.Context, roleID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&permissionDatamodel.UserRole{}).
		Where("role_id = ?", roleID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// AuditRepository implements permission.AuditRepository using GORM.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) permission.AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Append(ctx context.Context, entry *permission.AuditEntry) error {
	prev, err := permission.EncodePreviousState(entry.PreviousState)
	if err != nil {
		return err
	}

	model := &permissionDatamodel.AuditEntry{
		PermissionID:  entry.PermissionID,
		ChangeType:    entry.ChangeType,
		PreviousState: prev,
		Reason:        entry.Reason,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	entry.ID = model.ID
	entry.CreatedAt = model.CreatedAt
	return nil
}

func (r *AuditRepository) ListForPermission(ctx context.Context, permissionID int64) ([]*permission.AuditEntry, error) {
	var models []*permissionDatamodel.AuditEntry
	err := r.db.WithContext(ctx).
		Where("permission_id = ?", permissionID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	result := make([]*permission.AuditEntry, 0, len(models))
	for _, m := range models {
		prev, err := permission.DecodePreviousState(m.PreviousState)
		if err != nil {
			return nil, err
		}
		result = append(result, &permission.AuditEntry{
			ID:            m.ID,
			PermissionID:  m.PermissionID,
			ChangeType:    m.ChangeType,
			PreviousState: prev,
			Reason:        m.Reason,
			CreatedAt:     m.CreatedAt,
		})
	}
	return result, nil
}

// isUniqueViolation recognizes duplicate-key failures from both postgres
// (pgx error 23505) and the sqlite driver used in tests.
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
