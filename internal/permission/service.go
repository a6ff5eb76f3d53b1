package permission

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/trufflehub/farm-management/internal"
	"github.com/trufflehub/farm-management/internal/core/events"
)

// Repository is the permission registry store. FindByRoute returns
// internal.ErrPermissionNotFound for unknown triples; Create returns
// internal.ErrDuplicatePermission when the route uniqueness constraint fires.
type Repository interface {
	Create(ctx context.Context, p *Permission) error
	GetByID(ctx context.Context, id int64) (*Permission, error)
	FindByRoute(ctx context.Context, namespace, controller, action string) (*Permission, error)
	Update(ctx context.Context, p *Permission) error
	List(ctx context.Context, status string, limit, offset int) ([]*Permission, error)
}

// RoleRepository stores roles, role-permission grants and user-role
// assignments.
type RoleRepository interface {
	CreateRole(ctx context.Context, r *Role) error
	GetRoleByID(ctx context.Context, id int64) (*Role, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context) ([]*Role, error)
	GrantPermission(ctx context.Context, roleID, permissionID int64) error
	RevokePermission(ctx context.Context, roleID, permissionID int64) error
	RolesHaveActiveGrant(ctx context.Context, roleIDs []int64, namespace, controller, action string) (bool, error)
	AssignRole(ctx context.Context, userID, roleID int64) error
	RemoveRole(ctx context.Context, userID, roleID int64) error
	RoleIDsForUser(ctx context.Context, userID int64) ([]int64, error)
	UserIDsWithRole(ctx context.Context, roleID int64) ([]int64, error)
}

// AuditRepository is append-only.
type AuditRepository interface {
	Append(ctx context.Context, entry *AuditEntry) error
	ListForPermission(ctx context.Context, permissionID int64) ([]*AuditEntry, error)
}

// CacheInvalidator is how permission mutations reach the decision cache.
// Each mutation invalidates only the keys it affects: a status change hits
// the route, a role assignment change hits the user.
type CacheInvalidator interface {
	InvalidateRoute(namespace, controller, action string)
	InvalidateUser(userID int64)
}

// Service covers the admin side of the registry: manual registration,
// archive/reactivate, role management and grants. Automatic discovery lives
// in DiscoveryJob.
type Service struct {
	repo   Repository
	roles  RoleRepository
	audit  AuditRepository
	cache  CacheInvalidator
	bus    *events.EventBus
	logger *slog.Logger
}

func NewService(repo Repository, roles RoleRepository, audit AuditRepository, cache CacheInvalidator, bus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		roles:  roles,
		audit:  audit,
		cache:  cache,
		bus:    bus,
		logger: logger,
	}
}

// Register creates a permission by hand, outside the discovery path.
func (s *Service) Register(ctx context.Context, namespace, controller, action, description string) (*Permission, error) {
	if description == "" {
		description = DefaultDescription(action)
	}

	perm := &Permission{
		Namespace:       namespace,
		Controller:      controller,
		Action:          action,
		Description:     description,
		Status:          StatusActive,
		DiscoveredAt:    time.Now(),
		DiscoveryMethod: DiscoveryManual,
	}

	if err := s.repo.Create(ctx, perm); err != nil {
		s.logger.Error("failed to register permission", "error", err, "route", perm.Route())
		return nil, err
	}

	s.appendAudit(ctx, perm.ID, ChangeCreated, nil, "manual registration")
	s.cache.InvalidateRoute(namespace, controller, action)

	s.logger.Info("permission registered", "permission_id", perm.ID, "route", perm.Route())
	return perm, nil
}

// Archive soft-removes a permission from active checks. The record stays,
// the audit trail captures the prior state, and affected cache entries drop.
func (s *Service) Archive(ctx context.Context, permissionID int64, reason string) (*Permission, error) {
	perm, err := s.repo.GetByID(ctx, permissionID)
	if err != nil {
		return nil, err
	}
	if perm.Status == StatusArchived {
		return perm, nil
	}

	prev := snapshot(perm)
	perm.Status = StatusArchived
	if err := s.repo.Update(ctx, perm); err != nil {
		s.logger.Error("failed to archive permission", "error", err, "permission_id", permissionID)
		return nil, err
	}

	s.appendAudit(ctx, perm.ID, ChangeArchived, prev, reason)
	s.cache.InvalidateRoute(perm.Namespace, perm.Controller, perm.Action)
	s.publishChanged(ctx, perm)

	s.logger.Info("permission archived", "permission_id", perm.ID, "route", perm.Route(), "reason", reason)
	return perm, nil
}

// Reactivate restores an archived permission by hand.
func (s *Service) Reactivate(ctx context.Context, permissionID int64, reason string) (*Permission, error) {
	perm, err := s.repo.GetByID(ctx, permissionID)
	if err != nil {
		return nil, err
	}
	if perm.Status == StatusActive {
		return perm, nil
	}

	prev := snapshot(perm)
	perm.Status = StatusActive
	perm.DiscoveredAt = time.Now()
	perm.DiscoveryMethod = DiscoveryManual
	if err := s.repo.Update(ctx, perm); err != nil {
		s.logger.Error("failed to reactivate permission", "error", err, "permission_id", permissionID)
		return nil, err
	}

	s.appendAudit(ctx, perm.ID, ChangeReactivated, prev, reason)
	s.cache.InvalidateRoute(perm.Namespace, perm.Controller, perm.Action)
	s.publishChanged(ctx, perm)

	s.logger.Info("permission reactivated", "permission_id", perm.ID, "route", perm.Route())
	return perm, nil
}

func (s *Service) GetByID(ctx context.Context, permissionID int64) (*Permission, error) {
	return s.repo.GetByID(ctx, permissionID)
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*Permission, error) {
	return s.repo.List(ctx, status, limit, offset)
}

func (s *Service) AuditTrail(ctx context.Context, permissionID int64) ([]*AuditEntry, error) {
	return s.audit.ListForPermission(ctx, permissionID)
}

func (s *Service) CreateRole(ctx context.Context, name, description string) (*Role, error) {
	role := &Role{Name: name, Description: description}
	if err := s.roles.CreateRole(ctx, role); err != nil {
		s.logger.Error("failed to create role", "error", err, "name", name)
		return nil, err
	}
	s.logger.Info("role created", "role_id", role.ID, "name", name)
	return role, nil
}

func (s *Service) ListRoles(ctx context.Context) ([]*Role, error) {
	return s.roles.ListRoles(ctx)
}

// GrantToRole adds a permission to a role and drops every cached decision for
// the permission's route.
func (s *Service) GrantToRole(ctx context.Context, roleID, permissionID int64) error {
	perm, err := s.repo.GetByID(ctx, permissionID)
	if err != nil {
		return err
	}
	if _, err := s.roles.GetRoleByID(ctx, roleID); err != nil {
		return err
	}
	if err := s.roles.GrantPermission(ctx, roleID, permissionID); err != nil {
		s.logger.Error("failed to grant permission to role", "error", err, "role_id", roleID, "permission_id", permissionID)
		return err
	}

	s.cache.InvalidateRoute(perm.Namespace, perm.Controller, perm.Action)
	s.logger.Info("permission granted to role", "role_id", roleID, "route", perm.Route())
	return nil
}

func (s *Service) RevokeFromRole(ctx context.Context, roleID, permissionID int64) error {
	perm, err := s.repo.GetByID(ctx, permissionID)
	if err != nil {
		return err
	}
	if err := s.roles.RevokePermission(ctx, roleID, permissionID); err != nil {
		s.logger.Error("failed to revoke permission from role", "error", err, "role_id", roleID, "permission_id", permissionID)
		return err
	}

	s.cache.InvalidateRoute(perm.Namespace, perm.Controller, perm.Action)
	s.logger.Info("permission revoked from role", "role_id", roleID, "route", perm.Route())
	return nil
}

// AssignRole links a user to a role and drops that user's cached decisions.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	if _, err := s.roles.GetRoleByID(ctx, roleID); err != nil {
		return err
	}
	if err := s.roles.AssignRole(ctx, userID, roleID); err != nil {
		s.logger.Error("failed to assign role", "error", err, "user_id", userID, "role_id", roleID)
		return err
	}

	s.cache.InvalidateUser(userID)
	s.logger.Info("role assigned", "user_id", userID, "role_id", roleID)
	return nil
}

func (s *Service) RemoveRole(ctx context.Context, userID, roleID int64) error {
	if err := s.roles.RemoveRole(ctx, userID, roleID); err != nil {
		s.logger.Error("failed to remove role", "error", err, "user_id", userID, "role_id", roleID)
		return err
	}

	s.cache.InvalidateUser(userID)
	s.logger.Info("role removed", "user_id", userID, "role_id", roleID)
	return nil
}

// appendAudit logs-and-continues on failure: the permission mutation is
// already durable and the audit trail is best-effort at this boundary.
func (s *Service) appendAudit(ctx context.Context, permissionID int64, changeType string, prev *PreviousState, reason string) {
	entry := &AuditEntry{
		PermissionID:  permissionID,
		ChangeType:    changeType,
		PreviousState: prev,
		Reason:        reason,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Error("failed to append audit entry", "error", err, "permission_id", permissionID, "change_type", changeType)
	}
}

func (s *Service) publishChanged(ctx context.Context, perm *Permission) {
	if s.bus == nil {
		return
	}
	evt := events.NewPermissionChangedEvent(perm.Namespace, perm.Controller, perm.Action, perm.Status)
	if err := s.bus.Publish(ctx, evt); err != nil {
		s.logger.Error("failed to publish permission change", "error", err, "route", perm.Route())
	}
}

func snapshot(p *Permission) *PreviousState {
	return &PreviousState{
		Status:       p.Status,
		Description:  p.Description,
		DiscoveredAt: p.DiscoveredAt,
	}
}

// EncodePreviousState serializes a snapshot for storage.
func EncodePreviousState(prev *PreviousState) (*string, error) {
	if prev == nil {
		return nil, nil
	}
	raw, err := json.Marshal(prev)
	if err != nil {
		return nil, internal.NewInternalError("failed to encode previous state", err)
	}
	s := string(raw)
	return &s, nil
}

// DecodePreviousState parses a stored snapshot; nil in, nil out.
func DecodePreviousState(raw *string) (*PreviousState, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	var prev PreviousState
	if err := json.Unmarshal([]byte(*raw), &prev); err != nil {
		return nil, internal.NewInternalError("failed to decode previous state", err)
	}
	return &prev, nil
}
