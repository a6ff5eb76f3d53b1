package tenant

import (
	"context"
	"log/slog"

	"github.com/trufflehub/farm-management/internal"
)

// Repository is the farm store. FindByHandle matches the normalized handle;
// Create returns internal.ErrDuplicateHandle on a handle collision.
type Repository interface {
	Create(ctx context.Context, t *Tenant) error
	GetByID(ctx context.Context, id int64) (*Tenant, error)
	FindByHandle(ctx context.Context, handle string) (*Tenant, error)
	List(ctx context.Context) ([]*Tenant, error)
	AddMembership(ctx context.Context, m *Membership) error
	RemoveMembership(ctx context.Context, tenantID, userID int64) error
	HasMembership(ctx context.Context, userID, tenantID int64) (bool, error)
	MembershipsForUser(ctx context.Context, userID int64) ([]*Membership, error)
	ClearDefault(ctx context.Context, userID int64) error
	SetDefault(ctx context.Context, tenantID, userID int64) error
}

// Service manages farms and memberships. It doubles as the membership reader
// for authorization decisions and the handle resolver for request scoping.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Create registers a farm under its normalized handle.
func (s *Service) Create(ctx context.Context, name, rawHandle string) (*Tenant, error) {
	handle := NormalizeHandle(rawHandle)
	if handle == "" {
		handle = NormalizeHandle(name)
	}
	if err := ValidateHandle(handle); err != nil {
		return nil, err
	}

	t := &Tenant{Handle: handle, Name: name, IsActive: true}
	if err := s.repo.Create(ctx, t); err != nil {
		s.logger.Error("failed to create farm", "error", err, "handle", handle)
		return nil, err
	}

	s.logger.Info("farm created", "tenant_id", t.ID, "handle", handle)
	return t, nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (*Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByHandle normalizes before lookup so the match stays case-insensitive.
func (s *Service) GetByHandle(ctx context.Context, rawHandle string) (*Tenant, error) {
	return s.repo.FindByHandle(ctx, NormalizeHandle(rawHandle))
}

func (s *Service) List(ctx context.Context) ([]*Tenant, error) {
	return s.repo.List(ctx)
}

// AddMember joins a user to a farm. The first membership for a user becomes
// their default.
func (s *Service) AddMember(ctx context.Context, tenantID, userID int64) (*Membership, error) {
	if _, err := s.repo.GetByID(ctx, tenantID); err != nil {
		return nil, err
	}

	existing, err := s.repo.MembershipsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	m := &Membership{
		TenantID:  tenantID,
		UserID:    userID,
		IsDefault: len(existing) == 0,
	}
	if err := s.repo.AddMembership(ctx, m); err != nil {
		s.logger.Error("failed to add farm member", "error", err, "tenant_id", tenantID, "user_id", userID)
		return nil, err
	}

	s.logger.Info("farm member added", "tenant_id", tenantID, "user_id", userID, "is_default", m.IsDefault)
	return m, nil
}

func (s *Service) RemoveMember(ctx context.Context, tenantID, userID int64) error {
	if err := s.repo.RemoveMembership(ctx, tenantID, userID); err != nil {
		s.logger.Error("failed to remove farm member", "error", err, "tenant_id", tenantID, "user_id", userID)
		return err
	}
	s.logger.Info("farm member removed", "tenant_id", tenantID, "user_id", userID)
	return nil
}

// SetDefault moves the user's default flag to the given farm; requires an
// existing membership there.
func (s *Service) SetDefault(ctx context.Context, tenantID, userID int64) error {
	member, err := s.repo.HasMembership(ctx, userID, tenantID)
	if err != nil {
		return err
	}
	if !member {
		return internal.ErrTenantNotFound
	}

	if err := s.repo.ClearDefault(ctx, userID); err != nil {
		return err
	}
	return s.repo.SetDefault(ctx, tenantID, userID)
}

func (s *Service) MembershipsForUser(ctx context.Context, userID int64) ([]*Membership, error) {
	return s.repo.MembershipsForUser(ctx, userID)
}

// IsMember satisfies the authorization side's membership reader.
func (s *Service) IsMember(ctx context.Context, userID, tenantID int64) (bool, error) {
	return s.repo.HasMembership(ctx, userID, tenantID)
}

// IDByHandle satisfies the request-scoping handle resolver.
func (s *Service) IDByHandle(ctx context.Context, handle string) (int64, error) {
	t, err := s.GetByHandle(ctx, handle)
	if err != nil {
		return 0, err
	}
	return t.ID, nil
}

// Name resolves a farm's display name for authorization denial messages.
func (s *Service) Name(ctx context.Context, tenantID int64) (string, error) {
	t, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return t.Name, nil
}
