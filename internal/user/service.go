package user

import (
	"context"
	"fmt"

	"github.com/trufflehub/farm-management/internal"
)

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, userID int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, limit, offset int) ([]*User, error)
}

// RoleReader fetches a user's role assignments for actor construction.
type RoleReader interface {
	RoleIDsForUser(ctx context.Context, userID int64) ([]int64, error)
}

type Service struct {
	repo  Repository
	roles RoleReader
}

func NewService(repo Repository, roles RoleReader) *Service {
	return &Service{repo: repo, roles: roles}
}

func (s *Service) GetByID(ctx context.Context, userID int64) (*User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	roleIDs, err := s.roles.RoleIDsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	u.RoleIDs = roleIDs

	return u, nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetByEmail(ctx, email)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*User, error) {
	return s.repo.List(ctx, limit, offset)
}

// GetActor loads the user and their roles as the explicit caller identity
// that flows through authorization and notification calls.
func (s *Service) GetActor(ctx context.Context, userID int64) (*internal.Actor, error) {
	u, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, internal.ErrUserInactive
	}

	return &internal.Actor{
		UserID:  u.ID,
		Email:   u.Email,
		IsAdmin: u.IsAdmin,
		RoleIDs: u.RoleIDs,
	}, nil
}
