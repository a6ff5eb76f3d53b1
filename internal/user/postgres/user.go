package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/trufflehub/farm-management/internal"
	userDatamodel "github.com/trufflehub/farm-management/internal/core/datamodel/user"
	"github.com/trufflehub/farm-management/internal/user"
)

// UserRepository implements user.Repository using GORM.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) user.Repository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	model := user.ToDataModel(u)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	u.ID = model.ID
	u.CreatedAt = model.CreatedAt
	u.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*user.User, error) {
	var model userDatamodel.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrUserNotFound
		}
		return nil, err
	}
	return user.FromDataModel(&model), nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	var model userDatamodel.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrUserNotFound
		}
		return nil, err
	}
	return user.FromDataModel(&model), nil
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*user.User, error) {
	var models []*userDatamodel.User
	err := r.db.WithContext(ctx).
		Order("id").
		Limit(limit).
		Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	result := make([]*user.User, len(models))
	for i, m := range models {
		result[i] = user.FromDataModel(m)
	}
	return result, nil
}
