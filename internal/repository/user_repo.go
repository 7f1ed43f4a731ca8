package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/servineo/servineo-api/internal/apperr"
	"github.com/servineo/servineo-api/internal/models"
)

// UserRepository resolves marketplace identities for authorization checks.
type UserRepository interface {
	FindByID(ctx context.Context, id uint) (models.User, error)
	FindProfessional(ctx context.Context, professionalID uint) (models.Professional, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository constructs a user repository backed by GORM.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByID(ctx context.Context, id uint) (models.User, error) {
	return retryRead(ctx, func(ctx context.Context) (models.User, error) {
		var user models.User
		if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.User{}, apperr.NotFound("user %d not found", id)
			}
			return models.User{}, err
		}
		return user, nil
	})
}

func (r *userRepository) FindProfessional(ctx context.Context, professionalID uint) (models.Professional, error) {
	return retryRead(ctx, func(ctx context.Context) (models.Professional, error) {
		var professional models.Professional
		err := r.db.WithContext(ctx).Preload("User").First(&professional, professionalID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.Professional{}, apperr.NotFound("professional %d not found", professionalID)
			}
			return models.Professional{}, err
		}
		return professional, nil
	})
}
