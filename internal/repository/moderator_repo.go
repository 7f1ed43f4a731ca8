package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/servineo/servineo-api/internal/apperr"
	"github.com/servineo/servineo-api/internal/models"
)

// ModeratorRepository resolves moderator identities. Moderators live in a
// separate credential space from marketplace users.
type ModeratorRepository interface {
	FindByID(ctx context.Context, id uint) (models.Moderator, error)
	FindActiveByID(ctx context.Context, id uint) (models.Moderator, error)
}

type moderatorRepository struct {
	db *gorm.DB
}

// NewModeratorRepository constructs a moderator repository backed by GORM.
func NewModeratorRepository(db *gorm.DB) ModeratorRepository {
	return &moderatorRepository{db: db}
}

func (r *moderatorRepository) FindByID(ctx context.Context, id uint) (models.Moderator, error) {
	return retryRead(ctx, func(ctx context.Context) (models.Moderator, error) {
		var moderator models.Moderator
		if err := r.db.WithContext(ctx).First(&moderator, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.Moderator{}, apperr.NotFound("moderator %d not found", id)
			}
			return models.Moderator{}, err
		}
		return moderator, nil
	})
}

func (r *moderatorRepository) FindActiveByID(ctx context.Context, id uint) (models.Moderator, error) {
	moderator, err := r.FindByID(ctx, id)
	if err != nil {
		return models.Moderator{}, err
	}
	if !moderator.IsActive {
		return models.Moderator{}, apperr.Authorization("moderator %d is inactive", id)
	}
	return moderator, nil
}
