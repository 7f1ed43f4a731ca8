package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/servineo/servineo-api/internal/apperr"
	"github.com/servineo/servineo-api/internal/models"
)

// ConversationRepository persists client-professional conversations.
type ConversationRepository interface {
	FindByID(ctx context.Context, id uint) (models.Conversation, error)
	FindByPair(ctx context.Context, clientID, professionalID uint) (models.Conversation, error)
	Create(ctx context.Context, conversation *models.Conversation) error
	Delete(ctx context.Context, id uint) error
	ListForUser(ctx context.Context, userID uint) ([]models.Conversation, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository constructs a conversation repository backed by GORM.
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) FindByID(ctx context.Context, id uint) (models.Conversation, error) {
	return retryRead(ctx, func(ctx context.Context) (models.Conversation, error) {
		var conversation models.Conversation
		err := r.db.WithContext(ctx).
			Preload("Client").
			Preload("Professional").
			Preload("Professional.User").
			First(&conversation, id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.Conversation{}, apperr.NotFound("conversation %d not found", id)
			}
			return models.Conversation{}, err
		}
		return conversation, nil
	})
}

func (r *conversationRepository) FindByPair(ctx context.Context, clientID, professionalID uint) (models.Conversation, error) {
	return retryRead(ctx, func(ctx context.Context) (models.Conversation, error) {
		var conversation models.Conversation
		err := r.db.WithContext(ctx).
			Preload("Client").
			Preload("Professional").
			Preload("Professional.User").
			Where("client_id = ? AND professional_id = ?", clientID, professionalID).
			First(&conversation).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.Conversation{}, apperr.NotFound("conversation for pair not found")
			}
			return models.Conversation{}, err
		}
		return conversation, nil
	})
}

func (r *conversationRepository) Create(ctx context.Context, conversation *models.Conversation) error {
	if conversation.LastMessageAt.IsZero() {
		conversation.LastMessageAt = time.Now().UTC()
	}
	conversation.IsActive = true
	return r.db.WithContext(ctx).Create(conversation).Error
}

// Delete hard-deletes the conversation and cascades its messages in one transaction.
func (r *conversationRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conversation models.Conversation
		if err := tx.First(&conversation, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("conversation %d not found", id)
			}
			return err
		}

		if err := tx.Where("conversation_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}

		return tx.Delete(&models.Conversation{}, id).Error
	})
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID uint) ([]models.Conversation, error) {
	return retryRead(ctx, func(ctx context.Context) ([]models.Conversation, error) {
		var conversations []models.Conversation
		err := r.db.WithContext(ctx).
			Preload("Client").
			Preload("Professional").
			Preload("Professional.User").
			Joins("JOIN professionals ON professionals.id = conversations.professional_id").
			Where("conversations.client_id = ? OR professionals.user_id = ?", userID, userID).
			Order("conversations.last_message_at DESC").
			Find(&conversations).Error
		if err != nil {
			return nil, err
		}
		return conversations, nil
	})
}

// IsParticipant reports whether userID is one of the two conversation sides.
// The professional side is matched through the profile owner, not the profile id.
func IsParticipant(conversation models.Conversation, userID uint) bool {
	if conversation.ClientID == userID {
		return true
	}
	return conversation.Professional.UserID == userID
}
