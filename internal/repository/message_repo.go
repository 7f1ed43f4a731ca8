package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/servineo/servineo-api/internal/apperr"
	"github.com/servineo/servineo-api/internal/models"
)

// MessageRepository is the durable gateway for conversation messages.
// Every successful append bumps the parent conversation's last_message_at.
type MessageRepository interface {
	Append(ctx context.Context, conversationID, senderID uint, content, messageType string) (models.Message, error)
	ListByConversation(ctx context.Context, conversationID uint, after time.Time, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID uint) error
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a message gateway backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Append(ctx context.Context, conversationID, senderID uint, content, messageType string) (models.Message, error) {
	if messageType == "" {
		messageType = models.MessageTypeText
	}

	var message models.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conversation models.Conversation
		if err := tx.Preload("Professional").First(&conversation, conversationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("conversation %d not found", conversationID)
			}
			return err
		}

		if !IsParticipant(conversation, senderID) {
			return apperr.Authorization("sender %d is not a participant of conversation %d", senderID, conversationID)
		}

		message = models.Message{
			ConversationID: conversationID,
			SenderID:       senderID,
			Content:        content,
			MessageType:    messageType,
		}
		if err := tx.Create(&message).Error; err != nil {
			return err
		}

		return tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Updates(map[string]interface{}{
				"last_message_at": message.CreatedAt,
				"is_active":       true,
			}).Error
	})
	if err != nil {
		return models.Message{}, err
	}

	return message, nil
}

func (r *messageRepository) ListByConversation(ctx context.Context, conversationID uint, after time.Time, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	return retryRead(ctx, func(ctx context.Context) ([]models.Message, error) {
		query := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
		if !after.IsZero() {
			query = query.Where("created_at > ?", after)
		}

		var messages []models.Message
		if err := query.Order("created_at ASC").Limit(limit).Find(&messages).Error; err != nil {
			return nil, err
		}

		return messages, nil
	})
}

func (r *messageRepository) MarkRead(ctx context.Context, conversationID, readerID uint) error {
	return r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", conversationID, readerID, false).
		Update("is_read", true).Error
}
