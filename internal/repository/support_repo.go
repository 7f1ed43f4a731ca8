package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/servineo/servineo-api/internal/apperr"
	"github.com/servineo/servineo-api/internal/models"
)

// SupportChatRepository persists support chats and their messages. Status
// transitions use optimistic checks inside transactions: the expected status
// is part of the UPDATE predicate, and a zero rows-affected result means the
// caller lost the race or requested an invalid transition.
type SupportChatRepository interface {
	FindByID(ctx context.Context, id uint) (models.SupportChat, error)
	FindActiveByUser(ctx context.Context, userID uint) (models.SupportChat, error)
	Create(ctx context.Context, chat *models.SupportChat) error
	ListByStatus(ctx context.Context, statuses ...string) ([]models.SupportChat, error)
	Assign(ctx context.Context, chatID, moderatorID uint) (models.SupportChat, error)
	Escalate(ctx context.Context, chatID, moderatorID uint) (models.SupportChat, error)
	Intervene(ctx context.Context, chatID, adminID uint) (models.SupportChat, error)
	Close(ctx context.Context, chatID uint) (models.SupportChat, error)
	MarkArchived(ctx context.Context, chatID uint) error
	AppendMessage(ctx context.Context, chatID uint, senderID *uint, senderType, content, messageType string) (models.SupportMessage, error)
	ListMessages(ctx context.Context, chatID uint, limit int) ([]models.SupportMessage, error)
	ListAllMessages(ctx context.Context, chatID uint) ([]models.SupportMessage, error)
}

type supportChatRepository struct {
	db *gorm.DB
}

// NewSupportChatRepository constructs a support chat repository backed by GORM.
func NewSupportChatRepository(db *gorm.DB) SupportChatRepository {
	return &supportChatRepository{db: db}
}

func (r *supportChatRepository) FindByID(ctx context.Context, id uint) (models.SupportChat, error) {
	return retryRead(ctx, func(ctx context.Context) (models.SupportChat, error) {
		var chat models.SupportChat
		if err := r.db.WithContext(ctx).First(&chat, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.SupportChat{}, apperr.NotFound("support chat %d not found", id)
			}
			return models.SupportChat{}, err
		}
		return chat, nil
	})
}

func (r *supportChatRepository) FindActiveByUser(ctx context.Context, userID uint) (models.SupportChat, error) {
	return retryRead(ctx, func(ctx context.Context) (models.SupportChat, error) {
		var chat models.SupportChat
		err := r.db.WithContext(ctx).
			Where("user_id = ? AND status <> ?", userID, models.SupportStatusClosed).
			Order("created_at DESC").
			First(&chat).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.SupportChat{}, apperr.NotFound("no active support chat for user %d", userID)
			}
			return models.SupportChat{}, err
		}
		return chat, nil
	})
}

func (r *supportChatRepository) Create(ctx context.Context, chat *models.SupportChat) error {
	if chat.Status == "" {
		chat.Status = models.SupportStatusOpen
	}
	if chat.Priority == "" {
		chat.Priority = models.SupportPriorityNormal
	}
	if chat.LastMessageAt.IsZero() {
		chat.LastMessageAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(chat).Error
}

func (r *supportChatRepository) ListByStatus(ctx context.Context, statuses ...string) ([]models.SupportChat, error) {
	return retryRead(ctx, func(ctx context.Context) ([]models.SupportChat, error) {
		var chats []models.SupportChat
		err := r.db.WithContext(ctx).
			Where("status IN ?", statuses).
			Order("CASE priority WHEN 'high' THEN 0 WHEN 'normal' THEN 1 ELSE 2 END, last_message_at ASC").
			Find(&chats).Error
		if err != nil {
			return nil, err
		}
		return chats, nil
	})
}

// Assign claims an open chat for a moderator. When two moderators race, the
// status predicate lets exactly one UPDATE through; the loser gets a conflict.
func (r *supportChatRepository) Assign(ctx context.Context, chatID, moderatorID uint) (models.SupportChat, error) {
	var chat models.SupportChat
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.SupportChat{}).
			Where("id = ? AND status = ?", chatID, models.SupportStatusOpen).
			Updates(map[string]interface{}{
				"status":       models.SupportStatusAssigned,
				"moderator_id": moderatorID,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return r.transitionFailure(tx, chatID, "chat is not open for assignment")
		}

		return tx.First(&chat, chatID).Error
	})
	if err != nil {
		return models.SupportChat{}, err
	}
	return chat, nil
}

// Escalate hands an assigned chat to the admin tier. Only the assigned
// moderator may escalate, checked inside the same transaction as the write.
func (r *supportChatRepository) Escalate(ctx context.Context, chatID, moderatorID uint) (models.SupportChat, error) {
	var chat models.SupportChat
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.SupportChat{}).
			Where("id = ? AND status = ? AND moderator_id = ?", chatID, models.SupportStatusAssigned, moderatorID).
			Updates(map[string]interface{}{
				"status":           models.SupportStatusEscalated,
				"admin_intervened": true,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var current models.SupportChat
			if err := tx.First(&current, chatID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperr.NotFound("support chat %d not found", chatID)
				}
				return err
			}
			if current.Status == models.SupportStatusAssigned && (current.ModeratorID == nil || *current.ModeratorID != moderatorID) {
				return apperr.Authorization("only the assigned moderator may escalate chat %d", chatID)
			}
			return apperr.Conflict("chat %d cannot be escalated from status %s", chatID, current.Status)
		}

		return tx.First(&chat, chatID).Error
	})
	if err != nil {
		return models.SupportChat{}, err
	}
	return chat, nil
}

// Intervene records an admin joining a non-closed chat. The status is left
// untouched: an admin can step into a non-escalated chat without forcing
// escalation.
func (r *supportChatRepository) Intervene(ctx context.Context, chatID, adminID uint) (models.SupportChat, error) {
	var chat models.SupportChat
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.SupportChat{}).
			Where("id = ? AND status <> ?", chatID, models.SupportStatusClosed).
			Updates(map[string]interface{}{
				"admin_intervention_id": adminID,
				"admin_intervened":      true,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return r.transitionFailure(tx, chatID, "cannot intervene on a closed chat")
		}

		return tx.First(&chat, chatID).Error
	})
	if err != nil {
		return models.SupportChat{}, err
	}
	return chat, nil
}

func (r *supportChatRepository) Close(ctx context.Context, chatID uint) (models.SupportChat, error) {
	var chat models.SupportChat
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		result := tx.Model(&models.SupportChat{}).
			Where("id = ? AND status <> ?", chatID, models.SupportStatusClosed).
			Updates(map[string]interface{}{
				"status":    models.SupportStatusClosed,
				"closed_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return r.transitionFailure(tx, chatID, "chat is already closed")
		}

		return tx.First(&chat, chatID).Error
	})
	if err != nil {
		return models.SupportChat{}, err
	}
	return chat, nil
}

func (r *supportChatRepository) MarkArchived(ctx context.Context, chatID uint) error {
	result := r.db.WithContext(ctx).Model(&models.SupportChat{}).
		Where("id = ?", chatID).
		Update("archived", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("support chat %d not found", chatID)
	}
	return nil
}

// AppendMessage writes a support message and bumps last_message_at. Closed
// chats accept only system messages recording the closure itself.
func (r *supportChatRepository) AppendMessage(ctx context.Context, chatID uint, senderID *uint, senderType, content, messageType string) (models.SupportMessage, error) {
	if messageType == "" {
		messageType = models.SupportMessageTypeText
	}

	var message models.SupportMessage
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chat models.SupportChat
		if err := tx.First(&chat, chatID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("support chat %d not found", chatID)
			}
			return err
		}

		if chat.Status == models.SupportStatusClosed && senderType != models.SenderTypeSystem {
			return apperr.Conflict("support chat %d is closed", chatID)
		}

		message = models.SupportMessage{
			SupportChatID: chatID,
			SenderID:      senderID,
			SenderType:    senderType,
			Content:       content,
			MessageType:   messageType,
		}
		if err := tx.Create(&message).Error; err != nil {
			return err
		}

		return tx.Model(&models.SupportChat{}).
			Where("id = ?", chatID).
			Update("last_message_at", message.CreatedAt).Error
	})
	if err != nil {
		return models.SupportMessage{}, err
	}

	return message, nil
}

func (r *supportChatRepository) ListMessages(ctx context.Context, chatID uint, limit int) ([]models.SupportMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}

	return retryRead(ctx, func(ctx context.Context) ([]models.SupportMessage, error) {
		var messages []models.SupportMessage
		err := r.db.WithContext(ctx).
			Where("support_chat_id = ?", chatID).
			Order("created_at ASC").
			Limit(limit).
			Find(&messages).Error
		if err != nil {
			return nil, err
		}
		return messages, nil
	})
}

// ListAllMessages returns the complete chat timeline, oldest first. Archival
// snapshots must never truncate, so no limit applies here.
func (r *supportChatRepository) ListAllMessages(ctx context.Context, chatID uint) ([]models.SupportMessage, error) {
	return retryRead(ctx, func(ctx context.Context) ([]models.SupportMessage, error) {
		var messages []models.SupportMessage
		err := r.db.WithContext(ctx).
			Where("support_chat_id = ?", chatID).
			Order("created_at ASC").
			Find(&messages).Error
		if err != nil {
			return nil, err
		}
		return messages, nil
	})
}

// transitionFailure resolves a zero-rows UPDATE into not-found vs conflict.
func (r *supportChatRepository) transitionFailure(tx *gorm.DB, chatID uint, conflictMessage string) error {
	var current models.SupportChat
	if err := tx.First(&current, chatID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("support chat %d not found", chatID)
		}
		return err
	}
	return apperr.Conflict("%s (current status %s)", conflictMessage, current.Status)
}
