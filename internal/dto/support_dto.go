package dto

import (
	"time"

	"github.com/servineo/servineo-api/internal/models"
)

// SupportChatOpenRequest opens (or re-uses) the caller's active support chat.
type SupportChatOpenRequest struct {
	Subject  string `json:"subject" validate:"required,min=3,max=255"`
	Priority string `json:"priority" validate:"omitempty,oneof=low normal high"`
}

// SupportMessageSendRequest posts a message into a support chat.
type SupportMessageSendRequest struct {
	ChatID  uint   `json:"chat_id" validate:"required"`
	Content string `json:"content" validate:"required,min=1,max=4000"`
}

// SupportEscalateRequest escalates an assigned chat to the admin tier.
type SupportEscalateRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=2000"`
}

// SupportChatResponse describes a support chat.
type SupportChatResponse struct {
	ID                  uint       `json:"id"`
	UserID              uint       `json:"user_id"`
	Subject             string     `json:"subject"`
	Priority            string     `json:"priority"`
	Status              string     `json:"status"`
	ModeratorID         *uint      `json:"moderator_id,omitempty"`
	AdminInterventionID *uint      `json:"admin_intervention_id,omitempty"`
	AdminIntervened     bool       `json:"admin_intervened"`
	Archived            bool       `json:"archived"`
	LastMessageAt       time.Time  `json:"last_message_at"`
	ClosedAt            *time.Time `json:"closed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// SupportMessageResponse is the serialized representation of a support message.
type SupportMessageResponse struct {
	ID            uint      `json:"id"`
	SupportChatID uint      `json:"support_chat_id"`
	SenderID      *uint     `json:"sender_id,omitempty"`
	SenderType    string    `json:"sender_type"`
	Content       string    `json:"content"`
	MessageType   string    `json:"message_type"`
	CreatedAt     time.Time `json:"created_at"`
}

// SupportChatSnapshot is the archive payload written to the log store when a
// chat is archived on close.
type SupportChatSnapshot struct {
	Chat       SupportChatResponse      `json:"chat"`
	Messages   []SupportMessageResponse `json:"messages"`
	ArchivedBy uint                     `json:"archived_by"`
	ArchivedAt time.Time                `json:"archived_at"`
}

// NewSupportChatResponse converts a model into a DTO.
func NewSupportChatResponse(chat models.SupportChat) SupportChatResponse {
	return SupportChatResponse{
		ID:                  chat.ID,
		UserID:              chat.UserID,
		Subject:             chat.Subject,
		Priority:            chat.Priority,
		Status:              chat.Status,
		ModeratorID:         chat.ModeratorID,
		AdminInterventionID: chat.AdminInterventionID,
		AdminIntervened:     chat.AdminIntervened,
		Archived:            chat.Archived,
		LastMessageAt:       chat.LastMessageAt,
		ClosedAt:            chat.ClosedAt,
		CreatedAt:           chat.CreatedAt,
	}
}

// NewSupportChatResponseSlice converts a slice of models into DTOs.
func NewSupportChatResponseSlice(chats []models.SupportChat) []SupportChatResponse {
	out := make([]SupportChatResponse, 0, len(chats))
	for _, chat := range chats {
		out = append(out, NewSupportChatResponse(chat))
	}
	return out
}

// NewSupportMessageResponse converts a model into a DTO.
func NewSupportMessageResponse(message models.SupportMessage) SupportMessageResponse {
	return SupportMessageResponse{
		ID:            message.ID,
		SupportChatID: message.SupportChatID,
		SenderID:      message.SenderID,
		SenderType:    message.SenderType,
		Content:       message.Content,
		MessageType:   message.MessageType,
		CreatedAt:     message.CreatedAt,
	}
}

// NewSupportMessageResponseSlice converts a slice of models into DTOs.
func NewSupportMessageResponseSlice(messages []models.SupportMessage) []SupportMessageResponse {
	out := make([]SupportMessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewSupportMessageResponse(message))
	}
	return out
}

// NotificationCreateRequest describes the payload to create a notification.
type NotificationCreateRequest struct {
	UserID  uint   `json:"user_id" validate:"required"`
	Type    string `json:"type" validate:"required,max=64"`
	Message string `json:"message" validate:"required,min=1,max=2000"`
}

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"user_id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewNotificationResponse converts a notification model to DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        model.ID,
		UserID:    model.UserID,
		Type:      model.Type,
		Message:   model.Message,
		Read:      model.Read,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

// NewNotificationResponseSlice converts a slice to DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}
