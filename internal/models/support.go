package models

import "time"

// SupportChat statuses. Transitions only move forward:
// open -> assigned -> escalated -> closed, with assigned and open also
// allowed to close directly.
const (
	SupportStatusOpen      = "open"
	SupportStatusAssigned  = "assigned"
	SupportStatusEscalated = "escalated"
	SupportStatusClosed    = "closed"
)

// Support chat priorities.
const (
	SupportPriorityLow    = "low"
	SupportPriorityNormal = "normal"
	SupportPriorityHigh   = "high"
)

// SupportMessage sender types.
const (
	SenderTypeUser      = "user"
	SenderTypeModerator = "moderator"
	SenderTypeAdmin     = "admin"
	SenderTypeSystem    = "system"
)

// SupportMessage content types, including the injected system notices.
const (
	SupportMessageTypeText          = "text"
	SupportMessageTypeSystemInfo    = "system_info"
	SupportMessageTypeSystemWarning = "system_warning"
)

// SupportChat is a support ticket owned by the requesting user. A user may
// hold at most one non-closed chat at a time.
type SupportChat struct {
	ID                  uint             `gorm:"primaryKey" json:"id"`
	UserID              uint             `gorm:"not null;index" json:"user_id"`
	User                User             `gorm:"foreignKey:UserID" json:"-"`
	Subject             string           `gorm:"size:255;not null" json:"subject"`
	Priority            string           `gorm:"size:16;not null;default:normal" json:"priority"`
	Status              string           `gorm:"size:16;not null;default:open;index" json:"status"`
	ModeratorID         *uint            `gorm:"index" json:"moderator_id,omitempty"`
	AdminInterventionID *uint            `json:"admin_intervention_id,omitempty"`
	AdminIntervened     bool             `gorm:"not null;default:false" json:"admin_intervened"`
	Archived            bool             `gorm:"not null;default:false" json:"archived"`
	LastMessageAt       time.Time        `json:"last_message_at"`
	ClosedAt            *time.Time       `json:"closed_at,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
	Messages            []SupportMessage `gorm:"foreignKey:SupportChatID" json:"-"`
}

// SupportMessage belongs to one support chat. SenderID is nil only for
// system notices.
type SupportMessage struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	SupportChatID uint      `gorm:"not null;index" json:"support_chat_id"`
	SenderID      *uint     `json:"sender_id,omitempty"`
	SenderType    string    `gorm:"size:16;not null" json:"sender_type"`
	Content       string    `gorm:"type:text;not null" json:"content"`
	MessageType   string    `gorm:"size:32;not null;default:text" json:"message_type"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}
