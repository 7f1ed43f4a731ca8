package models

import "time"

// Message content types.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeFile  = "file"
)

// Conversation pairs exactly one client and one professional. It is created
// on first contact and re-used for every later exchange between the pair.
type Conversation struct {
	ID               uint         `gorm:"primaryKey" json:"id"`
	ClientID         uint         `gorm:"not null;index:idx_conversation_pair,unique" json:"client_id"`
	Client           User         `gorm:"foreignKey:ClientID" json:"-"`
	ProfessionalID   uint         `gorm:"not null;index:idx_conversation_pair,unique" json:"professional_id"`
	Professional     Professional `gorm:"foreignKey:ProfessionalID" json:"-"`
	ServiceRequestID *uint        `json:"service_request_id,omitempty"`
	IsActive         bool         `gorm:"not null;default:true" json:"is_active"`
	LastMessageAt    time.Time    `json:"last_message_at"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	Messages         []Message    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// Message belongs to exactly one conversation. Immutable after creation
// except for the read flag; deleted only through the conversation cascade.
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"not null;index" json:"conversation_id"`
	SenderID       uint      `gorm:"not null;index" json:"sender_id"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	MessageType    string    `gorm:"size:32;not null;default:text" json:"message_type"`
	IsRead         bool      `gorm:"not null;default:false" json:"is_read"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}
