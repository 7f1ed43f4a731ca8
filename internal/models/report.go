package models

import (
	"time"

	"gorm.io/datatypes"
)

// Report statuses.
const (
	ReportStatusPending   = "pending"
	ReportStatusReviewing = "reviewing"
	ReportStatusResolved  = "resolved"
	ReportStatusDismissed = "dismissed"
)

// Report target types.
const (
	ReportTargetConversation = "chat_conversation"
	ReportTargetProfessional = "professional_profile"
)

// Report records a flag against a conversation or a professional profile.
// Reporter and target are immutable once created; status and notes are
// mutable by the reviewing admin. Reports are never deduplicated.
type Report struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	ReporterID uint              `gorm:"not null;index" json:"reporter_id"`
	TargetType string            `gorm:"size:32;not null" json:"target_type"`
	TargetID   uint              `gorm:"not null;index" json:"target_id"`
	Reason     string            `gorm:"type:text;not null" json:"reason"`
	Details    datatypes.JSONMap `gorm:"type:json" json:"details,omitempty"`
	Status     string            `gorm:"size:16;not null;default:pending;index" json:"status"`
	ReviewerID *uint             `json:"reviewer_id,omitempty"`
	Notes      string            `gorm:"type:text" json:"notes,omitempty"`
	ReviewedAt *time.Time        `json:"reviewed_at,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}
