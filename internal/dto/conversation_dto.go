package dto

import (
	"time"

	"github.com/servineo/servineo-api/internal/models"
)

// ConversationCreateRequest is the get-or-create payload for opening a
// conversation with a professional.
type ConversationCreateRequest struct {
	ProfessionalID   uint  `json:"professional_id" validate:"required"`
	ServiceRequestID *uint `json:"service_request_id"`
}

// MessageSendRequest represents a chat message posted over REST or websocket.
type MessageSendRequest struct {
	ConversationID uint   `json:"conversation_id" validate:"required"`
	Content        string `json:"content" validate:"required,min=1,max=4000"`
	MessageType    string `json:"message_type" validate:"omitempty,oneof=text image file"`
}

// MessageHistoryQuery represents query filters for retrieving conversation history.
type MessageHistoryQuery struct {
	ConversationID uint       `query:"conversation_id" validate:"required"`
	After          *time.Time `query:"after"`
	Limit          int        `query:"limit" validate:"omitempty,min=1,max=100"`
}

// ReportCreateRequest flags a conversation or a professional profile.
type ReportCreateRequest struct {
	Reason  string `json:"reason" validate:"required,min=3,max=2000"`
	Details string `json:"details" validate:"omitempty,max=4000"`
}

// MessageResponse is the serialized representation of a conversation message.
type MessageResponse struct {
	ID             uint      `json:"id"`
	ConversationID uint      `json:"conversation_id"`
	SenderID       uint      `json:"sender_id"`
	Content        string    `json:"content"`
	MessageType    string    `json:"message_type"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationResponse describes a conversation with the counterpart's
// display info resolved for the requesting user.
type ConversationResponse struct {
	ID               uint      `json:"id"`
	ClientID         uint      `json:"client_id"`
	ProfessionalID   uint      `json:"professional_id"`
	ServiceRequestID *uint     `json:"service_request_id,omitempty"`
	CounterpartName  string    `json:"counterpart_name"`
	IsActive         bool      `json:"is_active"`
	LastMessageAt    time.Time `json:"last_message_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// ReportResponse describes a stored report.
type ReportResponse struct {
	ID         uint       `json:"id"`
	ReporterID uint       `json:"reporter_id"`
	TargetType string     `json:"target_type"`
	TargetID   uint       `json:"target_id"`
	Reason     string     `json:"reason"`
	Status     string     `json:"status"`
	ReviewerID *uint      `json:"reviewer_id,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ReportReviewRequest updates the review state of a report.
type ReportReviewRequest struct {
	Status string `json:"status" validate:"required,oneof=pending reviewing resolved dismissed"`
	Notes  string `json:"notes" validate:"omitempty,max=4000"`
}

// NewMessageResponse converts a model into a DTO.
func NewMessageResponse(message models.Message) MessageResponse {
	return MessageResponse{
		ID:             message.ID,
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		Content:        message.Content,
		MessageType:    message.MessageType,
		IsRead:         message.IsRead,
		CreatedAt:      message.CreatedAt,
	}
}

// NewMessageResponseSlice converts a slice of models into DTOs.
func NewMessageResponseSlice(messages []models.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewMessageResponse(message))
	}
	return out
}

// NewConversationResponse converts a conversation, resolving the counterpart
// display name for the viewer: clients see the professional's business name,
// professionals see the client's full name.
func NewConversationResponse(conversation models.Conversation, viewerID uint) ConversationResponse {
	response := ConversationResponse{
		ID:               conversation.ID,
		ClientID:         conversation.ClientID,
		ProfessionalID:   conversation.ProfessionalID,
		ServiceRequestID: conversation.ServiceRequestID,
		IsActive:         conversation.IsActive,
		LastMessageAt:    conversation.LastMessageAt,
		CreatedAt:        conversation.CreatedAt,
	}

	if viewerID == conversation.ClientID {
		response.CounterpartName = conversation.Professional.BusinessName
	} else {
		response.CounterpartName = conversation.Client.FirstName + " " + conversation.Client.LastName
	}

	return response
}

// NewConversationResponseSlice converts a slice of conversations for a viewer.
func NewConversationResponseSlice(conversations []models.Conversation, viewerID uint) []ConversationResponse {
	out := make([]ConversationResponse, 0, len(conversations))
	for _, conversation := range conversations {
		out = append(out, NewConversationResponse(conversation, viewerID))
	}
	return out
}

// NewReportResponse converts a report model to a DTO.
func NewReportResponse(report models.Report) ReportResponse {
	return ReportResponse{
		ID:         report.ID,
		ReporterID: report.ReporterID,
		TargetType: report.TargetType,
		TargetID:   report.TargetID,
		Reason:     report.Reason,
		Status:     report.Status,
		ReviewerID: report.ReviewerID,
		Notes:      report.Notes,
		ReviewedAt: report.ReviewedAt,
		CreatedAt:  report.CreatedAt,
	}
}

// NewReportResponseSlice converts reports to DTOs.
func NewReportResponseSlice(reports []models.Report) []ReportResponse {
	out := make([]ReportResponse, 0, len(reports))
	for _, report := range reports {
		out = append(out, NewReportResponse(report))
	}
	return out
}
