package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/servineo/servineo-api/internal/apperr"
	"github.com/servineo/servineo-api/internal/dto"
	"github.com/servineo/servineo-api/internal/models"
	"github.com/servineo/servineo-api/internal/observability"
	"github.com/servineo/servineo-api/internal/repository"
)

// ConversationParticipants resolves the two user identities behind a conversation.
type ConversationParticipants struct {
	ConversationID     uint
	ClientUserID       uint
	ProfessionalUserID uint
}

// Other returns the counterpart of the given participant.
func (p ConversationParticipants) Other(userID uint) uint {
	if userID == p.ClientUserID {
		return p.ProfessionalUserID
	}
	return p.ClientUserID
}

// ConversationService manages conversation lifecycle, messaging and authorization.
type ConversationService interface {
	GetOrCreate(ctx context.Context, clientID uint, payload dto.ConversationCreateRequest) (dto.ConversationResponse, error)
	ListForUser(ctx context.Context, userID uint) ([]dto.ConversationResponse, error)
	SendMessage(ctx context.Context, senderID uint, payload dto.MessageSendRequest) (dto.MessageResponse, error)
	History(ctx context.Context, requesterID uint, query dto.MessageHistoryQuery) ([]dto.MessageResponse, error)
	MarkRead(ctx context.Context, readerID, conversationID uint) error
	Report(ctx context.Context, reporterID, conversationID uint, payload dto.ReportCreateRequest) (dto.ReportResponse, error)
	Delete(ctx context.Context, requesterID, conversationID uint) error
	Participants(ctx context.Context, conversationID uint) (ConversationParticipants, error)
}

type conversationService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	users         repository.UserRepository
	reports       repository.ReportRepository
	validator     *validator.Validate
	logger        zerolog.Logger
	tracer        trace.Tracer
	sanitizer     *bluemonday.Policy
}

// NewConversationService constructs a conversation service.
func NewConversationService(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	users repository.UserRepository,
	reports repository.ReportRepository,
	validate *validator.Validate,
	logger zerolog.Logger,
) ConversationService {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("br")

	return &conversationService{
		conversations: conversations,
		messages:      messages,
		users:         users,
		reports:       reports,
		validator:     validate,
		logger:        logger.With().Str("component", "conversation_service").Logger(),
		tracer:        otel.Tracer("github.com/servineo/servineo-api/internal/service/conversation"),
		sanitizer:     policy,
	}
}

// GetOrCreate returns the existing conversation for the pair or creates one.
// Calling it twice for the same pair always yields the same conversation id.
func (s *conversationService) GetOrCreate(ctx context.Context, clientID uint, payload dto.ConversationCreateRequest) (dto.ConversationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ConversationResponse{}, apperr.Wrap(apperr.KindValidation, err, "invalid conversation request")
	}

	client, err := s.users.FindByID(ctx, clientID)
	if err != nil {
		return dto.ConversationResponse{}, err
	}
	if client.Role != models.RoleClient {
		return dto.ConversationResponse{}, apperr.Validation("only clients may open conversations")
	}

	if _, err := s.users.FindProfessional(ctx, payload.ProfessionalID); err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return dto.ConversationResponse{}, apperr.Validation("professional %d does not exist", payload.ProfessionalID)
		}
		return dto.ConversationResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "conversation.get_or_create", trace.WithAttributes(
		attribute.Int("conversation.client_id", int(clientID)),
		attribute.Int("conversation.professional_id", int(payload.ProfessionalID)),
	))
	defer span.End()

	existing, err := s.conversations.FindByPair(spanCtx, clientID, payload.ProfessionalID)
	if err == nil {
		return dto.NewConversationResponse(existing, clientID), nil
	}
	if !apperr.IsKind(err, apperr.KindNotFound) {
		return dto.ConversationResponse{}, err
	}

	conversation := models.Conversation{
		ClientID:         clientID,
		ProfessionalID:   payload.ProfessionalID,
		ServiceRequestID: payload.ServiceRequestID,
	}
	if err := s.conversations.Create(spanCtx, &conversation); err != nil {
		// The unique pair index may reject a concurrent first-contact; the
		// winner's row is the conversation both callers should get.
		if recovered, findErr := s.conversations.FindByPair(spanCtx, clientID, payload.ProfessionalID); findErr == nil {
			return dto.NewConversationResponse(recovered, clientID), nil
		}
		span.RecordError(err)
		return dto.ConversationResponse{}, err
	}

	created, err := s.conversations.FindByID(spanCtx, conversation.ID)
	if err != nil {
		return dto.ConversationResponse{}, err
	}

	s.logger.Info().Uint("conversation_id", created.ID).Uint("client_id", clientID).Msg("conversation created")

	return dto.NewConversationResponse(created, clientID), nil
}

func (s *conversationService) ListForUser(ctx context.Context, userID uint) ([]dto.ConversationResponse, error) {
	conversations, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return dto.NewConversationResponseSlice(conversations, userID), nil
}

func (s *conversationService) SendMessage(ctx context.Context, senderID uint, payload dto.MessageSendRequest) (dto.MessageResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageResponse{}, apperr.Wrap(apperr.KindValidation, err, "invalid message")
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(payload.Content))
	if clean == "" {
		return dto.MessageResponse{}, apperr.Validation("message content empty after sanitization")
	}

	spanCtx, span := s.tracer.Start(ctx, "conversation.send_message", trace.WithAttributes(
		attribute.Int("conversation.id", int(payload.ConversationID)),
		attribute.Int("message.sender_id", int(senderID)),
	))
	defer span.End()

	message, err := s.messages.Append(spanCtx, payload.ConversationID, senderID, clean, payload.MessageType)
	if err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, err
	}

	observability.MessagesSent().WithLabelValues("conversation", message.MessageType).Inc()

	return dto.NewMessageResponse(message), nil
}

func (s *conversationService) History(ctx context.Context, requesterID uint, query dto.MessageHistoryQuery) ([]dto.MessageResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "invalid history query")
	}

	conversation, err := s.conversations.FindByID(ctx, query.ConversationID)
	if err != nil {
		return nil, err
	}
	if !repository.IsParticipant(conversation, requesterID) {
		return nil, apperr.Authorization("user %d is not a participant of conversation %d", requesterID, query.ConversationID)
	}

	after := time.Time{}
	if query.After != nil {
		after = *query.After
	}

	messages, err := s.messages.ListByConversation(ctx, query.ConversationID, after, query.Limit)
	if err != nil {
		return nil, err
	}

	return dto.NewMessageResponseSlice(messages), nil
}

func (s *conversationService) MarkRead(ctx context.Context, readerID, conversationID uint) error {
	conversation, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !repository.IsParticipant(conversation, readerID) {
		return apperr.Authorization("user %d is not a participant of conversation %d", readerID, conversationID)
	}

	return s.messages.MarkRead(ctx, conversationID, readerID)
}

// Report flags a conversation. Repeated reports by the same reporter create
// independent rows; deduplication is deliberately not applied.
func (s *conversationService) Report(ctx context.Context, reporterID, conversationID uint, payload dto.ReportCreateRequest) (dto.ReportResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ReportResponse{}, apperr.Wrap(apperr.KindValidation, err, "invalid report")
	}

	conversation, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return dto.ReportResponse{}, err
	}
	if !repository.IsParticipant(conversation, reporterID) {
		return dto.ReportResponse{}, apperr.Authorization("only participants may report conversation %d", conversationID)
	}

	report := models.Report{
		ReporterID: reporterID,
		TargetType: models.ReportTargetConversation,
		TargetID:   conversationID,
		Reason:     strings.TrimSpace(s.sanitizer.Sanitize(payload.Reason)),
	}
	if payload.Details != "" {
		report.Details = datatypes.JSONMap{"details": strings.TrimSpace(s.sanitizer.Sanitize(payload.Details))}
	}

	if err := s.reports.Create(ctx, &report); err != nil {
		return dto.ReportResponse{}, err
	}

	s.logger.Info().Uint("report_id", report.ID).Uint("conversation_id", conversationID).Msg("conversation reported")

	return dto.NewReportResponse(report), nil
}

func (s *conversationService) Delete(ctx context.Context, requesterID, conversationID uint) error {
	conversation, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !repository.IsParticipant(conversation, requesterID) {
		return apperr.Authorization("only participants may delete conversation %d", conversationID)
	}

	spanCtx, span := s.tracer.Start(ctx, "conversation.delete", trace.WithAttributes(
		attribute.Int("conversation.id", int(conversationID)),
	))
	defer span.End()

	if err := s.conversations.Delete(spanCtx, conversationID); err != nil {
		span.RecordError(err)
		return err
	}

	s.logger.Info().Uint("conversation_id", conversationID).Uint("requester_id", requesterID).Msg("conversation deleted")

	return nil
}

func (s *conversationService) Participants(ctx context.Context, conversationID uint) (ConversationParticipants, error) {
	conversation, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return ConversationParticipants{}, err
	}

	return ConversationParticipants{
		ConversationID:     conversation.ID,
		ClientUserID:       conversation.ClientID,
		ProfessionalUserID: conversation.Professional.UserID,
	}, nil
}
