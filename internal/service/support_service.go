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

	"github.com/servineo/servineo-api/internal/apperr"
	"github.com/servineo/servineo-api/internal/dto"
	"github.com/servineo/servineo-api/internal/models"
	"github.com/servineo/servineo-api/internal/observability"
	"github.com/servineo/servineo-api/internal/repository"
)

// SupportTransition is the outcome of a lifecycle operation: the chat after
// the transition, plus the system notice injected into its timeline.
type SupportTransition struct {
	Chat          dto.SupportChatResponse
	SystemMessage dto.SupportMessageResponse
}

// SupportService drives the support chat lifecycle across the three tiers:
// requesting user, moderator, admin.
type SupportService interface {
	Open(ctx context.Context, userID uint, payload dto.SupportChatOpenRequest) (dto.SupportChatResponse, bool, error)
	ChatForUser(ctx context.Context, userID uint) (dto.SupportChatResponse, error)
	Queue(ctx context.Context) ([]dto.SupportChatResponse, error)
	ActiveChats(ctx context.Context) ([]dto.SupportChatResponse, error)
	EscalatedChats(ctx context.Context) ([]dto.SupportChatResponse, error)
	Messages(ctx context.Context, chatID, actorID uint, actorRole string, limit int) ([]dto.SupportMessageResponse, error)
	SendMessage(ctx context.Context, actorID uint, actorRole string, payload dto.SupportMessageSendRequest) (dto.SupportChatResponse, dto.SupportMessageResponse, error)
	Assign(ctx context.Context, chatID, moderatorID uint) (SupportTransition, error)
	Escalate(ctx context.Context, chatID, moderatorID uint, payload dto.SupportEscalateRequest) (SupportTransition, error)
	Intervene(ctx context.Context, chatID, adminID uint) (SupportTransition, error)
	Close(ctx context.Context, chatID, actorID uint, actorRole string) (SupportTransition, error)
	ArchiveAndClose(ctx context.Context, chatID, actorID uint, actorRole string) (SupportTransition, error)
	Snapshot(ctx context.Context, chatID uint) (dto.SupportChatSnapshot, error)
}

type supportService struct {
	chats      repository.SupportChatRepository
	moderators repository.ModeratorRepository
	archive    repository.ArchiveRepository
	validator  *validator.Validate
	logger     zerolog.Logger
	tracer     trace.Tracer
	sanitizer  *bluemonday.Policy
}

// NewSupportService constructs a support service. The archive repository may
// be nil when no log store is configured; archiving then degrades to a plain
// close.
func NewSupportService(
	chats repository.SupportChatRepository,
	moderators repository.ModeratorRepository,
	archive repository.ArchiveRepository,
	validate *validator.Validate,
	logger zerolog.Logger,
) SupportService {
	return &supportService{
		chats:      chats,
		moderators: moderators,
		archive:    archive,
		validator:  validate,
		logger:     logger.With().Str("component", "support_service").Logger(),
		tracer:     otel.Tracer("github.com/servineo/servineo-api/internal/service/support"),
		sanitizer:  bluemonday.UGCPolicy(),
	}
}

// Open returns the user's active chat when one exists, otherwise creates a
// fresh open chat. The boolean reports whether a chat was created.
func (s *supportService) Open(ctx context.Context, userID uint, payload dto.SupportChatOpenRequest) (dto.SupportChatResponse, bool, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SupportChatResponse{}, false, apperr.Wrap(apperr.KindValidation, err, "invalid support request")
	}

	existing, err := s.chats.FindActiveByUser(ctx, userID)
	if err == nil {
		return dto.NewSupportChatResponse(existing), false, nil
	}
	if !apperr.IsKind(err, apperr.KindNotFound) {
		return dto.SupportChatResponse{}, false, err
	}

	chat := models.SupportChat{
		UserID:   userID,
		Subject:  strings.TrimSpace(s.sanitizer.Sanitize(payload.Subject)),
		Priority: payload.Priority,
	}
	if err := s.chats.Create(ctx, &chat); err != nil {
		return dto.SupportChatResponse{}, false, err
	}

	observability.SupportTransitions().WithLabelValues(models.SupportStatusOpen).Inc()
	s.logger.Info().Uint("chat_id", chat.ID).Uint("user_id", userID).Msg("support chat opened")

	return dto.NewSupportChatResponse(chat), true, nil
}

func (s *supportService) ChatForUser(ctx context.Context, userID uint) (dto.SupportChatResponse, error) {
	chat, err := s.chats.FindActiveByUser(ctx, userID)
	if err != nil {
		return dto.SupportChatResponse{}, err
	}
	return dto.NewSupportChatResponse(chat), nil
}

// Queue lists unassigned chats waiting for a moderator, highest priority and
// longest waiting first.
func (s *supportService) Queue(ctx context.Context) ([]dto.SupportChatResponse, error) {
	chats, err := s.chats.ListByStatus(ctx, models.SupportStatusOpen)
	if err != nil {
		return nil, err
	}
	return dto.NewSupportChatResponseSlice(chats), nil
}

func (s *supportService) ActiveChats(ctx context.Context) ([]dto.SupportChatResponse, error) {
	chats, err := s.chats.ListByStatus(ctx, models.SupportStatusOpen, models.SupportStatusAssigned, models.SupportStatusEscalated)
	if err != nil {
		return nil, err
	}
	return dto.NewSupportChatResponseSlice(chats), nil
}

func (s *supportService) EscalatedChats(ctx context.Context) ([]dto.SupportChatResponse, error) {
	chats, err := s.chats.ListByStatus(ctx, models.SupportStatusEscalated)
	if err != nil {
		return nil, err
	}
	return dto.NewSupportChatResponseSlice(chats), nil
}

func (s *supportService) Messages(ctx context.Context, chatID, actorID uint, actorRole string, limit int) ([]dto.SupportMessageResponse, error) {
	chat, err := s.chats.FindByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(chat, actorID, actorRole); err != nil {
		return nil, err
	}

	messages, err := s.chats.ListMessages(ctx, chatID, limit)
	if err != nil {
		return nil, err
	}
	return dto.NewSupportMessageResponseSlice(messages), nil
}

// SendMessage appends a participant message. The returned chat carries the
// recipients the caller needs for fan-out.
func (s *supportService) SendMessage(ctx context.Context, actorID uint, actorRole string, payload dto.SupportMessageSendRequest) (dto.SupportChatResponse, dto.SupportMessageResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SupportChatResponse{}, dto.SupportMessageResponse{}, apperr.Wrap(apperr.KindValidation, err, "invalid support message")
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(payload.Content))
	if clean == "" {
		return dto.SupportChatResponse{}, dto.SupportMessageResponse{}, apperr.Validation("message content empty after sanitization")
	}

	chat, err := s.chats.FindByID(ctx, payload.ChatID)
	if err != nil {
		return dto.SupportChatResponse{}, dto.SupportMessageResponse{}, err
	}
	if err := s.authorizeWrite(chat, actorID, actorRole); err != nil {
		return dto.SupportChatResponse{}, dto.SupportMessageResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "support.send_message", trace.WithAttributes(
		attribute.Int("support.chat_id", int(payload.ChatID)),
		attribute.String("support.sender_type", senderTypeForRole(actorRole)),
	))
	defer span.End()

	senderID := actorID
	message, err := s.chats.AppendMessage(spanCtx, payload.ChatID, &senderID, senderTypeForRole(actorRole), clean, models.SupportMessageTypeText)
	if err != nil {
		span.RecordError(err)
		return dto.SupportChatResponse{}, dto.SupportMessageResponse{}, err
	}

	chat.LastMessageAt = message.CreatedAt
	observability.MessagesSent().WithLabelValues("support", message.MessageType).Inc()

	return dto.NewSupportChatResponse(chat), dto.NewSupportMessageResponse(message), nil
}

// Assign claims an open chat for a moderator and drops a system notice into
// the timeline so the requester sees who joined.
func (s *supportService) Assign(ctx context.Context, chatID, moderatorID uint) (SupportTransition, error) {
	if _, err := s.moderators.FindActiveByID(ctx, moderatorID); err != nil {
		return SupportTransition{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "support.assign", trace.WithAttributes(
		attribute.Int("support.chat_id", int(chatID)),
		attribute.Int("support.moderator_id", int(moderatorID)),
	))
	defer span.End()

	chat, err := s.chats.Assign(spanCtx, chatID, moderatorID)
	if err != nil {
		span.RecordError(err)
		return SupportTransition{}, err
	}

	notice, err := s.chats.AppendMessage(spanCtx, chatID, nil, models.SenderTypeSystem,
		"A moderator has joined the chat.", models.SupportMessageTypeSystemInfo)
	if err != nil {
		return SupportTransition{}, err
	}

	observability.SupportTransitions().WithLabelValues(models.SupportStatusAssigned).Inc()
	s.logger.Info().Uint("chat_id", chatID).Uint("moderator_id", moderatorID).Msg("support chat assigned")

	chat.LastMessageAt = notice.CreatedAt
	return SupportTransition{Chat: dto.NewSupportChatResponse(chat), SystemMessage: dto.NewSupportMessageResponse(notice)}, nil
}

// Escalate moves an assigned chat to the admin tier. Only the assigned
// moderator may escalate; the reason is recorded as a visible system warning.
func (s *supportService) Escalate(ctx context.Context, chatID, moderatorID uint, payload dto.SupportEscalateRequest) (SupportTransition, error) {
	if err := s.validator.Struct(payload); err != nil {
		return SupportTransition{}, apperr.Wrap(apperr.KindValidation, err, "invalid escalation request")
	}

	spanCtx, span := s.tracer.Start(ctx, "support.escalate", trace.WithAttributes(
		attribute.Int("support.chat_id", int(chatID)),
	))
	defer span.End()

	chat, err := s.chats.Escalate(spanCtx, chatID, moderatorID)
	if err != nil {
		span.RecordError(err)
		return SupportTransition{}, err
	}

	reason := strings.TrimSpace(s.sanitizer.Sanitize(payload.Reason))
	notice, err := s.chats.AppendMessage(spanCtx, chatID, nil, models.SenderTypeSystem,
		"Escalated to administrators: "+reason, models.SupportMessageTypeSystemWarning)
	if err != nil {
		return SupportTransition{}, err
	}

	observability.SupportTransitions().WithLabelValues(models.SupportStatusEscalated).Inc()
	s.logger.Info().Uint("chat_id", chatID).Uint("moderator_id", moderatorID).Msg("support chat escalated")

	chat.LastMessageAt = notice.CreatedAt
	return SupportTransition{Chat: dto.NewSupportChatResponse(chat), SystemMessage: dto.NewSupportMessageResponse(notice)}, nil
}

// Intervene records an admin stepping into a non-closed chat without changing
// its status.
func (s *supportService) Intervene(ctx context.Context, chatID, adminID uint) (SupportTransition, error) {
	chat, err := s.chats.Intervene(ctx, chatID, adminID)
	if err != nil {
		return SupportTransition{}, err
	}

	notice, err := s.chats.AppendMessage(ctx, chatID, nil, models.SenderTypeSystem,
		"An administrator has joined the chat.", models.SupportMessageTypeSystemInfo)
	if err != nil {
		return SupportTransition{}, err
	}

	s.logger.Info().Uint("chat_id", chatID).Uint("admin_id", adminID).Msg("admin intervened in support chat")

	chat.LastMessageAt = notice.CreatedAt
	return SupportTransition{Chat: dto.NewSupportChatResponse(chat), SystemMessage: dto.NewSupportMessageResponse(notice)}, nil
}

// Close terminates a chat. Allowed for the requesting user, the assigned
// moderator, or any admin.
func (s *supportService) Close(ctx context.Context, chatID, actorID uint, actorRole string) (SupportTransition, error) {
	chat, err := s.chats.FindByID(ctx, chatID)
	if err != nil {
		return SupportTransition{}, err
	}
	if err := s.authorizeClose(chat, actorID, actorRole); err != nil {
		return SupportTransition{}, err
	}

	closed, err := s.chats.Close(ctx, chatID)
	if err != nil {
		return SupportTransition{}, err
	}

	notice, err := s.chats.AppendMessage(ctx, chatID, nil, models.SenderTypeSystem,
		"This support chat has been closed.", models.SupportMessageTypeSystemInfo)
	if err != nil {
		return SupportTransition{}, err
	}

	observability.SupportTransitions().WithLabelValues(models.SupportStatusClosed).Inc()
	s.logger.Info().Uint("chat_id", chatID).Str("role", actorRole).Msg("support chat closed")

	closed.LastMessageAt = notice.CreatedAt
	return SupportTransition{Chat: dto.NewSupportChatResponse(closed), SystemMessage: dto.NewSupportMessageResponse(notice)}, nil
}

// ArchiveAndClose closes the chat and writes a full snapshot to the log
// store. Staff only: the requesting user can close but not archive.
func (s *supportService) ArchiveAndClose(ctx context.Context, chatID, actorID uint, actorRole string) (SupportTransition, error) {
	if actorRole != models.RoleModerator && actorRole != models.RoleAdmin {
		return SupportTransition{}, apperr.Authorization("only staff may archive support chats")
	}

	transition, err := s.Close(ctx, chatID, actorID, actorRole)
	if err != nil {
		return SupportTransition{}, err
	}

	if s.archive == nil {
		s.logger.Warn().Uint("chat_id", chatID).Msg("no archive store configured, chat closed without snapshot")
		return transition, nil
	}

	messages, err := s.chats.ListAllMessages(ctx, chatID)
	if err != nil {
		return SupportTransition{}, err
	}

	snapshot := dto.SupportChatSnapshot{
		Chat:       transition.Chat,
		Messages:   dto.NewSupportMessageResponseSlice(messages),
		ArchivedBy: actorID,
		ArchivedAt: time.Now().UTC(),
	}
	if err := s.archive.SaveSnapshot(ctx, chatID, snapshot); err != nil {
		return SupportTransition{}, err
	}
	if err := s.chats.MarkArchived(ctx, chatID); err != nil {
		return SupportTransition{}, err
	}

	transition.Chat.Archived = true
	s.logger.Info().Uint("chat_id", chatID).Uint("archived_by", actorID).Msg("support chat archived")

	return transition, nil
}

func (s *supportService) Snapshot(ctx context.Context, chatID uint) (dto.SupportChatSnapshot, error) {
	if s.archive == nil {
		return dto.SupportChatSnapshot{}, apperr.NotFound("no archive store configured")
	}
	return s.archive.GetSnapshot(ctx, chatID)
}

func (s *supportService) authorizeRead(chat models.SupportChat, actorID uint, actorRole string) error {
	switch actorRole {
	case models.RoleModerator, models.RoleAdmin:
		return nil
	default:
		if chat.UserID != actorID {
			return apperr.Authorization("user %d is not the owner of support chat %d", actorID, chat.ID)
		}
		return nil
	}
}

func (s *supportService) authorizeWrite(chat models.SupportChat, actorID uint, actorRole string) error {
	switch actorRole {
	case models.RoleAdmin:
		return nil
	case models.RoleModerator:
		if chat.ModeratorID == nil || *chat.ModeratorID != actorID {
			return apperr.Authorization("moderator %d is not assigned to support chat %d", actorID, chat.ID)
		}
		return nil
	default:
		if chat.UserID != actorID {
			return apperr.Authorization("user %d is not the owner of support chat %d", actorID, chat.ID)
		}
		return nil
	}
}

func (s *supportService) authorizeClose(chat models.SupportChat, actorID uint, actorRole string) error {
	switch actorRole {
	case models.RoleAdmin:
		return nil
	case models.RoleModerator:
		if chat.ModeratorID == nil || *chat.ModeratorID != actorID {
			return apperr.Authorization("moderator %d is not assigned to support chat %d", actorID, chat.ID)
		}
		return nil
	default:
		if chat.UserID != actorID {
			return apperr.Authorization("user %d is not the owner of support chat %d", actorID, chat.ID)
		}
		return nil
	}
}

func senderTypeForRole(role string) string {
	switch role {
	case models.RoleModerator:
		return models.SenderTypeModerator
	case models.RoleAdmin:
		return models.SenderTypeAdmin
	default:
		return models.SenderTypeUser
	}
}
