package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/servineo/servineo-api/internal/apperr"
	"github.com/servineo/servineo-api/internal/dto"
	"github.com/servineo/servineo-api/internal/models"
	"github.com/servineo/servineo-api/internal/observability"
	"github.com/servineo/servineo-api/internal/repository"
)

// NotificationService persists notifications so offline recipients can catch
// up over REST. Realtime delivery is the dispatcher's job, not this one's.
type NotificationService interface {
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
	List(ctx context.Context, userID uint, limit, offset int) ([]dto.NotificationResponse, error)
	MarkRead(ctx context.Context, id, userID uint) (dto.NotificationResponse, error)
}

type notificationService struct {
	notifications repository.NotificationRepository
	validator     *validator.Validate
	logger        zerolog.Logger
}

// NewNotificationService constructs a notification service.
func NewNotificationService(notifications repository.NotificationRepository, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	return &notificationService{
		notifications: notifications,
		validator:     validate,
		logger:        logger.With().Str("component", "notification_service").Logger(),
	}
}

func (s *notificationService) Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, apperr.Wrap(apperr.KindValidation, err, "invalid notification")
	}

	notification := models.Notification{
		UserID:  payload.UserID,
		Type:    payload.Type,
		Message: payload.Message,
	}
	if err := s.notifications.Create(ctx, &notification); err != nil {
		return dto.NotificationResponse{}, err
	}

	observability.NotificationsPushed().WithLabelValues(notification.Type).Inc()

	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) List(ctx context.Context, userID uint, limit, offset int) ([]dto.NotificationResponse, error) {
	notifications, err := s.notifications.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return dto.NewNotificationResponseSlice(notifications), nil
}

func (s *notificationService) MarkRead(ctx context.Context, id, userID uint) (dto.NotificationResponse, error) {
	notification, err := s.notifications.MarkRead(ctx, id, userID)
	if err != nil {
		return dto.NotificationResponse{}, err
	}
	return dto.NewNotificationResponse(notification), nil
}
