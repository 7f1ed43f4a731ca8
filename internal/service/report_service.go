package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/servineo/servineo-api/internal/apperr"
	"github.com/servineo/servineo-api/internal/dto"
	"github.com/servineo/servineo-api/internal/repository"
)

// ReportService exposes the admin review surface over stored reports.
// Report creation happens on the conversation side, where the participant
// check lives.
type ReportService interface {
	List(ctx context.Context, status string, limit, offset int) ([]dto.ReportResponse, error)
	Get(ctx context.Context, id uint) (dto.ReportResponse, error)
	Review(ctx context.Context, id, reviewerID uint, payload dto.ReportReviewRequest) (dto.ReportResponse, error)
}

type reportService struct {
	reports   repository.ReportRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewReportService constructs a report review service.
func NewReportService(reports repository.ReportRepository, validate *validator.Validate, logger zerolog.Logger) ReportService {
	return &reportService{
		reports:   reports,
		validator: validate,
		logger:    logger.With().Str("component", "report_service").Logger(),
	}
}

func (s *reportService) List(ctx context.Context, status string, limit, offset int) ([]dto.ReportResponse, error) {
	reports, err := s.reports.List(ctx, status, limit, offset)
	if err != nil {
		return nil, err
	}
	return dto.NewReportResponseSlice(reports), nil
}

func (s *reportService) Get(ctx context.Context, id uint) (dto.ReportResponse, error) {
	report, err := s.reports.FindByID(ctx, id)
	if err != nil {
		return dto.ReportResponse{}, err
	}
	return dto.NewReportResponse(report), nil
}

func (s *reportService) Review(ctx context.Context, id, reviewerID uint, payload dto.ReportReviewRequest) (dto.ReportResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ReportResponse{}, apperr.Wrap(apperr.KindValidation, err, "invalid review")
	}

	report, err := s.reports.UpdateReview(ctx, id, reviewerID, payload.Status, payload.Notes)
	if err != nil {
		return dto.ReportResponse{}, err
	}

	s.logger.Info().Uint("report_id", id).Uint("reviewer_id", reviewerID).Str("status", payload.Status).Msg("report reviewed")

	return dto.NewReportResponse(report), nil
}
