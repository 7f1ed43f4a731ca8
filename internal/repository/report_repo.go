package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/servineo/servineo-api/internal/apperr"
	"github.com/servineo/servineo-api/internal/models"
)

// ReportRepository persists moderation reports. Reporter and target are
// write-once; only review fields change afterwards.
type ReportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	FindByID(ctx context.Context, id uint) (models.Report, error)
	List(ctx context.Context, status string, limit, offset int) ([]models.Report, error)
	UpdateReview(ctx context.Context, id, reviewerID uint, status, notes string) (models.Report, error)
}

type reportRepository struct {
	db *gorm.DB
}

// NewReportRepository constructs a report repository backed by GORM.
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) Create(ctx context.Context, report *models.Report) error {
	if report.Status == "" {
		report.Status = models.ReportStatusPending
	}
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *reportRepository) FindByID(ctx context.Context, id uint) (models.Report, error) {
	return retryRead(ctx, func(ctx context.Context) (models.Report, error) {
		var report models.Report
		if err := r.db.WithContext(ctx).First(&report, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.Report{}, apperr.NotFound("report %d not found", id)
			}
			return models.Report{}, err
		}
		return report, nil
	})
}

func (r *reportRepository) List(ctx context.Context, status string, limit, offset int) ([]models.Report, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	return retryRead(ctx, func(ctx context.Context) ([]models.Report, error) {
		query := r.db.WithContext(ctx).Model(&models.Report{})
		if status != "" {
			query = query.Where("status = ?", status)
		}

		var reports []models.Report
		if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&reports).Error; err != nil {
			return nil, err
		}
		return reports, nil
	})
}

func (r *reportRepository) UpdateReview(ctx context.Context, id, reviewerID uint, status, notes string) (models.Report, error) {
	var report models.Report
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&report, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("report %d not found", id)
			}
			return err
		}

		now := time.Now().UTC()
		report.Status = status
		report.Notes = notes
		report.ReviewerID = &reviewerID
		report.ReviewedAt = &now

		return tx.Save(&report).Error
	})
	if err != nil {
		return models.Report{}, err
	}
	return report, nil
}
