package store

import (
	"context"
	"errors"
	"time"

	"order-reconciliation-service/internal/models"
	apperrors "order-reconciliation-service/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateJob inserts a new pending reconciliation job and returns it.
func (s *Store) CreateJob(ctx context.Context, message string) (*models.ReconciliationJob, error) {
	job := &models.ReconciliationJob{
		ID:      uuid.NewString(),
		Status:  models.JobPending,
		Message: message,
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, apperrors.StoreError(apperrors.CodeBatchWriteFailed, "create job", err)
	}
	return job, nil
}

// GetJob loads one job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*models.ReconciliationJob, error) {
	var job models.ReconciliationJob
	err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.JobError(apperrors.CodeJobNotFound, id, err)
	}
	if err != nil {
		return nil, apperrors.StoreError(apperrors.CodeReadFailed, "get job", err)
	}
	return &job, nil
}

// UpdateJobProgress moves a job to processing with the given progress and
// message. Progress is clamped to 0-100.
func (s *Store) UpdateJobProgress(ctx context.Context, id string, progress int, message string) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return s.updateJob(ctx, id, map[string]interface{}{
		"status":     models.JobProcessing,
		"progress":   progress,
		"message":    message,
		"updated_at": time.Now(),
	})
}

// CompleteJob marks a job completed with its output filename.
func (s *Store) CompleteJob(ctx context.Context, id, filename string) error {
	return s.updateJob(ctx, id, map[string]interface{}{
		"status":     models.JobCompleted,
		"progress":   100,
		"message":    "report ready",
		"filename":   filename,
		"error":      "",
		"updated_at": time.Now(),
	})
}

// FailJob marks a job failed, recording the error text for pollers.
func (s *Store) FailJob(ctx context.Context, id string, jobErr error) error {
	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
	}
	return s.updateJob(ctx, id, map[string]interface{}{
		"status":     models.JobFailed,
		"message":    "report generation failed",
		"error":      msg,
		"updated_at": time.Now(),
	})
}

func (s *Store) updateJob(ctx context.Context, id string, values map[string]interface{}) error {
	err := s.db.WithContext(ctx).
		Model(&models.ReconciliationJob{}).
		Where("id = ?", id).
		Updates(values).Error
	if err != nil {
		return apperrors.StoreError(apperrors.CodeBatchWriteFailed, "update job", err)
	}
	return nil
}
