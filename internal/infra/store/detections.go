package store

import (
	"context"
	"errors"

	"github.com/carvision/defect-api/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// ============================================================
// Detections
// ============================================================

// CreateDetection persists a detection atomically: the record is either
// fully visible with all fields or not at all.
func (s *Store) CreateDetection(ctx context.Context, detection *domain.Detection) error {
	ctx, span := tracer.Start(ctx, "Store.CreateDetection")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", detection.UserID))

	touchCreatedAt(&detection.CreatedAt)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(detection).Error
	})
	return translateErr(err, "create detection")
}

func (s *Store) GetDetection(ctx context.Context, id string) (*domain.Detection, error) {
	ctx, span := tracer.Start(ctx, "Store.GetDetection")
	defer span.End()

	var detection domain.Detection
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&detection).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translateErr(err, "get detection")
	}
	return &detection, nil
}

func (s *Store) ListUserDetections(ctx context.Context, userID string) ([]domain.Detection, error) {
	ctx, span := tracer.Start(ctx, "Store.ListUserDetections")
	defer span.End()

	var detections []domain.Detection
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&detections).Error
	if err != nil {
		return nil, translateErr(err, "list user detections")
	}
	return detections, nil
}

func (s *Store) DeleteDetection(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Store.DeleteDetection")
	defer span.End()

	err := s.db.WithContext(ctx).Delete(&domain.Detection{}, "id = ?", id).Error
	return translateErr(err, "delete detection")
}
