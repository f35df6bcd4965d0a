package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/carvision/defect-api/internal/domain"
	"github.com/carvision/defect-api/internal/infra/observability"
	"github.com/carvision/defect-api/internal/infra/resilience"
	"github.com/carvision/defect-api/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var predictionTracer = otel.Tracer("service/prediction")

// PredictionService orchestrates the upload -> detect -> persist pipeline
// and the read/delete paths around it.
type PredictionService struct {
	store     port.RecordStore
	artifacts port.ArtifactStore
	detector  port.Detector
	bulkhead  *resilience.Bulkhead
	metrics   *observability.Metrics
	logger    *zap.Logger

	threshold     float64
	liveThreshold float64
}

// NewPredictionService creates a prediction service. The bulkhead caps
// in-flight model invocations across both predict flows.
func NewPredictionService(
	store port.RecordStore,
	artifacts port.ArtifactStore,
	detector port.Detector,
	bulkhead *resilience.Bulkhead,
	metrics *observability.Metrics,
	logger *zap.Logger,
	threshold, liveThreshold float64,
) *PredictionService {
	return &PredictionService{
		store:         store,
		artifacts:     artifacts,
		detector:      detector,
		bulkhead:      bulkhead,
		metrics:       metrics,
		logger:        logger,
		threshold:     threshold,
		liveThreshold: liveThreshold,
	}
}

// Predict stores the uploaded image, runs detection with annotation, and
// persists a detection record owned by the user. On detection failure the
// stored image is reclaimed so no orphan artifact survives.
func (s *PredictionService) Predict(ctx context.Context, user *domain.User, r io.Reader, originalName string) (*domain.Detection, error) {
	ctx, span := predictionTracer.Start(ctx, "PredictionService.Predict")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", user.ID))

	imagePath, err := s.artifacts.Store(ctx, r, originalName)
	if err != nil {
		return nil, err
	}

	defects, servedPath, err := s.detect(ctx, imagePath, s.threshold, true, "predict")
	if err != nil {
		if rmErr := s.artifacts.Reclaim(imagePath); rmErr != nil {
			s.logger.Warn("reclaim after failed detection", zap.String("path", imagePath), zap.Error(rmErr))
		}
		s.metrics.IncrPrediction("error")
		return nil, err
	}

	detection := &domain.Detection{
		ID:            uuid.New().String(),
		UserID:        user.ID,
		ImagePath:     servedPath,
		Defects:       defects,
		VehicleStatus: vehicleStatus(defects),
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.store.CreateDetection(ctx, detection); err != nil {
		if rmErr := s.artifacts.Reclaim(servedPath); rmErr != nil {
			s.logger.Warn("reclaim after failed persist", zap.String("path", servedPath), zap.Error(rmErr))
		}
		s.metrics.IncrPrediction("error")
		return nil, fmt.Errorf("persist detection: %w", err)
	}

	if detection.Broken() {
		s.metrics.IncrPrediction("broken")
	} else {
		s.metrics.IncrPrediction("non_broken")
	}

	s.logger.Info("prediction stored",
		zap.String("detection_id", detection.ID),
		zap.String("user_id", user.ID),
		zap.Int("defects", len(defects)),
		zap.String("vehicle_status", detection.VehicleStatus),
	)
	return detection, nil
}

// LivePredict runs detection on a transient image at the lower live
// threshold. Nothing is persisted; the temp artifact is always reclaimed.
func (s *PredictionService) LivePredict(ctx context.Context, r io.Reader, originalName string) ([]domain.Defect, error) {
	ctx, span := predictionTracer.Start(ctx, "PredictionService.LivePredict")
	defer span.End()

	imagePath, err := s.artifacts.StoreTemp(ctx, r, originalName)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rmErr := s.artifacts.Reclaim(imagePath); rmErr != nil {
			s.logger.Warn("reclaim live artifact", zap.String("path", imagePath), zap.Error(rmErr))
		}
	}()

	defects, _, err := s.detect(ctx, imagePath, s.liveThreshold, false, "live")
	if err != nil {
		return nil, err
	}
	return defects, nil
}

// detect wraps the detector call in the bulkhead and records its duration.
func (s *PredictionService) detect(ctx context.Context, imagePath string, threshold float64, annotate bool, flow string) ([]domain.Defect, string, error) {
	if err := s.bulkhead.Acquire(ctx); err != nil {
		return nil, "", &domain.ErrTimeout{Operation: "acquire inference slot"}
	}
	defer s.bulkhead.Release()

	start := time.Now()
	defects, servedPath, err := s.detector.Detect(ctx, imagePath, threshold, annotate)
	s.metrics.RecordInferenceDuration(flow, time.Since(start))

	var unavailable *domain.ErrModelUnavailable
	var open *domain.ErrCircuitOpen
	if errors.As(err, &unavailable) || errors.As(err, &open) {
		s.metrics.IncrExternalError("inference")
	}
	return defects, servedPath, err
}

// ListUserDetections returns the user's detection history, newest first.
func (s *PredictionService) ListUserDetections(ctx context.Context, user *domain.User) ([]domain.Detection, error) {
	ctx, span := predictionTracer.Start(ctx, "PredictionService.ListUserDetections")
	defer span.End()

	return s.store.ListUserDetections(ctx, user.ID)
}

// ListCompanyUsers returns all users in the caller's company.
func (s *PredictionService) ListCompanyUsers(ctx context.Context, user *domain.User) ([]domain.User, error) {
	ctx, span := predictionTracer.Start(ctx, "PredictionService.ListCompanyUsers")
	defer span.End()

	return s.store.ListCompanyUsers(ctx, user.CompanyID)
}

// DeleteDetection removes a detection the user owns, reclaiming its image
// first. Existence is checked before ownership: a missing record is 404,
// someone else's record is 403.
func (s *PredictionService) DeleteDetection(ctx context.Context, user *domain.User, id string) error {
	ctx, span := predictionTracer.Start(ctx, "PredictionService.DeleteDetection")
	defer span.End()
	span.SetAttributes(attribute.String("detection.id", id))

	detection, err := s.store.GetDetection(ctx, id)
	if err != nil {
		return err
	}
	if detection == nil {
		return &domain.ErrNotFound{Resource: "detection", ID: id}
	}
	if detection.UserID != user.ID {
		return &domain.ErrForbidden{Action: "delete detection"}
	}

	if rmErr := s.artifacts.Reclaim(detection.ImagePath); rmErr != nil {
		// The record delete still proceeds; a stray file beats a stray row.
		s.logger.Warn("reclaim detection artifact", zap.String("path", detection.ImagePath), zap.Error(rmErr))
	}

	if err := s.store.DeleteDetection(ctx, id); err != nil {
		return fmt.Errorf("delete detection: %w", err)
	}

	s.logger.Info("detection deleted", zap.String("detection_id", id), zap.String("user_id", user.ID))
	return nil
}

// vehicleStatus derives the status from the defect list: any defect means
// the vehicle is reported broken.
func vehicleStatus(defects []domain.Defect) string {
	if len(defects) > 0 {
		return domain.VehicleStatusBroken
	}
	return domain.VehicleStatusNonBroken
}
