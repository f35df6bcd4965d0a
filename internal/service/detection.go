package service

import (
	"context"
	"errors"
	"image"
	"os"

	_ "image/jpeg"
	_ "image/png"

	"github.com/carvision/defect-api/internal/domain"
	"github.com/carvision/defect-api/internal/infra/annotate"
	"github.com/carvision/defect-api/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var detectionTracer = otel.Tracer("service/detection")

// DetectionService turns a stored image into labeled, normalized defect
// boxes, optionally drawing them back onto the image.
type DetectionService struct {
	predictor port.BoxPredictor
	logger    *zap.Logger
}

// NewDetectionService creates a detection service.
func NewDetectionService(predictor port.BoxPredictor, logger *zap.Logger) *DetectionService {
	return &DetectionService{predictor: predictor, logger: logger}
}

// Detect runs the model on the image at path and returns its defects in the
// model's output order, each with coordinates normalized to the image size.
// With annotate set, the image is rewritten in place with boxes drawn on it;
// the returned path always points at the image to serve.
func (s *DetectionService) Detect(ctx context.Context, imagePath string, threshold float64, drawBoxes bool) ([]domain.Defect, string, error) {
	ctx, span := detectionTracer.Start(ctx, "DetectionService.Detect")
	defer span.End()
	span.SetAttributes(
		attribute.Float64("model.threshold", threshold),
		attribute.Bool("annotate", drawBoxes),
	)

	width, height, err := imageSize(imagePath)
	if err != nil {
		return nil, "", err
	}

	boxes, err := s.predictor.Predict(ctx, imagePath, threshold)
	if err != nil {
		return nil, "", err
	}

	defects := make([]domain.Defect, 0, len(boxes))
	for _, b := range boxes {
		defects = append(defects, domain.Defect{
			Class:      b.Class,
			Confidence: b.Confidence,
			BBox:       b.Box,
			NormalizedBBox: [4]float64{
				float64(b.Box[0]) / float64(width),
				float64(b.Box[1]) / float64(height),
				float64(b.Box[2]) / float64(width),
				float64(b.Box[3]) / float64(height),
			},
		})
	}
	span.SetAttributes(attribute.Int("defects.count", len(defects)))

	if drawBoxes {
		// Rewritten even when no boxes hit, so the served artifact is
		// always the annotated rendition.
		if err := annotate.File(imagePath, defects); err != nil {
			return nil, "", err
		}
	}

	return defects, imagePath, nil
}

// imageSize reads just the header to get pixel dimensions.
func imageSize(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, &domain.ErrStorage{Op: "open image", Err: err}
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, &domain.ErrImageUnreadable{Path: path, Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, &domain.ErrImageUnreadable{Path: path, Err: errors.New("image has zero dimension")}
	}
	return cfg.Width, cfg.Height, nil
}
