// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"io"

	"github.com/carvision/defect-api/internal/domain"
)

// TokenVerifier checks an opaque bearer credential against the identity
// provider and returns the verified identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*domain.Identity, error)
}

// BoxPredictor is the black-box detection model: image in, labeled boxes out,
// in the model's native output order.
type BoxPredictor interface {
	Predict(ctx context.Context, imagePath string, threshold float64) ([]domain.RawBox, error)
	Healthcheck(ctx context.Context) error
}

// Detector runs the model on an image and normalizes its output, optionally
// writing an annotated copy. Implemented by service.DetectionService;
// declared as a port so the orchestrator can be tested with a fault-injected
// detector.
type Detector interface {
	Detect(ctx context.Context, imagePath string, threshold float64, annotate bool) ([]domain.Defect, string, error)
}

// ArtifactStore persists uploaded images and reclaims them on delete.
// Store must not make partial writes visible under the returned path.
type ArtifactStore interface {
	Store(ctx context.Context, r io.Reader, originalName string) (string, error)
	StoreTemp(ctx context.Context, r io.Reader, originalName string) (string, error)
	Reclaim(path string) error
}

// RecordStore defines all data operations for companies, users and
// detections. Lookups return (nil, nil) when no record matches.
// Create operations return *domain.ErrConflict on unique-key violations.
type RecordStore interface {
	// Companies
	GetCompanyByName(ctx context.Context, name string) (*domain.Company, error)
	CreateCompany(ctx context.Context, company *domain.Company) error

	// Users
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) error
	UpdateUser(ctx context.Context, user *domain.User) error
	ListCompanyUsers(ctx context.Context, companyID string) ([]domain.User, error)

	// Detections
	CreateDetection(ctx context.Context, detection *domain.Detection) error
	GetDetection(ctx context.Context, id string) (*domain.Detection, error)
	ListUserDetections(ctx context.Context, userID string) ([]domain.Detection, error)
	DeleteDetection(ctx context.Context, id string) error
}

// Cache provides generic caching with TTL. Expiry is the cache's own
// concern; callers only read and write.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
}
