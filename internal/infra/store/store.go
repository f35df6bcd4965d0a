// Package store implements the record store on SQLite via GORM.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carvision/defect-api/internal/domain"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var tracer = otel.Tracer("store")

// Store provides typed access to Company/User/Detection records.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to the SQLite database at path and runs schema migration.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.AutoMigrate(&domain.Company{}, &domain.User{}, &domain.Detection{}); err != nil {
		return nil, fmt.Errorf("auto-migrate schema: %w", err)
	}

	logger.Info("record store ready", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// Ping verifies the underlying connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// translateErr converts GORM errors into domain errors. Unique-key
// violations become ErrConflict so callers can resolve provisioning races.
func translateErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &domain.ErrConflict{Message: op + ": record already exists"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.ErrTimeout{Operation: op}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// touchCreatedAt stamps CreatedAt if the caller left it zero.
func touchCreatedAt(t *time.Time) {
	if t.IsZero() {
		*t = time.Now().UTC()
	}
}
