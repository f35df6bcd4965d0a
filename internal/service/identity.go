// Package service holds the application services: identity resolution,
// detection, and the prediction pipeline orchestrator.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/carvision/defect-api/internal/domain"
	"github.com/carvision/defect-api/internal/infra/observability"
	"github.com/carvision/defect-api/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var identityTracer = otel.Tracer("service/identity")

// usernameSuffixBytes sizes the collision suffix: 2 bytes -> 4 hex chars.
const usernameSuffixBytes = 2

// IdentityService verifies credentials and maps them to local users.
type IdentityService struct {
	verifier port.TokenVerifier
	store    port.RecordStore
	cache    port.Cache[*domain.Identity]
	metrics  *observability.Metrics
	logger   *zap.Logger

	// provision collapses concurrent first-sight requests per email so at
	// most one provisioning attempt runs at a time.
	provision singleflight.Group
}

// NewIdentityService creates an identity service.
func NewIdentityService(verifier port.TokenVerifier, store port.RecordStore, cache port.Cache[*domain.Identity], metrics *observability.Metrics, logger *zap.Logger) *IdentityService {
	return &IdentityService{
		verifier: verifier,
		store:    store,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
	}
}

// Resolve verifies the credential and returns the local user, provisioning
// one on first sight. Idempotent: re-verifying the same credential for an
// already-provisioned user returns the existing record unchanged.
func (s *IdentityService) Resolve(ctx context.Context, token string) (*domain.User, error) {
	ctx, span := identityTracer.Start(ctx, "IdentityService.Resolve")
	defer span.End()

	ident, ok := s.cache.Get(token)
	if ok {
		s.metrics.IncrTokenCacheHit()
	} else {
		s.metrics.IncrTokenCacheMiss()
		var err error
		ident, err = s.verifier.Verify(ctx, token)
		if err != nil {
			// A rejected credential is the caller's problem, not the
			// provider's; only count provider-side failures.
			var unauth *domain.ErrUnauthenticated
			if !errors.As(err, &unauth) {
				s.metrics.IncrExternalError("identity-provider")
			}
			return nil, err
		}
		s.cache.Set(token, ident)
	}
	span.SetAttributes(attribute.String("user.email", ident.Email))

	user, err := s.store.GetUserByEmail(ctx, ident.Email)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user != nil {
		return user, nil
	}

	return s.provisionUser(ctx, ident.Email)
}

// provisionUser creates the user (and the default company if absent) for a
// first-seen email. Concurrent callers for one email share one execution;
// a lost unique-constraint race resolves by re-fetching.
func (s *IdentityService) provisionUser(ctx context.Context, email string) (*domain.User, error) {
	ctx, span := identityTracer.Start(ctx, "IdentityService.provisionUser")
	defer span.End()

	v, err, _ := s.provision.Do(email, func() (any, error) {
		// Another request may have won the race before we got the lock.
		if existing, err := s.store.GetUserByEmail(ctx, email); err != nil {
			return nil, err
		} else if existing != nil {
			return existing, nil
		}

		username, err := s.pickUsername(ctx, email)
		if err != nil {
			return nil, err
		}

		company, err := s.getOrCreateCompany(ctx, domain.DefaultCompanyName)
		if err != nil {
			return nil, err
		}

		user := &domain.User{
			ID:        uuid.New().String(),
			Username:  username,
			Email:     email,
			Role:      domain.RoleUser,
			CompanyID: company.ID,
		}
		if err := s.store.CreateUser(ctx, user); err != nil {
			if _, conflict := asConflict(err); conflict {
				// Lost the race across processes; the row exists now.
				return s.reloadByEmail(ctx, email)
			}
			return nil, fmt.Errorf("create user: %w", err)
		}

		s.logger.Info("user auto-provisioned",
			zap.String("user_id", user.ID),
			zap.String("username", user.Username),
			zap.String("email", email),
		)
		return user, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.User), nil
}

// pickUsername derives a username from the email local part, appending a
// short random hex suffix until it is unique.
func (s *IdentityService) pickUsername(ctx context.Context, email string) (string, error) {
	candidate := strings.SplitN(email, "@", 2)[0]

	for attempt := 0; ; attempt++ {
		taken, err := s.store.GetUserByUsername(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check username: %w", err)
		}
		if taken == nil {
			return candidate, nil
		}
		if attempt >= 5 {
			return "", fmt.Errorf("could not find a free username for %q", email)
		}

		suffix := make([]byte, usernameSuffixBytes)
		if _, err := rand.Read(suffix); err != nil {
			return "", fmt.Errorf("generate username suffix: %w", err)
		}
		candidate = strings.SplitN(email, "@", 2)[0] + "_" + hex.EncodeToString(suffix)
	}
}

func (s *IdentityService) getOrCreateCompany(ctx context.Context, name string) (*domain.Company, error) {
	company, err := s.store.GetCompanyByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("lookup company: %w", err)
	}
	if company != nil {
		return company, nil
	}

	company = &domain.Company{ID: uuid.New().String(), Name: name}
	if err := s.store.CreateCompany(ctx, company); err != nil {
		if _, conflict := asConflict(err); conflict {
			return s.store.GetCompanyByName(ctx, name)
		}
		return nil, fmt.Errorf("create company: %w", err)
	}

	s.logger.Info("company created", zap.String("company", name))
	return company, nil
}

func (s *IdentityService) reloadByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, &domain.ErrConflict{Message: "user row vanished after conflict"}
	}
	return user, nil
}

// Onboard applies the fields left at defaults during auto-provisioning:
// company (created or reused by name), role, and optionally the username.
// A requested username that is already taken is silently kept as-is.
func (s *IdentityService) Onboard(ctx context.Context, user *domain.User, req *domain.OnboardRequest) (*domain.User, error) {
	ctx, span := identityTracer.Start(ctx, "IdentityService.Onboard")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", user.ID))

	if req.CompanyName == "" {
		return nil, &domain.ErrValidation{Field: "company_name", Message: "must not be empty"}
	}
	if req.Role != domain.RoleAdmin && req.Role != domain.RoleUser {
		return nil, &domain.ErrValidation{Field: "role", Message: "must be 'admin' or 'user'"}
	}

	company, err := s.getOrCreateCompany(ctx, req.CompanyName)
	if err != nil {
		return nil, err
	}

	user.CompanyID = company.ID
	user.Role = req.Role

	if req.Username != "" && req.Username != user.Username {
		taken, err := s.store.GetUserByUsername(ctx, req.Username)
		if err != nil {
			return nil, fmt.Errorf("check username: %w", err)
		}
		if taken == nil {
			user.Username = req.Username
		}
	}

	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	s.logger.Info("user onboarded",
		zap.String("user_id", user.ID),
		zap.String("company", company.Name),
		zap.String("role", user.Role),
	)
	return user, nil
}

// asConflict reports whether err is (or wraps) a unique-constraint conflict.
func asConflict(err error) (*domain.ErrConflict, bool) {
	var conflict *domain.ErrConflict
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}
