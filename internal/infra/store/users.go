package store

import (
	"context"
	"errors"

	"github.com/carvision/defect-api/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// ============================================================
// Companies
// ============================================================

func (s *Store) GetCompanyByName(ctx context.Context, name string) (*domain.Company, error) {
	ctx, span := tracer.Start(ctx, "Store.GetCompanyByName")
	defer span.End()

	var company domain.Company
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&company).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translateErr(err, "get company by name")
	}
	return &company, nil
}

func (s *Store) CreateCompany(ctx context.Context, company *domain.Company) error {
	ctx, span := tracer.Start(ctx, "Store.CreateCompany")
	defer span.End()

	return translateErr(s.db.WithContext(ctx).Create(company).Error, "create company")
}

// ============================================================
// Users
// ============================================================

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Store.GetUserByEmail")
	defer span.End()

	var user domain.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translateErr(err, "get user by email")
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Store.GetUserByUsername")
	defer span.End()

	var user domain.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translateErr(err, "get user by username")
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	ctx, span := tracer.Start(ctx, "Store.CreateUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.email", user.Email))

	return translateErr(s.db.WithContext(ctx).Create(user).Error, "create user")
}

func (s *Store) UpdateUser(ctx context.Context, user *domain.User) error {
	ctx, span := tracer.Start(ctx, "Store.UpdateUser")
	defer span.End()

	return translateErr(s.db.WithContext(ctx).Save(user).Error, "update user")
}

func (s *Store) ListCompanyUsers(ctx context.Context, companyID string) ([]domain.User, error) {
	ctx, span := tracer.Start(ctx, "Store.ListCompanyUsers")
	defer span.End()

	var users []domain.User
	err := s.db.WithContext(ctx).Where("company_id = ?", companyID).Find(&users).Error
	if err != nil {
		return nil, translateErr(err, "list company users")
	}
	return users, nil
}
