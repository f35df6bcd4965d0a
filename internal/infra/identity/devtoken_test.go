package identity_test

import (
	"context"
	"errors"
	"testing"

	"github.com/carvision/defect-api/internal/domain"
	"github.com/carvision/defect-api/internal/infra/identity"
)

func TestDevTokenVerifier_RoundTrip(t *testing.T) {
	token, err := identity.SignDevToken("secret", "jane@example.com", "sub-1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	ident, err := identity.NewDevTokenVerifier("secret").Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ident.Email != "jane@example.com" {
		t.Errorf("expected email 'jane@example.com', got %q", ident.Email)
	}
	if ident.Subject != "sub-1" {
		t.Errorf("expected subject 'sub-1', got %q", ident.Subject)
	}
}

func TestDevTokenVerifier_WrongSecret(t *testing.T) {
	token, err := identity.SignDevToken("secret-a", "jane@example.com", "sub-1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, err = identity.NewDevTokenVerifier("secret-b").Verify(context.Background(), token)

	var unauth *domain.ErrUnauthenticated
	if !errors.As(err, &unauth) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestDevTokenVerifier_Garbage(t *testing.T) {
	_, err := identity.NewDevTokenVerifier("secret").Verify(context.Background(), "not.a.jwt")

	var unauth *domain.ErrUnauthenticated
	if !errors.As(err, &unauth) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestDevTokenVerifier_MissingEmail(t *testing.T) {
	token, err := identity.SignDevToken("secret", "", "sub-1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, err = identity.NewDevTokenVerifier("secret").Verify(context.Background(), token)

	var unauth *domain.ErrUnauthenticated
	if !errors.As(err, &unauth) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}
