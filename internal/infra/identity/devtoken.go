package identity

import (
	"context"

	"github.com/carvision/defect-api/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// DevTokenVerifier verifies HS256 tokens locally. Enabled with DEV_AUTH=true
// so development and tests run without the remote identity provider.
type DevTokenVerifier struct {
	secret []byte
}

// NewDevTokenVerifier creates a local verifier with the given shared secret.
func NewDevTokenVerifier(secret string) *DevTokenVerifier {
	return &DevTokenVerifier{secret: []byte(secret)}
}

type devClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verify parses and validates the token, returning the embedded identity.
func (v *DevTokenVerifier) Verify(_ context.Context, token string) (*domain.Identity, error) {
	claims := &devClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, &domain.ErrUnauthenticated{Message: "invalid authentication credentials"}
	}
	if claims.Email == "" {
		return nil, &domain.ErrUnauthenticated{Message: "no email in verified token"}
	}

	return &domain.Identity{
		Email:   claims.Email,
		Subject: claims.Subject,
	}, nil
}

// SignDevToken mints a token the DevTokenVerifier accepts. Used by tests
// and local tooling.
func SignDevToken(secret, email, subject string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, devClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: subject,
		},
	})
	return token.SignedString([]byte(secret))
}
