package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/carvision/defect-api/internal/domain"
	"github.com/carvision/defect-api/internal/service"

	"go.uber.org/zap"
)

type contextKey string

const principalKey contextKey = "principal"

// BearerAuthMiddleware resolves the Authorization header to a local user
// (provisioning one on first sight) and injects it into the context.
func BearerAuthMiddleware(identitySvc *service.IdentityService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("auth: missing credentials",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication credentials were not provided")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("auth: malformed authorization header",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "unauthenticated", "malformed authorization header")
				return
			}

			user, err := identitySvc.Resolve(r.Context(), parts[1])
			if err != nil {
				handleServiceError(w, err, logger)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext extracts the authenticated user from context.
func PrincipalFromContext(ctx context.Context) *domain.User {
	u, _ := ctx.Value(principalKey).(*domain.User)
	return u
}
