package handler

import (
	"encoding/json"
	"net/http"

	"github.com/carvision/defect-api/internal/domain"
	"github.com/carvision/defect-api/internal/service"

	"go.uber.org/zap"
)

// meHandler returns the authenticated user's own record.
func meHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := PrincipalFromContext(r.Context())
		if user == nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

// onboardHandler updates the authenticated user's company, role and
// optionally username.
func onboardHandler(identitySvc *service.IdentityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "onboardHandler")
		defer span.End()

		user := PrincipalFromContext(ctx)
		if user == nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}

		var req domain.OnboardRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "validation", "invalid request body")
			return
		}

		updated, err := identitySvc.Onboard(ctx, user, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

// companyUsersHandler lists all users in the caller's company.
func companyUsersHandler(predictSvc *service.PredictionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "companyUsersHandler")
		defer span.End()

		user := PrincipalFromContext(ctx)
		if user == nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}

		users, err := predictSvc.ListCompanyUsers(ctx, user)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, users)
	}
}
