package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/carvision/defect-api/internal/domain"

	"go.uber.org/zap"
)

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var unauthenticated *domain.ErrUnauthenticated
	var forbidden *domain.ErrForbidden
	var notFound *domain.ErrNotFound
	var validation *domain.ErrValidation
	var imageUnreadable *domain.ErrImageUnreadable
	var conflict *domain.ErrConflict
	var modelUnavailable *domain.ErrModelUnavailable
	var storage *domain.ErrStorage
	var external *domain.ErrExternalService
	var circuitOpen *domain.ErrCircuitOpen
	var timeout *domain.ErrTimeout

	switch {
	case errors.As(err, &unauthenticated):
		logger.Warn("unauthenticated", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
	case errors.As(err, &forbidden):
		logger.Warn("forbidden access", zap.String("error", err.Error()))
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "validation", err.Error())
	case errors.As(err, &imageUnreadable):
		logger.Debug("unreadable image", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "image_unreadable", "uploaded file is not a readable image")
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "circuit_open", err.Error())
	case errors.As(err, &timeout):
		logger.Error("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, "timeout", err.Error())
	case errors.As(err, &modelUnavailable):
		logger.Error("model unavailable", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "model_unavailable", "detection model is unavailable")
	case errors.As(err, &storage):
		logger.Error("storage failure", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage", "storage operation failed")
	case errors.As(err, &external):
		logger.Error("external service failure", zap.Error(err))
		writeError(w, http.StatusBadGateway, "external_service", err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
