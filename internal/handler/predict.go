package handler

import (
	"mime/multipart"
	"net/http"

	"github.com/carvision/defect-api/internal/domain"
	"github.com/carvision/defect-api/internal/infra/observability"
	"github.com/carvision/defect-api/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxUploadBytes caps multipart memory buffering; larger files spill to disk.
const maxUploadBytes = 32 << 20

// predictHandler accepts a multipart image, runs the full detection
// pipeline and returns the persisted detection record.
func predictHandler(predictSvc *service.PredictionService, metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "predictHandler")
		defer span.End()

		user := PrincipalFromContext(ctx)
		if user == nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}

		file, header, err := formImage(w, r)
		if err != nil {
			return // formImage already wrote the response
		}
		defer file.Close()
		metrics.AddUploadBytes(header.Size)

		detection, err := predictSvc.Predict(ctx, user, file, header.Filename)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, detection)
	}
}

// livePredictHandler runs detection on a transient frame without
// authentication or persistence.
func livePredictHandler(predictSvc *service.PredictionService, metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "livePredictHandler")
		defer span.End()

		file, header, err := formImage(w, r)
		if err != nil {
			return
		}
		defer file.Close()
		metrics.AddUploadBytes(header.Size)

		defects, err := predictSvc.LivePredict(ctx, file, header.Filename)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.LivePredictResponse{Detections: defects})
	}
}

// userDetectionsHandler returns the caller's detection history.
func userDetectionsHandler(predictSvc *service.PredictionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "userDetectionsHandler")
		defer span.End()

		user := PrincipalFromContext(ctx)
		if user == nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}

		detections, err := predictSvc.ListUserDetections(ctx, user)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, detections)
	}
}

// deleteDetectionHandler removes one of the caller's detections.
func deleteDetectionHandler(predictSvc *service.PredictionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "deleteDetectionHandler")
		defer span.End()

		user := PrincipalFromContext(ctx)
		if user == nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}

		id := chi.URLParam(r, "detectionID")
		if id == "" {
			writeError(w, http.StatusBadRequest, "validation", "detection id is required")
			return
		}

		if err := predictSvc.DeleteDetection(ctx, user, id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// formImage extracts the "file" part from a multipart upload, writing the
// error response itself when the part is missing.
func formImage(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "request must be multipart/form-data with a 'file' part")
		return nil, nil, err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", "missing 'file' part in upload")
		return nil, nil, err
	}
	return file, header, nil
}
