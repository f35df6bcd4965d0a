package inference_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/carvision/defect-api/internal/domain"
	"github.com/carvision/defect-api/internal/infra/inference"
	"github.com/carvision/defect-api/internal/infra/resilience"
)

func testConfig() resilience.Config {
	return resilience.Config{
		MaxRetries:     1,
		InitialBackoff: 5 * time.Millisecond,
	}
}

func writeImageFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "car.jpg")
	if err := os.WriteFile(path, []byte("fake-jpeg-bytes"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

func TestPredict_DecodesDetections(t *testing.T) {
	var gotConf string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" {
			t.Errorf("expected /predict, got %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		gotConf = r.FormValue("conf")
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file part: %v", err)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"detections": []map[string]any{
				{"class": "dent", "confidence": 0.87, "bbox": []int{10, 20, 30, 40}},
				{"class": "scratch", "confidence": 0.31, "bbox": []int{1, 2, 3, 4}},
			},
		})
	}))
	defer srv.Close()

	c := inference.NewClient(srv.Client(), srv.URL, resilience.NewCircuitBreaker("test"), testConfig())

	boxes, err := c.Predict(context.Background(), writeImageFile(t), 0.25)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if gotConf != "0.25" {
		t.Errorf("expected conf field '0.25', got %q", gotConf)
	}
	if len(boxes) != 2 {
		t.Fatalf("expected 2 boxes, got %d", len(boxes))
	}
	if boxes[0].Class != "dent" || boxes[0].Box != [4]int{10, 20, 30, 40} {
		t.Errorf("unexpected first box: %+v", boxes[0])
	}
	if boxes[1].Class != "scratch" {
		t.Errorf("expected model order preserved, got %+v", boxes[1])
	}
}

func TestPredict_ServerErrorBecomesModelUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := inference.NewClient(srv.Client(), srv.URL, resilience.NewCircuitBreaker("test"), testConfig())

	_, err := c.Predict(context.Background(), writeImageFile(t), 0.25)

	var unavailable *domain.ErrModelUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestPredict_RetriesTransientFailure(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"detections": []any{}})
	}))
	defer srv.Close()

	c := inference.NewClient(srv.Client(), srv.URL, resilience.NewCircuitBreaker("test"), testConfig())

	boxes, err := c.Predict(context.Background(), writeImageFile(t), 0.25)
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
	if len(boxes) != 0 {
		t.Errorf("expected no boxes, got %d", len(boxes))
	}
}

func TestPredict_MissingImageFile(t *testing.T) {
	c := inference.NewClient(http.DefaultClient, "http://localhost:0", resilience.NewCircuitBreaker("test"), testConfig())

	_, err := c.Predict(context.Background(), "/nonexistent/car.jpg", 0.25)

	var storageErr *domain.ErrStorage
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestHealthcheck(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("expected /health, got %s", r.URL.Path)
		}
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	c := inference.NewClient(srv.Client(), srv.URL, resilience.NewCircuitBreaker("test"), testConfig())

	if err := c.Healthcheck(context.Background()); err != nil {
		t.Fatalf("expected healthy, got %v", err)
	}

	healthy = false
	err := c.Healthcheck(context.Background())
	var unavailable *domain.ErrModelUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}
