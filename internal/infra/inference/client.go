// Package inference calls the detection model service. The model itself is
// a black box behind HTTP: image in, labeled boxes out.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/carvision/defect-api/internal/domain"
	"github.com/carvision/defect-api/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("inference")

// Client invokes the model service. Safe for concurrent use; any
// serialization the model needs happens behind the service boundary.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewClient creates an inference client.
func NewClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
	}
}

type predictResponse struct {
	Detections []domain.RawBox `json:"detections"`
}

// Predict runs the model on the image at path with the given confidence
// threshold. Boxes come back in the model's native output order.
func (c *Client) Predict(ctx context.Context, imagePath string, threshold float64) ([]domain.RawBox, error) {
	ctx, span := tracer.Start(ctx, "InferenceClient.Predict")
	defer span.End()
	span.SetAttributes(attribute.Float64("model.threshold", threshold))

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, &domain.ErrStorage{Op: "read image for inference", Err: err}
	}

	var boxes []domain.RawBox

	_, cbErr := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body := &bytes.Buffer{}
			writer := multipart.NewWriter(body)

			part, err := writer.CreateFormFile("file", filepath.Base(imagePath))
			if err != nil {
				return fmt.Errorf("create form file: %w", err)
			}
			if _, err := part.Write(data); err != nil {
				return fmt.Errorf("write image data: %w", err)
			}
			if err := writer.WriteField("conf", strconv.FormatFloat(threshold, 'f', -1, 64)); err != nil {
				return fmt.Errorf("write conf field: %w", err)
			}
			if err := writer.Close(); err != nil {
				return err
			}

			url := fmt.Sprintf("%s/predict", c.baseURL)
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", writer.FormDataContentType())

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return fmt.Errorf("inference service returned status %d: %s", resp.StatusCode, detail)
			}

			var pr predictResponse
			if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
				return fmt.Errorf("decode inference response: %w", err)
			}
			boxes = pr.Detections
			return nil
		})
	})

	if cbErr != nil {
		if errors.Is(cbErr, gobreaker.ErrOpenState) || errors.Is(cbErr, gobreaker.ErrTooManyRequests) {
			return nil, &domain.ErrCircuitOpen{Service: "inference"}
		}
		return nil, &domain.ErrModelUnavailable{Err: cbErr}
	}

	return boxes, nil
}

// Healthcheck probes the model service. Called at boot to fail fast when
// the model did not load.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.ErrModelUnavailable{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &domain.ErrModelUnavailable{Err: fmt.Errorf("model service unhealthy: status %d", resp.StatusCode)}
	}
	return nil
}
