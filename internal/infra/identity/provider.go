// Package identity verifies opaque bearer credentials against the external
// identity provider. The server never issues or stores passwords.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/carvision/defect-api/internal/domain"
	"github.com/carvision/defect-api/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("identity")

// ProviderClient verifies ID tokens through the provider's REST lookup
// endpoint (POST /v1/accounts:lookup?key=<api-key>).
type ProviderClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	logger     *zap.Logger
}

// NewProviderClient creates a token verifier backed by the identity provider.
func NewProviderClient(httpClient *http.Client, baseURL, apiKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *ProviderClient {
	return &ProviderClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		cb:         cb,
		cfg:        cfg,
		logger:     logger,
	}
}

type lookupRequest struct {
	IDToken string `json:"idToken"`
}

type lookupResponse struct {
	Users []struct {
		Email   string `json:"email"`
		LocalID string `json:"localId"`
	} `json:"users"`
}

// Verify checks the credential with the provider and returns the asserted
// identity. A provider rejection or a response without an email fails with
// ErrUnauthenticated and is never retried; transport failures surface as
// ErrExternalService after the retry budget is exhausted.
func (c *ProviderClient) Verify(ctx context.Context, token string) (*domain.Identity, error) {
	ctx, span := tracer.Start(ctx, "ProviderClient.Verify")
	defer span.End()

	var ident *domain.Identity

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := json.Marshal(lookupRequest{IDToken: token})
			if err != nil {
				return err
			}

			url := fmt.Sprintf("%s/v1/accounts:lookup?key=%s", c.baseURL, c.apiKey)
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				c.logger.Warn("identity: token verification rejected",
					zap.Int("status", resp.StatusCode),
					zap.ByteString("body", detail),
				)
				return resilience.Permanent(&domain.ErrUnauthenticated{Message: "invalid authentication credentials"})
			}

			var lr lookupResponse
			if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
				return fmt.Errorf("decode lookup response: %w", err)
			}
			if len(lr.Users) == 0 || lr.Users[0].Email == "" {
				return resilience.Permanent(&domain.ErrUnauthenticated{Message: "no email in verified token"})
			}

			ident = &domain.Identity{
				Email:   lr.Users[0].Email,
				Subject: lr.Users[0].LocalID,
			}
			return nil
		})
	})

	if err != nil {
		var unauth *domain.ErrUnauthenticated
		if errors.As(err, &unauth) {
			return nil, unauth
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &domain.ErrCircuitOpen{Service: "identity-provider"}
		}
		return nil, &domain.ErrExternalService{Service: "identity-provider", Err: err}
	}

	return ident, nil
}
