package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"rolloutctl/internal/cloud"
	"rolloutctl/pkg/logging"
)

// HealthProbe performs one authenticated GET against a unit's health
// endpoint. It is stateless; the pipeline decides when to call it.
type HealthProbe struct {
	client   *http.Client
	tokenVar string
}

// NewHealthProbe creates a probe. tokenVar names the environment variable
// holding the bearer token; empty means probe without Authorization. The
// token is read at probe time, not at construction, so rotation between
// units is picked up.
func NewHealthProbe(timeout time.Duration, tokenVar string) *HealthProbe {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HealthProbe{
		client:   &http.Client{Timeout: timeout},
		tokenVar: tokenVar,
	}
}

// Check fetches the unit's health endpoint and treats exactly HTTP 200 as
// healthy. Anything else, including transport failures, comes back as a
// *cloud.HealthCheckError.
func (p *HealthProbe) Check(ctx context.Context, service, endpointURL, healthPath string) error {
	url := strings.TrimSuffix(endpointURL, "/") + healthPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &cloud.HealthCheckError{Service: service, Endpoint: url, Err: fmt.Errorf("building request: %w", err)}
	}
	if p.tokenVar != "" {
		if token := os.Getenv(p.tokenVar); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		} else {
			logging.Warn("health", "Token variable %s is empty, probing %s without authorization", p.tokenVar, service)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return &cloud.HealthCheckError{Service: service, Endpoint: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &cloud.HealthCheckError{Service: service, Endpoint: url, StatusCode: resp.StatusCode}
	}

	logging.Debug("health", "%s healthy at %s", service, url)
	return nil
}
