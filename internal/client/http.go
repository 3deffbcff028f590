package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/leapstack-labs/pine/pkg/pine"
)

// DefaultBaseURL is where the Pine service listens by default.
const DefaultBaseURL = "http://localhost:33333"

// HTTPGateway posts expressions to the service's JSON API.
type HTTPGateway struct {
	baseURL string
	http    *http.Client
}

// HTTPConfig configures an HTTPGateway.
type HTTPConfig struct {
	// BaseURL is the service root, e.g. http://localhost:33333
	BaseURL string
	// Timeout bounds a single request. Zero means no timeout.
	Timeout time.Duration
	// HTTPClient overrides the underlying client (optional)
	HTTPClient *http.Client
}

// NewHTTPGateway creates a gateway for the service at cfg.BaseURL.
func NewHTTPGateway(cfg HTTPConfig) *HTTPGateway {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPGateway{
		baseURL: strings.TrimSuffix(base, "/"),
		http:    hc,
	}
}

type requestBody struct {
	Expression string `json:"expression"`
}

// Post sends {"expression": expression} to /api/v1/<endpoint>.
func (g *HTTPGateway) Post(ctx context.Context, endpoint Endpoint, expression string) (*pine.Response, error) {
	body, err := json.Marshal(requestBody{Expression: expression})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/v1/%s", g.baseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("status %d from %s", res.StatusCode, url)
	}

	var resp pine.Response
	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}
