// Package postal provides the HTTP client for the postal-code service that
// resolves a 4-digit postal code to its place name.
package postal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"norskform_backend/internal/lookup"
	"norskform_backend/platform/logger"
)

// Place is the normalized record for a resolved postal code.
type Place struct {
	PostalCode string `json:"postalCode"`
	PostalArea string `json:"postalArea"`
}

type postalResponse struct {
	Valid  bool   `json:"valid"`
	Result string `json:"result"`
}

// Client is the HTTP client for the postal code API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	log        *logger.Logger
}

// New creates a postal code client. clientID identifies this integration to
// the service.
func New(baseURL, clientID string, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		clientID:   clientID,
		log:        log,
	}
}

// Resolve looks up a 4-digit postal code. An unknown code yields an empty
// slice, never an error.
func (c *Client) Resolve(ctx context.Context, code string) ([]Place, error) {
	params := url.Values{}
	params.Set("clientUrl", c.clientID)
	params.Set("pnr", code)

	reqURL := fmt.Sprintf("%s/postalCode.json?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("postal service degraded (status %d): %w", resp.StatusCode, lookup.ErrUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("postal service error: status %d", resp.StatusCode)
	}

	var payload postalResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode postal payload: %w", err)
	}

	if !payload.Valid || payload.Result == "" {
		return []Place{}, nil
	}
	return []Place{{PostalCode: code, PostalArea: payload.Result}}, nil
}
