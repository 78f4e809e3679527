// Package directory provides the HTTP client for the phone directory
// service used to look up the owner of an 8-digit Norwegian number.
//
// The directory has shipped under several endpoint/header schemes; this
// client implements a single contract: GET /lookup/phonenumber with the
// subscription key header.
package directory

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

// Owner is the normalized directory record for a phone number.
type Owner struct {
	Name       string `json:"name"`
	Street     string `json:"street"`
	PostalCode string `json:"postalCode"`
	PostalArea string `json:"postalArea"`
}

type directoryResponse struct {
	Contacts []directoryContact `json:"contacts"`
}

type directoryContact struct {
	Name      string `json:"name"`
	Geography struct {
		Address struct {
			Street   string `json:"street"`
			PostCode string `json:"postCode"`
			PostArea string `json:"postArea"`
		} `json:"address"`
	} `json:"geography"`
}

// Client is the HTTP client for the directory API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	log        *logger.Logger
}

// New creates a directory client. An empty API key leaves the client in
// degraded mode: every lookup reports unavailable so the form falls back to
// manual entry instead of erroring.
func New(baseURL, apiKey string, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		log:        log,
	}
}

// Lookup resolves an 8-digit national number to its directory owners.
// The number must already be normalized: no country-code prefix, digits
// only. Zero matches is an empty slice, never an error.
func (c *Client) Lookup(ctx context.Context, number string) ([]Owner, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("directory api key not configured: %w", lookup.ErrUnavailable)
	}

	params := url.Values{}
	params.Set("number", number)

	reqURL := fmt.Sprintf("%s/lookup/phonenumber?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Unlisted number, a legitimate terminal state.
		return []Owner{}, nil
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("directory degraded (status %d): %w", resp.StatusCode, lookup.ErrUnavailable)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("directory error: status %d", resp.StatusCode)
	}

	var payload directoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode directory payload: %w", err)
	}

	owners := make([]Owner, 0, len(payload.Contacts))
	for _, contact := range payload.Contacts {
		if contact.Name == "" {
			continue
		}
		owners = append(owners, Owner{
			Name:       contact.Name,
			Street:     contact.Geography.Address.Street,
			PostalCode: contact.Geography.Address.PostCode,
			PostalArea: contact.Geography.Address.PostArea,
		})
	}
	return owners, nil
}
