// Package geonorge provides the HTTP client for the national address
// geocoding service used for municipality, street, and house-number lookups.
package geonorge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"norskform_backend/internal/lookup"
	"norskform_backend/platform/logger"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Client is the HTTP client for the geocoder's autocomplete and address
// endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientName string
	log        *logger.Logger
}

// New creates a geocoder client. clientName is sent as the service's
// required ET-Client-Name identification header.
func New(baseURL, clientName string, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		clientName: clientName,
		log:        log,
	}
}

// SearchMunicipalities searches municipalities by free text (minimum two
// characters, enforced upstream by the field gate).
func (c *Client) SearchMunicipalities(ctx context.Context, text string) ([]Municipality, error) {
	params := url.Values{}
	params.Set("text", text)
	params.Set("layers", "municipality")
	params.Set("size", "20")

	features, err := c.autocomplete(ctx, params)
	if err != nil {
		return nil, err
	}

	municipalities := make([]Municipality, 0, len(features))
	for _, f := range features {
		if f.Properties.ID == "" || f.Properties.Name == "" {
			continue
		}
		municipalities = append(municipalities, Municipality{
			ID:   f.Properties.ID,
			Name: f.Properties.Name,
		})
	}
	return municipalities, nil
}

// SearchStreets searches streets by free text within one municipality.
// The backend does prefix/substring matching only, so results are
// additionally filtered client-side with diacritic-insensitive matching.
func (c *Client) SearchStreets(ctx context.Context, municipalityID, text string) ([]Street, error) {
	params := url.Values{}
	params.Set("text", text)
	params.Set("layers", "street")
	params.Set("municipality", municipalityID)

	features, err := c.autocomplete(ctx, params)
	if err != nil {
		return nil, err
	}

	streets := make([]Street, 0, len(features))
	for _, f := range features {
		if f.Properties.ID == "" || f.Properties.Name == "" {
			continue
		}
		streets = append(streets, Street{
			ID:   f.Properties.ID,
			Name: f.Properties.Name,
		})
	}
	return FilterStreets(streets, text), nil
}

// HouseNumbers fetches all house numbers for a street, sorted with
// Norwegian collation (so "10" sorts after "9" and "B" suffixes order
// naturally for the dropdown).
func (c *Client) HouseNumbers(ctx context.Context, municipalityID, streetID string) ([]Address, error) {
	params := url.Values{}
	params.Set("municipality", municipalityID)
	params.Set("street", streetID)

	features, err := c.get(ctx, fmt.Sprintf("%s/addresses?%s", c.baseURL, params.Encode()))
	if err != nil {
		return nil, err
	}

	addresses := make([]Address, 0, len(features))
	for _, f := range features {
		if f.Properties.StreetNumber == "" {
			continue
		}
		addresses = append(addresses, Address{
			Label:      f.Properties.StreetNumber,
			PostalCode: f.Properties.PostCode,
			PostalArea: f.Properties.PostPlace,
		})
	}

	coll := collate.New(language.Norwegian, collate.Numeric)
	sort.SliceStable(addresses, func(i, j int) bool {
		return coll.CompareString(addresses[i].Label, addresses[j].Label) < 0
	})
	return addresses, nil
}

func (c *Client) autocomplete(ctx context.Context, params url.Values) ([]geocoderFeature, error) {
	return c.get(ctx, fmt.Sprintf("%s/autocomplete?%s", c.baseURL, params.Encode()))
}

func (c *Client) get(ctx context.Context, reqURL string) ([]geocoderFeature, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("ET-Client-Name", c.clientName)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("geocoder degraded (status %d): %w", resp.StatusCode, lookup.ErrUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoder error: status %d", resp.StatusCode)
	}

	var payload geocoderResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode geocoder payload: %w", err)
	}
	return payload.Features, nil
}
