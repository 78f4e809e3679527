// Package payment provides the client for the hosted payment page API.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"norskform_backend/platform/logger"
)

// HostedPage is the payment page created for one order.
type HostedPage struct {
	ID  string
	URL string
}

// CheckoutParams carries the customer and plan details for a hosted page.
type CheckoutParams struct {
	PlanID    string
	Email     string
	FirstName string
	LastName  string
	// Phone in E.164 form.
	Phone string
	// OrderID is passed through so webhook events can be correlated even
	// when the provider omits the page ID.
	OrderID     string
	RedirectURL string
	CancelURL   string
}

// Client creates hosted payment pages. The API key doubles as the basic
// auth username with an empty password.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	log        *logger.Logger
}

func New(baseURL, apiKey string, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		log:        log,
	}
}

type hostedPageResponse struct {
	HostedPage struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	} `json:"hosted_page"`
}

// CreateCheckout creates a hosted checkout page for a new subscription.
func (c *Client) CreateCheckout(ctx context.Context, params CheckoutParams) (HostedPage, error) {
	form := url.Values{}
	form.Set("subscription[plan_id]", params.PlanID)
	form.Set("subscription[cf_order_id]", params.OrderID)
	form.Set("customer[email]", params.Email)
	form.Set("customer[first_name]", params.FirstName)
	form.Set("customer[last_name]", params.LastName)
	form.Set("customer[phone]", params.Phone)
	form.Set("redirect_url", params.RedirectURL)
	form.Set("cancel_url", params.CancelURL)

	reqURL := fmt.Sprintf("%s/api/v2/hosted_pages/checkout_new", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return HostedPage{}, err
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HostedPage{}, fmt.Errorf("create hosted page: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return HostedPage{}, fmt.Errorf("hosted page error: status %d", resp.StatusCode)
	}

	var payload hostedPageResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return HostedPage{}, fmt.Errorf("decode hosted page payload: %w", err)
	}
	if payload.HostedPage.URL == "" {
		return HostedPage{}, fmt.Errorf("hosted page payload missing url")
	}

	return HostedPage{ID: payload.HostedPage.ID, URL: payload.HostedPage.URL}, nil
}
