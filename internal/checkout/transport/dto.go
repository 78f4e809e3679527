// Package transport defines the request/response DTOs for the checkout
// module.
package transport

// ── Requests ──────────────────────────────────────────────────────────────────

// SubmitOrderRequest is the request body for submitting a completed form.
// Address fields carry the values the form session resolved; the server
// re-validates everything since the client is untrusted.
type SubmitOrderRequest struct {
	FirstName string `json:"firstName" validate:"required,min=1,max=100"`
	LastName  string `json:"lastName" validate:"required,min=1,max=100"`
	Email     string `json:"email" validate:"required,email,max=254"`
	// Phone is the 8-digit national subscriber number.
	Phone string `json:"phone" validate:"required,norphone"`

	MunicipalityID   string `json:"municipalityId" validate:"required,max=20"`
	MunicipalityName string `json:"municipalityName" validate:"required,max=100"`
	Street           string `json:"street" validate:"required,max=200"`
	HouseNumber      string `json:"houseNumber" validate:"required,max=20"`
	PostalCode       string `json:"postalCode" validate:"required,postnr"`
	PostalArea       string `json:"postalArea" validate:"required,max=100"`
}

// PaymentEvent is the inbound webhook body from the payment provider.
type PaymentEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Content   struct {
		HostedPage struct {
			ID string `json:"id"`
		} `json:"hosted_page"`
		Subscription struct {
			ID string `json:"id"`
		} `json:"subscription"`
	} `json:"content"`
}

// Webhook event types the service reacts to. Everything else is
// acknowledged and ignored.
const (
	EventPaymentSucceeded = "payment_succeeded"
	EventPaymentFailed    = "payment_failed"
	EventPaymentCancelled = "payment_cancelled"
)

// ── Responses ─────────────────────────────────────────────────────────────────

// SubmitOrderResponse returns the persisted order and, when payment is
// enabled, the hosted payment page to redirect to.
type SubmitOrderResponse struct {
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	CheckoutURL string `json:"checkoutUrl,omitempty"`
}
