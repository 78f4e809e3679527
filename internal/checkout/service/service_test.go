package service

import (
	"context"
	"errors"
	"testing"

	"norskform_backend/internal/checkout/payment"
	"norskform_backend/internal/checkout/repository"
	"norskform_backend/internal/checkout/transport"
	"norskform_backend/internal/email"
	"norskform_backend/internal/scheduler"
	"norskform_backend/platform/apperr"
	"norskform_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	orders map[uuid.UUID]*repository.Order
	byPage map[string]uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders: make(map[uuid.UUID]*repository.Order),
		byPage: make(map[string]uuid.UUID),
	}
}

func (f *fakeStore) Create(_ context.Context, order *repository.Order) error {
	cp := *order
	f.orders[order.ID] = &cp
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*repository.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, apperr.NotFound("order not found")
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStore) GetByCheckoutPageID(_ context.Context, pageID string) (*repository.Order, error) {
	id, ok := f.byPage[pageID]
	if !ok {
		return nil, apperr.NotFound("order not found")
	}
	return f.GetByID(context.Background(), id)
}

func (f *fakeStore) SetCheckoutPage(_ context.Context, id uuid.UUID, pageID, url string) error {
	o, ok := f.orders[id]
	if !ok {
		return apperr.NotFound("order not found")
	}
	o.CheckoutPageID = &pageID
	o.CheckoutURL = &url
	f.byPage[pageID] = id
	return nil
}

func (f *fakeStore) MarkPaid(_ context.Context, id uuid.UUID) (bool, error) {
	o, ok := f.orders[id]
	if !ok || o.Status != repository.StatusPending {
		return false, nil
	}
	o.Status = repository.StatusPaid
	return true, nil
}

func (f *fakeStore) MarkCancelled(_ context.Context, id uuid.UUID) (bool, error) {
	o, ok := f.orders[id]
	if !ok || o.Status != repository.StatusPending {
		return false, nil
	}
	o.Status = repository.StatusCancelled
	return true, nil
}

type fakeGateway struct {
	calls int
	fail  bool
}

func (f *fakeGateway) CreateCheckout(_ context.Context, params payment.CheckoutParams) (payment.HostedPage, error) {
	f.calls++
	if f.fail {
		return payment.HostedPage{}, errors.New("gateway down")
	}
	return payment.HostedPage{ID: "hp_" + params.OrderID, URL: "https://pay.example/" + params.OrderID}, nil
}

type fakeMailer struct {
	sent []email.OrderConfirmationData
}

func (f *fakeMailer) SendOrderConfirmation(_ context.Context, _ string, data email.OrderConfirmationData) error {
	f.sent = append(f.sent, data)
	return nil
}

type fakeJobs struct {
	enqueued []scheduler.OrderEnrichmentPayload
}

func (f *fakeJobs) EnqueueOrderEnrichment(_ context.Context, payload scheduler.OrderEnrichmentPayload) error {
	f.enqueued = append(f.enqueued, payload)
	return nil
}

type testCheckoutConfig struct {
	enabled bool
}

func (c testCheckoutConfig) GetCheckoutBaseURL() string { return "https://billing.example" }
func (c testCheckoutConfig) GetCheckoutAPIKey() string  { return "key" }
func (c testCheckoutConfig) GetCheckoutPlanID() string  { return "melatonin-1pk" }
func (c testCheckoutConfig) GetAppBaseURL() string      { return "https://app.example" }
func (c testCheckoutConfig) IsCheckoutEnabled() bool    { return c.enabled }

func validRequest() transport.SubmitOrderRequest {
	return transport.SubmitOrderRequest{
		FirstName:        "Kari",
		LastName:         "Nordmann",
		Email:            "kari@example.no",
		Phone:            "22 33 44 55",
		MunicipalityID:   "0301",
		MunicipalityName: "Oslo",
		Street:           "Karl Johans gate",
		HouseNumber:      "2",
		PostalCode:       "0154",
		PostalArea:       "Oslo",
	}
}

func newTestService(store *fakeStore, gateway *fakeGateway, mailer *fakeMailer, jobs *fakeJobs, enabled bool) *Service {
	return New(store, gateway, mailer, jobs, testCheckoutConfig{enabled: enabled}, logger.New("development"))
}

func TestSubmitCreatesOrderAndPaymentPage(t *testing.T) {
	store := newFakeStore()
	gateway := &fakeGateway{}
	svc := newTestService(store, gateway, &fakeMailer{}, &fakeJobs{}, true)

	resp, err := svc.Submit(context.Background(), "sess-1", validRequest())
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != repository.StatusPending {
		t.Fatalf("status = %q, want pending", resp.Status)
	}
	if resp.CheckoutURL == "" {
		t.Fatal("expected a checkout URL")
	}
	if gateway.calls != 1 {
		t.Fatalf("gateway calls = %d, want 1", gateway.calls)
	}

	id := uuid.MustParse(resp.OrderID)
	order := store.orders[id]
	if order.Phone != "+4722334455" {
		t.Fatalf("phone stored as %q, want E.164", order.Phone)
	}
	if order.SessionID != "sess-1" {
		t.Fatalf("session id = %q", order.SessionID)
	}
	if order.CheckoutPageID == nil {
		t.Fatal("checkout page not recorded")
	}
}

func TestSubmitStripsMarkupFromNames(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{}, &fakeMailer{}, &fakeJobs{}, true)

	req := validRequest()
	req.FirstName = "<script>alert(1)</script>Kari"
	resp, err := svc.Submit(context.Background(), "sess-1", req)
	if err != nil {
		t.Fatal(err)
	}

	order := store.orders[uuid.MustParse(resp.OrderID)]
	if order.FirstName != "Kari" {
		t.Fatalf("first name stored as %q", order.FirstName)
	}
}

func TestSubmitRejectsInvalidSubscriberNumber(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeGateway{}, &fakeMailer{}, &fakeJobs{}, true)

	req := validRequest()
	// Eight digits but outside the subscriber numbering plan.
	req.Phone = "12345678"
	if _, err := svc.Submit(context.Background(), "sess-1", req); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	req.Phone = "+4722334455"
	if _, err := svc.Submit(context.Background(), "sess-1", req); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for country prefix, got %v", err)
	}
}

func TestSubmitDisabledCheckoutStoresManualOrder(t *testing.T) {
	store := newFakeStore()
	gateway := &fakeGateway{}
	svc := newTestService(store, gateway, &fakeMailer{}, &fakeJobs{}, false)

	resp, err := svc.Submit(context.Background(), "sess-1", validRequest())
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != repository.StatusManual {
		t.Fatalf("status = %q, want manual", resp.Status)
	}
	if resp.CheckoutURL != "" {
		t.Fatal("manual order should not carry a checkout URL")
	}
	if gateway.calls != 0 {
		t.Fatal("gateway should not be called when checkout is disabled")
	}
}

func TestSubmitGatewayFailureKeepsOrder(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{fail: true}, &fakeMailer{}, &fakeJobs{}, true)

	_, err := svc.Submit(context.Background(), "sess-1", validRequest())
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if len(store.orders) != 1 {
		t.Fatal("order should be stored before the gateway call")
	}
}

func submitPaid(t *testing.T, svc *Service, store *fakeStore) *repository.Order {
	t.Helper()

	resp, err := svc.Submit(context.Background(), "sess-1", validRequest())
	if err != nil {
		t.Fatal(err)
	}
	return store.orders[uuid.MustParse(resp.OrderID)]
}

func paymentEvent(eventType, pageID string) transport.PaymentEvent {
	var event transport.PaymentEvent
	event.EventType = eventType
	event.Content.HostedPage.ID = pageID
	return event
}

func TestPaymentSucceededMarksPaidAndNotifies(t *testing.T) {
	store := newFakeStore()
	mailer := &fakeMailer{}
	jobs := &fakeJobs{}
	svc := newTestService(store, &fakeGateway{}, mailer, jobs, true)
	order := submitPaid(t, svc, store)

	err := svc.HandlePaymentEvent(context.Background(), paymentEvent(transport.EventPaymentSucceeded, *order.CheckoutPageID))
	if err != nil {
		t.Fatal(err)
	}

	if order.Status != repository.StatusPaid {
		t.Fatalf("status = %q, want paid", order.Status)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("confirmations sent = %d, want 1", len(mailer.sent))
	}
	if len(jobs.enqueued) != 1 || jobs.enqueued[0].Phone != "22334455" {
		t.Fatalf("enrichment jobs = %+v", jobs.enqueued)
	}
}

func TestPaymentSucceededIsIdempotent(t *testing.T) {
	store := newFakeStore()
	mailer := &fakeMailer{}
	jobs := &fakeJobs{}
	svc := newTestService(store, &fakeGateway{}, mailer, jobs, true)
	order := submitPaid(t, svc, store)

	event := paymentEvent(transport.EventPaymentSucceeded, *order.CheckoutPageID)
	for range 3 {
		if err := svc.HandlePaymentEvent(context.Background(), event); err != nil {
			t.Fatal(err)
		}
	}

	if len(mailer.sent) != 1 {
		t.Fatalf("confirmations sent = %d, want 1", len(mailer.sent))
	}
	if len(jobs.enqueued) != 1 {
		t.Fatalf("enrichment jobs = %d, want 1", len(jobs.enqueued))
	}
}

func TestPaymentCancelledMarksCancelled(t *testing.T) {
	store := newFakeStore()
	mailer := &fakeMailer{}
	svc := newTestService(store, &fakeGateway{}, mailer, &fakeJobs{}, true)
	order := submitPaid(t, svc, store)

	err := svc.HandlePaymentEvent(context.Background(), paymentEvent(transport.EventPaymentCancelled, *order.CheckoutPageID))
	if err != nil {
		t.Fatal(err)
	}

	if order.Status != repository.StatusCancelled {
		t.Fatalf("status = %q, want cancelled", order.Status)
	}
	if len(mailer.sent) != 0 {
		t.Fatal("cancelled order must not send a confirmation")
	}
}

func TestPaymentEventForUnknownPageIsAcknowledged(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeGateway{}, &fakeMailer{}, &fakeJobs{}, true)

	err := svc.HandlePaymentEvent(context.Background(), paymentEvent(transport.EventPaymentSucceeded, "hp_unknown"))
	if err != nil {
		t.Fatalf("unknown page should be acknowledged, got %v", err)
	}
}

func TestIrrelevantEventTypesAreIgnored(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{}, &fakeMailer{}, &fakeJobs{}, true)
	order := submitPaid(t, svc, store)

	err := svc.HandlePaymentEvent(context.Background(), paymentEvent("subscription_created", *order.CheckoutPageID))
	if err != nil {
		t.Fatal(err)
	}
	if order.Status != repository.StatusPending {
		t.Fatalf("status = %q, want pending", order.Status)
	}
}
