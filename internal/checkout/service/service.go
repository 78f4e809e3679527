// Package service provides business logic for checkout order submission and
// payment webhook processing.
package service

import (
	"context"
	"fmt"
	"time"

	"norskform_backend/internal/checkout/payment"
	"norskform_backend/internal/checkout/repository"
	"norskform_backend/internal/checkout/transport"
	"norskform_backend/internal/email"
	"norskform_backend/internal/scheduler"
	"norskform_backend/platform/apperr"
	"norskform_backend/platform/config"
	"norskform_backend/platform/logger"
	"norskform_backend/platform/phone"
	"norskform_backend/platform/sanitize"

	"github.com/google/uuid"
)

// OrderStore is the narrow repository interface the service needs.
type OrderStore interface {
	Create(ctx context.Context, order *repository.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*repository.Order, error)
	GetByCheckoutPageID(ctx context.Context, pageID string) (*repository.Order, error)
	SetCheckoutPage(ctx context.Context, id uuid.UUID, pageID, url string) error
	MarkPaid(ctx context.Context, id uuid.UUID) (bool, error)
	MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error)
}

// PaymentGateway creates hosted payment pages.
type PaymentGateway interface {
	CreateCheckout(ctx context.Context, params payment.CheckoutParams) (payment.HostedPage, error)
}

// Service handles order submission and payment events.
type Service struct {
	repo    OrderStore
	gateway PaymentGateway
	mailer  email.Sender
	jobs    scheduler.EnrichmentScheduler
	cfg     config.CheckoutConfig
	log     *logger.Logger
}

func New(repo OrderStore, gateway PaymentGateway, mailer email.Sender, jobs scheduler.EnrichmentScheduler, cfg config.CheckoutConfig, log *logger.Logger) *Service {
	return &Service{
		repo:    repo,
		gateway: gateway,
		mailer:  mailer,
		jobs:    jobs,
		cfg:     cfg,
		log:     log,
	}
}

// Submit validates and persists a completed form, then creates the hosted
// payment page. When payment is disabled the order is stored as manual and
// no page is created.
func (s *Service) Submit(ctx context.Context, sessionID string, req transport.SubmitOrderRequest) (*transport.SubmitOrderResponse, error) {
	national, err := phone.NormalizeNational(req.Phone)
	if err != nil {
		return nil, apperr.Validation("invalid phone number")
	}
	if !phone.IsValidSubscriber(national) {
		return nil, apperr.Validation("not a valid Norwegian subscriber number")
	}

	now := time.Now()
	order := &repository.Order{
		ID:        uuid.New(),
		SessionID: sessionID,

		FirstName: sanitize.Text(req.FirstName),
		LastName:  sanitize.Text(req.LastName),
		Email:     sanitize.Text(req.Email),
		Phone:     phone.ToE164(national),

		MunicipalityID:   req.MunicipalityID,
		MunicipalityName: sanitize.Text(req.MunicipalityName),
		Street:           sanitize.Text(req.Street),
		HouseNumber:      sanitize.Text(req.HouseNumber),
		PostalCode:       req.PostalCode,
		PostalArea:       sanitize.Text(req.PostalArea),

		PlanID:    s.cfg.GetCheckoutPlanID(),
		Status:    repository.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if !s.cfg.IsCheckoutEnabled() {
		order.Status = repository.StatusManual
	}

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, err
	}

	resp := &transport.SubmitOrderResponse{
		OrderID: order.ID.String(),
		Status:  order.Status,
	}
	if !s.cfg.IsCheckoutEnabled() {
		s.log.Info("order stored without payment", "order_id", resp.OrderID)
		return resp, nil
	}

	page, err := s.gateway.CreateCheckout(ctx, payment.CheckoutParams{
		PlanID:      order.PlanID,
		Email:       order.Email,
		FirstName:   order.FirstName,
		LastName:    order.LastName,
		Phone:       order.Phone,
		OrderID:     resp.OrderID,
		RedirectURL: s.cfg.GetAppBaseURL() + "/takk",
		CancelURL:   s.cfg.GetAppBaseURL() + "/avbrutt",
	})
	if err != nil {
		// The order is already stored; surface the gateway failure so the
		// client can retry payment without losing the lead.
		s.log.UpstreamError("payment", "create_checkout", err)
		return nil, apperr.Wrap(apperr.KindUnavailable, "payment page could not be created", err)
	}

	if err := s.repo.SetCheckoutPage(ctx, order.ID, page.ID, page.URL); err != nil {
		return nil, err
	}

	resp.CheckoutURL = page.URL
	return resp, nil
}

// GetOrder returns one order's public status.
func (s *Service) GetOrder(ctx context.Context, id string) (*transport.SubmitOrderResponse, error) {
	orderID, err := uuid.Parse(id)
	if err != nil {
		return nil, apperr.BadRequest("invalid order id")
	}

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	resp := &transport.SubmitOrderResponse{
		OrderID: order.ID.String(),
		Status:  order.Status,
	}
	if order.Status == repository.StatusPending && order.CheckoutURL != nil {
		resp.CheckoutURL = *order.CheckoutURL
	}
	return resp, nil
}

// HandlePaymentEvent applies one webhook event. Events for unknown pages
// and repeated deliveries are acknowledged without effect.
func (s *Service) HandlePaymentEvent(ctx context.Context, event transport.PaymentEvent) error {
	switch event.EventType {
	case transport.EventPaymentSucceeded, transport.EventPaymentFailed, transport.EventPaymentCancelled:
	default:
		return nil
	}

	pageID := event.Content.HostedPage.ID
	if pageID == "" {
		return apperr.BadRequest("event missing hosted page id")
	}

	order, err := s.repo.GetByCheckoutPageID(ctx, pageID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			s.log.Warn("payment event for unknown page", "page_id", pageID, "event", event.EventType)
			return nil
		}
		return err
	}

	if event.EventType != transport.EventPaymentSucceeded {
		changed, err := s.repo.MarkCancelled(ctx, order.ID)
		if err != nil {
			return err
		}
		if changed {
			s.log.Info("order cancelled", "order_id", order.ID.String(), "event", event.EventType)
		}
		return nil
	}

	changed, err := s.repo.MarkPaid(ctx, order.ID)
	if err != nil {
		return err
	}
	if !changed {
		// Retry of an already-processed event.
		return nil
	}

	s.log.Info("order paid", "order_id", order.ID.String())

	if err := s.mailer.SendOrderConfirmation(ctx, order.Email, email.OrderConfirmationData{
		FirstName:  order.FirstName,
		OrderID:    order.ID.String(),
		Street:     fmt.Sprintf("%s %s", order.Street, order.HouseNumber),
		PostalCode: order.PostalCode,
		PostalArea: order.PostalArea,
	}); err != nil {
		// Confirmation mail must not fail the webhook; the payment is done.
		s.log.UpstreamError("email", "order_confirmation", err)
	}

	national := order.Phone
	if len(national) > 3 && national[:3] == "+47" {
		national = national[3:]
	}
	if err := s.jobs.EnqueueOrderEnrichment(ctx, scheduler.OrderEnrichmentPayload{
		OrderID: order.ID.String(),
		Phone:   national,
	}); err != nil {
		s.log.Error("failed to enqueue order enrichment", "order_id", order.ID.String(), "error", err.Error())
	}

	return nil
}
