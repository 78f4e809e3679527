// Package checkout provides the order submission and payment domain module.
package checkout

import (
	"norskform_backend/internal/checkout/handler"
	"norskform_backend/internal/checkout/payment"
	"norskform_backend/internal/checkout/repository"
	"norskform_backend/internal/checkout/service"
	"norskform_backend/internal/email"
	apphttp "norskform_backend/internal/http"
	"norskform_backend/internal/scheduler"
	"norskform_backend/platform/config"
	"norskform_backend/platform/logger"
	"norskform_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ModuleConfig bundles the config interfaces the module needs.
type ModuleConfig interface {
	config.CheckoutConfig
	config.WebhookConfig
}

// Module represents the checkout domain module.
type Module struct {
	handler        *handler.Handler
	webhookHandler *handler.WebhookHandler
	cfg            ModuleConfig
	log            *logger.Logger
}

// NewModule creates the checkout module with all dependencies wired.
func NewModule(pool *pgxpool.Pool, mailer email.Sender, jobs scheduler.EnrichmentScheduler, val *validator.Validator, cfg ModuleConfig, log *logger.Logger) *Module {
	repo := repository.New(pool)
	gateway := payment.New(cfg.GetCheckoutBaseURL(), cfg.GetCheckoutAPIKey(), log)
	svc := service.New(repo, gateway, mailer, jobs, cfg, log)

	return &Module{
		handler:        handler.New(svc, val),
		webhookHandler: handler.NewWebhookHandler(svc, log),
		cfg:            cfg,
		log:            log,
	}
}

func (m *Module) Name() string { return "checkout" }

// RegisterRoutes registers the module's routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	orders := ctx.Session.Group("/checkout")
	orders.POST("/orders", m.handler.SubmitOrder)
	orders.GET("/orders/:id", m.handler.GetOrder)

	// Provider webhook: basic auth, no session.
	webhook := ctx.V1.Group("/webhook")
	webhook.Use(handler.BasicAuth(m.cfg, m.log))
	webhook.POST("/payment", m.webhookHandler.HandleEvent)
}

var _ apphttp.Module = (*Module)(nil)
