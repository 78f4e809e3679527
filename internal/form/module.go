package form

import (
	httpmod "norskform_backend/internal/http"
	"norskform_backend/platform/config"
)

// Module wires the form session routes into the HTTP server.
type Module struct {
	handler *Handler
}

func NewModule(manager *Manager, session config.SessionConfig) *Module {
	return &Module{handler: NewHandler(manager, session)}
}

func (m *Module) Name() string { return "form" }

func (m *Module) RegisterRoutes(ctx *httpmod.RouterContext) {
	// Session creation is public but rate limited per IP.
	ctx.V1.POST("/form/sessions", ctx.LookupRateLimiter.RateLimit(), m.handler.CreateSession)

	// Everything else requires a session token; lookups share the
	// stricter limiter since each query can fan out upstream.
	g := ctx.Session.Group("/form")
	g.Use(ctx.LookupRateLimiter.RateLimit())
	g.DELETE("/sessions", m.handler.DeleteSession)
	g.GET("", m.handler.GetState)
	g.POST("/fields/:field/query", m.handler.QueryField)
	g.GET("/fields/:field", m.handler.GetField)
	g.POST("/fields/:field/select", m.handler.SelectField)
}
