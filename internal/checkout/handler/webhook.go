package handler

import (
	"crypto/subtle"
	"net/http"

	"norskform_backend/internal/checkout/service"
	"norskform_backend/internal/checkout/transport"
	"norskform_backend/platform/config"
	"norskform_backend/platform/httpkit"
	"norskform_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// WebhookHandler receives payment provider events.
type WebhookHandler struct {
	svc *service.Service
	log *logger.Logger
}

func NewWebhookHandler(svc *service.Service, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{svc: svc, log: log}
}

// BasicAuth validates the provider's basic auth credentials. The password
// is compared against a bcrypt hash so the plaintext never lives in config.
func BasicAuth(cfg config.WebhookConfig, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		if !ok {
			abortWebhookAuth(c)
			return
		}

		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(cfg.GetWebhookUser())) == 1
		passErr := bcrypt.CompareHashAndPassword([]byte(cfg.GetWebhookPasswordHash()), []byte(pass))
		if !userMatch || passErr != nil {
			log.Warn("webhook auth rejected", "client_ip", c.ClientIP())
			abortWebhookAuth(c)
			return
		}

		c.Next()
	}
}

func abortWebhookAuth(c *gin.Context) {
	c.Header("WWW-Authenticate", `Basic realm="webhook"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// HandleEvent applies one payment event. The provider retries on non-2xx,
// so processing failures return 500 and everything else acknowledges.
func (h *WebhookHandler) HandleEvent(c *gin.Context) {
	var event transport.PaymentEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	if err := h.svc.HandlePaymentEvent(c.Request.Context(), event); err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, gin.H{"received": true})
}
