// Package handler handles HTTP requests for checkout orders.
package handler

import (
	"net/http"

	"norskform_backend/internal/checkout/service"
	"norskform_backend/internal/checkout/transport"
	"norskform_backend/platform/apperr"
	"norskform_backend/platform/httpkit"
	"norskform_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles order submission and status requests.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// SubmitOrder accepts a completed form and returns the payment page URL.
func (h *Handler) SubmitOrder(c *gin.Context) {
	sessionID, ok := httpkit.SessionID(c)
	if !ok {
		httpkit.HandleError(c, apperr.Unauthorized("missing session"))
		return
	}

	var req transport.SubmitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	resp, err := h.svc.Submit(c.Request.Context(), sessionID, req)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.Created(c, resp)
}

// GetOrder returns one order's status for the post-payment page.
func (h *Handler) GetOrder(c *gin.Context) {
	resp, err := h.svc.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, resp)
}
