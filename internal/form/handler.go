package form

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"norskform_backend/platform/apperr"
	"norskform_backend/platform/config"
	"norskform_backend/platform/httpkit"
)

// Handler exposes the form session lifecycle and per-field lookup routes.
type Handler struct {
	manager *Manager
	session config.SessionConfig
}

func NewHandler(manager *Manager, session config.SessionConfig) *Handler {
	return &Handler{manager: manager, session: session}
}

type createSessionResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"`
}

// CreateSession starts a form session and returns its bearer token.
func (h *Handler) CreateSession(c *gin.Context) {
	s := h.manager.Create()

	token, err := httpkit.IssueSessionToken(h.session, s.ID)
	if err != nil {
		h.manager.Remove(s.ID)
		httpkit.HandleError(c, apperr.Wrap(apperr.KindInternal, "could not issue session token", err))
		return
	}

	httpkit.Created(c, createSessionResponse{
		Token:     token,
		ExpiresIn: int64(h.session.GetSessionTTL().Seconds()),
	})
}

// DeleteSession tears the caller's session down.
func (h *Handler) DeleteSession(c *gin.Context) {
	id, ok := httpkit.SessionID(c)
	if !ok {
		httpkit.HandleError(c, apperr.Unauthorized("missing session"))
		return
	}

	h.manager.Remove(id)
	c.Status(http.StatusNoContent)
}

type queryRequest struct {
	Text string `json:"text"`
}

// QueryField feeds raw input into one field and returns the immediate state.
// The client polls GetField to observe the debounced resolution.
func (h *Handler) QueryField(c *gin.Context) {
	s, ok := h.sessionFor(c)
	if !ok {
		return
	}

	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	field := c.Param("field")
	if err := s.QueryChange(field, req.Text); err != nil {
		httpkit.HandleError(c, err)
		return
	}

	state, err := s.FieldState(field)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, state)
}

// GetField returns one field's current lookup state.
func (h *Handler) GetField(c *gin.Context) {
	s, ok := h.sessionFor(c)
	if !ok {
		return
	}

	state, err := s.FieldState(c.Param("field"))
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, state)
}

type selectRequest struct {
	// ID identifies the chosen record: municipality/street ID, or the
	// full label for house numbers.
	ID string `json:"id" binding:"required"`
}

// SelectField commits one of the presented options and returns the updated
// selection after any cascade.
func (h *Handler) SelectField(c *gin.Context) {
	s, ok := h.sessionFor(c)
	if !ok {
		return
	}

	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	var (
		selection Selection
		err       error
	)
	switch c.Param("field") {
	case FieldMunicipality:
		selection, err = s.SelectMunicipality(req.ID)
	case FieldStreet:
		selection, err = s.SelectStreet(req.ID)
	case FieldHouseNumber:
		selection, err = s.SelectHouseNumber(req.ID)
	default:
		err = apperr.BadRequest("field is not selectable")
	}
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, selection)
}

// GetState returns the whole form snapshot.
func (h *Handler) GetState(c *gin.Context) {
	s, ok := h.sessionFor(c)
	if !ok {
		return
	}
	httpkit.OK(c, s.State())
}

func (h *Handler) sessionFor(c *gin.Context) (*Session, bool) {
	id, ok := httpkit.SessionID(c)
	if !ok {
		httpkit.HandleError(c, apperr.Unauthorized("missing session"))
		return nil, false
	}

	s, ok := h.manager.Get(id)
	if !ok {
		httpkit.HandleError(c, apperr.Gone("session expired"))
		return nil, false
	}
	return s, true
}
