package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"codform/internal/logger"
	"codform/internal/storefront/builder"
	"codform/internal/widget"
)

// WidgetHandler relays the storefront loader to its runtime session.
type WidgetHandler struct {
	store  *widget.Store
	logger *logger.Logger
}

func NewWidgetHandler(store *widget.Store, logger *logger.Logger) *WidgetHandler {
	return &WidgetHandler{
		store:  store,
		logger: logger,
	}
}

// Create starts a session for an uploaded product page
func (h *WidgetHandler) Create(c *gin.Context) {
	var req widget.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := h.store.Create(c.Request.Context(), req)
	if err != nil {
		h.logger.Warn("Failed to start widget session for %s: %v", req.Shop, err)
		status := http.StatusBadRequest
		if errors.Is(err, widget.ErrShopNotAllowed) {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": snap})
}

// Event applies one shopper interaction
func (h *WidgetHandler) Event(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var ev builder.UIEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := session.Handle(c.Request.Context(), ev)
	h.reply(c, snap, err)
}

// Submit places the order of a session
func (h *WidgetHandler) Submit(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	snap, err := session.Submit(c.Request.Context())
	h.reply(c, snap, err)
}

// Delete ends a session when the page unloads
func (h *WidgetHandler) Delete(c *gin.Context) {
	if !h.store.Delete(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session closed"})
}

func (h *WidgetHandler) session(c *gin.Context) (*widget.Session, bool) {
	session, err := h.store.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return nil, false
	}
	return session, true
}

// reply sends the snapshot even on failure; the widget already shows the
// matching popup.
func (h *WidgetHandler) reply(c *gin.Context, snap widget.Snapshot, err error) {
	status := http.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, builder.ErrValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, builder.ErrNotReady):
		status = http.StatusConflict
	case errors.Is(err, builder.ErrClosed):
		status = http.StatusGone
	case snap.Outcome == string(builder.OutcomeFailed):
		status = http.StatusBadGateway
	default:
		status = http.StatusBadRequest
	}

	body := gin.H{"data": snap}
	if err != nil {
		body["error"] = err.Error()
	}
	c.JSON(status, body)
}
