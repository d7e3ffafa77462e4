package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/telavo/telavo/internal/models"
	"github.com/telavo/telavo/internal/service"
	"github.com/telavo/telavo/pkg/middleware"
)

func (h *HTTPHandler) ListMessages(c *gin.Context) {
	filter := service.InboxFilter{
		Number:   c.Query("number"),
		Category: c.Query("category"),
	}

	view, err := h.inbox.ListMessages(c.Request.Context(), middleware.UserID(c), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// UnreadCount serves the inbox badge without triggering the mark-read
// side effect of the full listing.
func (h *HTTPHandler) UnreadCount(c *gin.Context) {
	count, err := h.inbox.UnreadCount(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

func (h *HTTPHandler) SendMessage(c *gin.Context) {
	var req models.SendSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	entry, err := h.inbox.SendMessage(c.Request.Context(), middleware.UserID(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

func (h *HTTPHandler) IngestSMS(c *gin.Context) {
	var req service.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	entry, err := h.inbox.Ingest(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

func (h *HTTPHandler) UsageForecast(c *gin.Context) {
	forecast, err := h.usage.Forecast(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, forecast)
}
