package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/telavo/telavo/internal/models"
	"github.com/telavo/telavo/pkg/middleware"
)

func (h *HTTPHandler) ListDevices(c *gin.Context) {
	sessions, err := h.devices.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": sessions})
}

func (h *HTTPHandler) TouchDevice(c *gin.Context) {
	var req models.TouchDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	session, err := h.devices.Touch(c.Request.Context(), middleware.UserID(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *HTTPHandler) CloseDevice(c *gin.Context) {
	if err := h.devices.Close(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

type closeOthersBody struct {
	KeepSessionID string `json:"keep_session_id" binding:"required"`
}

func (h *HTTPHandler) CloseOtherDevices(c *gin.Context) {
	var body closeOthersBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	closed, err := h.devices.CloseOthers(c.Request.Context(), middleware.UserID(c), body.KeepSessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"closed": closed})
}
