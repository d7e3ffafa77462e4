package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/telavo/telavo/internal/billing"
	"github.com/telavo/telavo/internal/service"
	"github.com/telavo/telavo/pkg/logger"
	"github.com/telavo/telavo/pkg/middleware"
)

func (h *HTTPHandler) CreateCheckoutSession(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	// The authenticated user always wins over whatever userId the body
	// carries.
	req.UserID = middleware.UserID(c)

	result, err := h.checkout.CreateSession(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type verifyRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

func (h *HTTPHandler) VerifyCheckout(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.checkout.Verify(c.Request.Context(), req.SessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *HTTPHandler) CheckoutWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if err := h.checkout.HandleWebhook(c.Request.Context(), payload, signature); err != nil {
		h.logger.Error("webhook handling failed", logger.Field{Key: "error", Value: err})
		// A 400 tells Stripe not to retry a signature failure; a 500
		// keeps retries coming for transient storage errors.
		if errors.Is(err, billing.ErrInvalidSignature) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *HTTPHandler) ActivationStatus(c *gin.Context) {
	sessionID := c.Param("session_id")
	userID := middleware.UserID(c)

	var (
		result *service.ActivationResult
		err    error
	)
	if c.Query("nowait") != "" {
		result, err = h.activation.CheckOnce(c.Request.Context(), sessionID, userID)
	} else {
		result, err = h.activation.WaitForActivation(c.Request.Context(), sessionID, userID)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
