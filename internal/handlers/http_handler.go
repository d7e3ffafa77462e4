package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telavo/telavo/internal/service"
	"github.com/telavo/telavo/pkg/logger"
	"github.com/telavo/telavo/pkg/middleware"
)

type HTTPHandler struct {
	auth       *service.AuthService
	checkout   *service.CheckoutService
	activation *service.ActivationService
	inbox      *service.InboxService
	lifecycle  *service.LifecycleService
	devices    *service.DeviceService
	usage      *service.UsageService
	authMW     *middleware.AuthMiddleware
	rateLimit  gin.HandlerFunc
	logger     logger.Logger
}

func NewHTTPHandler(
	auth *service.AuthService,
	checkout *service.CheckoutService,
	activation *service.ActivationService,
	inbox *service.InboxService,
	lifecycle *service.LifecycleService,
	devices *service.DeviceService,
	usage *service.UsageService,
	authMW *middleware.AuthMiddleware,
	rateLimit gin.HandlerFunc,
	log logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		auth:       auth,
		checkout:   checkout,
		activation: activation,
		inbox:      inbox,
		lifecycle:  lifecycle,
		devices:    devices,
		usage:      usage,
		authMW:     authMW,
		rateLimit:  rateLimit,
		logger:     log,
	}
}

func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	if h.rateLimit != nil {
		api.Use(h.rateLimit)
	}

	auth := api.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
	}

	// Stripe calls the webhook; the carrier pipeline calls ingest.
	// Neither carries a user token.
	api.POST("/checkout/webhook", h.CheckoutWebhook)
	api.POST("/sms/ingest", h.IngestSMS)

	protected := api.Group("")
	protected.Use(h.authMW.Authenticate())
	{
		protected.GET("/profile", h.Profile)
		protected.PUT("/profile/forwarding", h.UpdateForwarding)

		protected.POST("/checkout/session", h.CreateCheckoutSession)
		protected.POST("/checkout/verify", h.VerifyCheckout)
		protected.GET("/activation/:session_id", h.ActivationStatus)

		protected.GET("/messages", h.ListMessages)
		protected.GET("/messages/unread", h.UnreadCount)
		protected.POST("/messages/send", h.SendMessage)

		protected.POST("/slots/:id/release", h.ReleaseSlot)
		protected.POST("/slots/:id/upgrade", h.UpgradeSlot)

		protected.GET("/devices", h.ListDevices)
		protected.POST("/devices/touch", h.TouchDevice)
		protected.DELETE("/devices/:id", h.CloseDevice)
		protected.POST("/devices/close-others", h.CloseOtherDevices)

		protected.GET("/usage/forecast", h.UsageForecast)
	}
}

func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError maps service errors to HTTP statuses; anything
// unrecognized is a 500 with a generic body.
func (h *HTTPHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrConfirmationRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotSlotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrSlotNotFound),
		errors.Is(err, service.ErrNoActiveSubscription):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInsufficientCredits):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUpstreamPayment):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.logger.Error("unhandled request error", logger.Field{Key: "error", Value: err})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
