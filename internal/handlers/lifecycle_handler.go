package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/telavo/telavo/internal/service"
	"github.com/telavo/telavo/pkg/middleware"
)

type releaseBody struct {
	Confirmed bool `json:"confirmed"`
}

func (h *HTTPHandler) ReleaseSlot(c *gin.Context) {
	var body releaseBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	req := &service.ReleaseRequest{SlotID: c.Param("id"), Confirmed: body.Confirmed}
	if err := h.lifecycle.Release(c.Request.Context(), middleware.UserID(c), req); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"released": true})
}

type upgradeBody struct {
	PlanName     string `json:"plan_name" binding:"required"`
	MonthlyLimit int    `json:"monthly_limit" binding:"required"`
	Amount       int64  `json:"amount"`
}

func (h *HTTPHandler) UpgradeSlot(c *gin.Context) {
	var body upgradeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	req := &service.UpgradeRequest{
		SlotID:       c.Param("id"),
		PlanName:     body.PlanName,
		MonthlyLimit: body.MonthlyLimit,
		Amount:       body.Amount,
	}
	sub, err := h.lifecycle.Upgrade(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}
