package handlers

import (
	"context"
	"net/http"

	"github.com/BroadApps-official/App-056/internal/models"
	"github.com/gin-gonic/gin"
)

type SubscriptionGate interface {
	State() models.SubscriptionState
	Purchase(ctx context.Context, userID, planID string) (bool, error)
	Restore(ctx context.Context, userID string) (bool, error)
}

type SubscriptionHandler struct {
	gate SubscriptionGate
}

func NewSubscriptionHandler(gate SubscriptionGate) *SubscriptionHandler {
	return &SubscriptionHandler{gate: gate}
}

// GetSubscription godoc
// @Summary     Subscription state
// @Tags        subscription
// @Produce     json
// @Security    Bearer
// @Success     200 {object} models.SubscriptionState
// @Router      /subscription [get]
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}
	c.JSON(http.StatusOK, h.gate.State())
}

// Purchase godoc
// @Summary     Buy a plan
// @Tags        subscription
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request body models.PurchaseRequest true "Plan to buy"
// @Success     200 {object} models.PurchaseResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /subscription/purchase [post]
func (h *SubscriptionHandler) Purchase(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req models.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	success, err := h.gate.Purchase(c.Request.Context(), userID, req.PlanID)
	if err != nil {
		respondError(c, err, "purchase failed")
		return
	}
	c.JSON(http.StatusOK, models.PurchaseResponse{Success: success, Entitled: h.gate.State().Entitled})
}

// Restore godoc
// @Summary     Restore purchases
// @Tags        subscription
// @Produce     json
// @Security    Bearer
// @Success     200 {object} models.PurchaseResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /subscription/restore [post]
func (h *SubscriptionHandler) Restore(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	success, err := h.gate.Restore(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "restore failed")
		return
	}
	c.JSON(http.StatusOK, models.PurchaseResponse{Success: success, Entitled: h.gate.State().Entitled})
}
