package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type trackPurchaseRequest struct {
	UserID         uuid.UUID `json:"userId" binding:"required"`
	MerchantName   string    `json:"merchantName" binding:"required"`
	OrderID        string    `json:"orderId" binding:"required"`
	PurchaseAmount int64     `json:"purchaseAmount" binding:"required"`
	PurchaseDate   time.Time `json:"purchaseDate" binding:"required"`
}

// TrackPurchase records a purchase from the merchant integration and creates
// its cashback transaction. Referral unlock conditions that depend on the
// buyer's accrual are re-evaluated afterwards.
func (h *Handler) TrackPurchase(c *gin.Context) {
	var req trackPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	tx, err := h.cashback.TrackPurchase(c.Request.Context(), req.UserID, req.MerchantName, req.OrderID, req.PurchaseAmount, req.PurchaseDate)
	if err != nil {
		writeError(c, err)
		return
	}

	// Unlock evaluation is idempotent; a failure here must not undo intake.
	if _, err := h.referral.CheckUnlocks(c.Request.Context(), req.UserID); err != nil {
		log.Error().Err(err).Str("user_id", req.UserID.String()).Msg("Referral unlock check failed after intake")
	}

	c.JSON(http.StatusCreated, tx)
}

// MarkReturned voids a transaction's cashback after a return (admin/returns
// process only).
func (h *Handler) MarkReturned(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.cashback.MarkReturned(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "returned"})
}

// GetBalance returns the user's derived balance breakdown.
func (h *Handler) GetBalance(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	summary, err := h.cashback.BalanceSummary(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
