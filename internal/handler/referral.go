package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type createReferralRequest struct {
	ReferrerID     uuid.UUID `json:"referrerId" binding:"required"`
	ReferredUserID uuid.UUID `json:"referredUserId" binding:"required"`
}

type userIDRequest struct {
	UserID uuid.UUID `json:"userId" binding:"required"`
}

type claimRequest struct {
	ReferrerID uuid.UUID `json:"referrerId" binding:"required"`
}

// CreateReferral records a confirmed referral signup.
func (h *Handler) CreateReferral(c *gin.Context) {
	var req createReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	payouts, err := h.referral.CreateReferral(c.Request.Context(), req.ReferrerID, req.ReferredUserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"payouts": payouts})
}

// CheckUnlocks re-evaluates unlock conditions for payouts depending on the
// given user's activity. Idempotent.
func (h *Handler) CheckUnlocks(c *gin.Context) {
	var req userIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	unlocked, err := h.referral.CheckUnlocks(c.Request.Context(), req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unlocked": unlocked})
}

// ClaimReferrals claims every unlocked payout for the referrer.
func (h *Handler) ClaimReferrals(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	summary, err := h.referral.ClaimAll(c.Request.Context(), req.ReferrerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
