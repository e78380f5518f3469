package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Serhat17/bonkback/internal/model"
	"github.com/Serhat17/bonkback/internal/service"
)

type createPayoutRequest struct {
	UserID        uuid.UUID `json:"userId" binding:"required"`
	Amount        int64     `json:"amount" binding:"required"`
	WalletAddress string    `json:"walletAddress" binding:"required"`
	SourceType    string    `json:"sourceType"`
}

type payoutResponse struct {
	TransferID uuid.UUID           `json:"transferId"`
	Status     string              `json:"status"`
	Transfer   *model.BonkTransfer `json:"transfer"`
}

// CreatePayout evaluates eligibility and executes a BONK payout. The verdict
// is returned with its reason code when ineligible; a failed external send
// still returns the persisted transfer so the caller can retry it.
func (h *Handler) CreatePayout(c *gin.Context) {
	var req createPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result := h.eligibility.Evaluate(c.Request.Context(), req.UserID, req.Amount)
	if !result.Eligible {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}

	transfer, err := h.payout.ExecuteTransfer(c.Request.Context(), req.UserID, req.Amount, req.WalletAddress, req.SourceType)
	if err != nil {
		if errors.Is(err, service.ErrTransferFailed) {
			c.JSON(http.StatusBadGateway, payoutResponse{
				TransferID: transfer.ID,
				Status:     transfer.Status,
				Transfer:   transfer,
			})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, payoutResponse{
		TransferID: transfer.ID,
		Status:     transfer.Status,
		Transfer:   transfer,
	})
}

// RetryPayout retries a failed transfer, reusing its identity.
func (h *Handler) RetryPayout(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	transfer, err := h.payout.RetryTransfer(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrTransferFailed) {
			c.JSON(http.StatusBadGateway, payoutResponse{
				TransferID: transfer.ID,
				Status:     transfer.Status,
				Transfer:   transfer,
			})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, payoutResponse{
		TransferID: transfer.ID,
		Status:     transfer.Status,
		Transfer:   transfer,
	})
}

// ListTransfers returns all transfers for a user, newest first.
func (h *Handler) ListTransfers(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	transfers, err := h.payout.ListTransfers(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transfers": transfers,
		"limit":     h.payout.PayoutLimit(id),
	})
}
