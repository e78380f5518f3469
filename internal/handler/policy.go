package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type updatePolicyRequest struct {
	ImmediateReleasePercent  *int `json:"immediateReleasePercent" binding:"required"`
	DeferredReleaseDelayDays *int `json:"deferredReleaseDelayDays" binding:"required"`
}

// GetPolicy returns the active release policy.
func (h *Handler) GetPolicy(c *gin.Context) {
	policy, err := h.policy.Get(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, policy)
}

// UpdatePolicy applies a new release policy (admin only).
func (h *Handler) UpdatePolicy(c *gin.Context) {
	var req updatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	policy, err := h.policy.Update(c.Request.Context(), *req.ImmediateReleasePercent, *req.DeferredReleaseDelayDays)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, policy)
}

// Health reports service and database health.
func (h *Handler) Health(c *gin.Context) {
	if err := h.pool.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "down"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
