// Package handler implements the REST API surface with gin.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Serhat17/bonkback/internal/config"
	"github.com/Serhat17/bonkback/internal/middleware"
	"github.com/Serhat17/bonkback/internal/pkg/db"
	"github.com/Serhat17/bonkback/internal/pkg/ratelimit"
	"github.com/Serhat17/bonkback/internal/repository"
	"github.com/Serhat17/bonkback/internal/service"
)

// Handler bundles the services behind the REST endpoints.
type Handler struct {
	cfg         *config.Config
	pool        *db.Pool
	policy      *service.PolicyService
	cashback    *service.CashbackService
	eligibility *service.EligibilityService
	referral    *service.ReferralService
	payout      *service.PayoutService
}

// New creates a Handler.
func New(
	cfg *config.Config,
	pool *db.Pool,
	policy *service.PolicyService,
	cashback *service.CashbackService,
	eligibility *service.EligibilityService,
	referral *service.ReferralService,
	payout *service.PayoutService,
) *Handler {
	return &Handler{
		cfg:         cfg,
		pool:        pool,
		policy:      policy,
		cashback:    cashback,
		eligibility: eligibility,
		referral:    referral,
		payout:      payout,
	}
}

// Router builds the gin engine with all routes and middleware registered.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(h.cfg.Server.AllowedOrigins))

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		api.GET("/policy", h.GetPolicy)
		api.PUT("/policy", middleware.AdminKey(h.cfg.Server.AdminAPIKey), h.UpdatePolicy)

		api.POST("/cashback/track", h.TrackPurchase)
		api.POST("/cashback/:id/return", middleware.AdminKey(h.cfg.Server.AdminAPIKey), h.MarkReturned)

		api.GET("/users/:id/balance", h.GetBalance)
		api.GET("/users/:id/transfers", h.ListTransfers)

		api.POST("/payouts", h.CreatePayout)
		api.POST("/payouts/:id/retry", h.RetryPayout)

		api.POST("/referrals", h.CreateReferral)
		api.POST("/referrals/unlock-check", h.CheckUnlocks)
		api.POST("/referrals/claim", h.ClaimReferrals)
	}

	return r
}

// parseID extracts a UUID path parameter, writing a 400 response on failure.
func parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps service errors onto HTTP responses with stable reason codes.
func writeError(c *gin.Context, err error) {
	var rlErr *ratelimit.Error
	if errors.As(err, &rlErr) {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":     "rate_limited",
			"resetTime": rlErr.ResetTime,
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrInvalidPercent),
		errors.Is(err, service.ErrInvalidDelay),
		errors.Is(err, service.ErrInvalidPurchase),
		errors.Is(err, service.ErrWalletInvalid),
		errors.Is(err, service.ErrSelfReferral):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrOrderAlreadySeen),
		errors.Is(err, service.ErrReferralExists),
		errors.Is(err, service.ErrTransferInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNoActiveOffer),
		errors.Is(err, repository.ErrTxNotFound),
		errors.Is(err, repository.ErrTransferNotFound),
		errors.Is(err, repository.ErrPolicyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrEligibilityChanged):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "eligibility_changed", "detail": err.Error()})
	case errors.Is(err, repository.ErrTransferNotRetryable):
		c.JSON(http.StatusConflict, gin.H{"error": "transfer_not_retryable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
