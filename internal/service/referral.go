package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Serhat17/bonkback/internal/model"
	"github.com/Serhat17/bonkback/internal/monitoring"
	"github.com/Serhat17/bonkback/internal/pkg/ratelimit"
	"github.com/Serhat17/bonkback/internal/repository"
)

// Referral-related errors.
var (
	ErrSelfReferral   = errors.New("cannot refer yourself")
	ErrReferralExists = errors.New("referral already exists for this pair")
)

// ClaimSummary is the outcome of a batch claim.
type ClaimSummary struct {
	Processed     int   `json:"processed"`
	TotalCredited int64 `json:"totalCredited"`
}

// ReferralService drives the referral payout lifecycle:
// locked -> unlocked -> claimed.
type ReferralService struct {
	referralRepo      *repository.ReferralRepository
	txRepo            *repository.TransactionRepository
	limiter           *ratelimit.Limiter
	referrerReward    int64
	referredReward    int64
	requiredThreshold int64
	claimMax          int
	claimWindow       time.Duration
}

// NewReferralService creates a new ReferralService instance.
func NewReferralService(
	referralRepo *repository.ReferralRepository,
	txRepo *repository.TransactionRepository,
	limiter *ratelimit.Limiter,
	referrerReward, referredReward, requiredThreshold int64,
	claimMax int,
	claimWindow time.Duration,
) *ReferralService {
	return &ReferralService{
		referralRepo:      referralRepo,
		txRepo:            txRepo,
		limiter:           limiter,
		referrerReward:    referrerReward,
		referredReward:    referredReward,
		requiredThreshold: requiredThreshold,
		claimMax:          claimMax,
		claimWindow:       claimWindow,
	}
}

// CreateReferral records a confirmed referral signup, creating a locked
// payout for each direction: the referrer's reward and the referred user's
// welcome reward. Both unlock on the referred user's qualifying activity.
// Self-referral is rejected before any row is written.
func (s *ReferralService) CreateReferral(ctx context.Context, referrerID, referredUserID uuid.UUID) ([]*model.ReferralPayout, error) {
	if referrerID == referredUserID {
		return nil, ErrSelfReferral
	}

	exists, err := s.referralRepo.ExistsPair(ctx, referrerID, referredUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing referral: %w", err)
	}
	if exists {
		return nil, ErrReferralExists
	}

	referrerPayout, err := s.referralRepo.Create(ctx, referrerID, referredUserID, s.referrerReward, s.requiredThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to create referrer payout: %w", err)
	}

	welcomePayout, err := s.referralRepo.Create(ctx, referredUserID, referredUserID, s.referredReward, s.requiredThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to create welcome payout: %w", err)
	}

	log.Info().
		Str("referrer_id", referrerID.String()).
		Str("referred_user_id", referredUserID.String()).
		Msg("Referral created")

	return []*model.ReferralPayout{referrerPayout, welcomePayout}, nil
}

// QualifyingCashback is the referred user's metric that unlocks payouts:
// cumulative cashback accrued on non-returned purchases.
func (s *ReferralService) QualifyingCashback(ctx context.Context, referredUserID uuid.UUID) (int64, error) {
	txs, err := s.txRepo.GetByUser(ctx, referredUserID)
	if err != nil {
		return 0, fmt.Errorf("failed to load transactions: %w", err)
	}

	var total int64
	for _, tx := range txs {
		if !tx.IsReturned {
			total += tx.TotalCashback
		}
	}
	return total, nil
}

// CheckUnlocks evaluates every locked payout that depends on the given
// referred user's activity and unlocks those whose threshold is met. The
// evaluation is idempotent: the repository's status guard makes re-checking
// an already-unlocked payout a no-op, so this is safe to call on every
// purchase intake. Returns the number of payouts newly unlocked.
func (s *ReferralService) CheckUnlocks(ctx context.Context, referredUserID uuid.UUID) (int, error) {
	lockedPayouts, err := s.referralRepo.ListLockedByReferredUser(ctx, referredUserID)
	if err != nil {
		return 0, fmt.Errorf("failed to list locked payouts: %w", err)
	}
	if len(lockedPayouts) == 0 {
		return 0, nil
	}

	metric, err := s.QualifyingCashback(ctx, referredUserID)
	if err != nil {
		return 0, err
	}

	unlocked := 0
	for _, p := range lockedPayouts {
		if metric < p.RequiredThreshold {
			continue
		}
		ok, err := s.referralRepo.Unlock(ctx, p.ID)
		if err != nil {
			return unlocked, fmt.Errorf("failed to unlock payout %s: %w", p.ID, err)
		}
		if ok {
			unlocked++
			log.Info().
				Str("payout_id", p.ID.String()).
				Str("referrer_id", p.ReferrerID.String()).
				Int64("amount", p.Amount).
				Msg("Referral payout unlocked")
		}
	}

	return unlocked, nil
}

// ClaimAll claims every unlocked payout for a referrer. Each payout's claim
// is its own atomic unit: the status transition and the balance credit commit
// together, and a failure on one payout does not roll back the others. A
// repeat call finds nothing unlocked and reports zero processed, which keeps
// at-least-once retry from the caller harmless.
func (s *ReferralService) ClaimAll(ctx context.Context, referrerID uuid.UUID) (ClaimSummary, error) {
	if err := s.limiter.Check(ratelimit.OpClaim, referrerID.String(), s.claimMax, s.claimWindow); err != nil {
		return ClaimSummary{}, err
	}

	payouts, err := s.referralRepo.ListByReferrer(ctx, referrerID)
	if err != nil {
		return ClaimSummary{}, fmt.Errorf("failed to list payouts: %w", err)
	}

	var summary ClaimSummary
	var lastErr error
	for _, p := range payouts {
		if p.Status != model.ReferralStatusUnlocked {
			continue
		}
		credited, err := s.referralRepo.Claim(ctx, p.ID, referrerID)
		if err != nil {
			log.Error().Err(err).Str("payout_id", p.ID.String()).Msg("Claim failed")
			lastErr = err
			continue
		}
		if credited > 0 {
			summary.Processed++
			summary.TotalCredited += credited
			monitoring.ReferralClaimsTotal.Inc()
		}
	}

	if summary.Processed == 0 && lastErr != nil {
		return summary, lastErr
	}
	return summary, nil
}

// ListByReferrer retrieves all payouts where the user is the referrer.
func (s *ReferralService) ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]*model.ReferralPayout, error) {
	return s.referralRepo.ListByReferrer(ctx, referrerID)
}
