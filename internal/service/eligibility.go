package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Serhat17/bonkback/internal/release"
	"github.com/Serhat17/bonkback/internal/repository"
)

// Eligibility reason codes. These are part of the API contract: callers
// render an actionable message from the code, never from a generic failure.
const (
	ReasonAmountInvalid              = "amount_invalid"
	ReasonInsufficientBalance        = "insufficient_balance"
	ReasonInsufficientNormalCashback = "insufficient_normal_cashback"
	ReasonCheckFailed                = "check_failed"
)

// EligibilityResult is the verdict for a requested payout amount.
type EligibilityResult struct {
	Eligible        bool   `json:"eligible"`
	Reason          string `json:"reason,omitempty"`
	AvailableAmount int64  `json:"availableAmount"`
	BalanceTotal    int64  `json:"balanceTotal"`
	LockedTotal     int64  `json:"lockedTotal"`
	NormalCashback  int64  `json:"normalCashback"`
}

// BalanceInputs are the aggregated balance sources feeding a verdict.
type BalanceInputs struct {
	CashbackReleased       int64 // released, non-returned cashback
	ReferralAvailable      int64 // unlocked payouts plus claimed credits
	Consumed               int64 // pending + completed transfer amounts
	MinPayout              int64 // smallest payable amount, 0 disables the floor
	RequiredNormalCashback int64 // anti-abuse floor for referral-heavy payouts
}

// Decide is the pure eligibility decision. A payout that cannot be covered by
// released normal cashback alone requires the user to have earned at least
// the configured floor of normal cashback; this keeps referral farming from
// draining rewards through accounts that never shop.
func Decide(requested int64, in BalanceInputs) (bool, string) {
	if requested <= 0 || requested < in.MinPayout {
		return false, ReasonAmountInvalid
	}

	available := in.CashbackReleased + in.ReferralAvailable - in.Consumed
	if requested > available {
		return false, ReasonInsufficientBalance
	}

	normalAvailable := in.CashbackReleased - in.Consumed
	if normalAvailable < 0 {
		normalAvailable = 0
	}
	if requested > normalAvailable && in.CashbackReleased < in.RequiredNormalCashback {
		return false, ReasonInsufficientNormalCashback
	}

	return true, ""
}

// EligibilityService aggregates balance sources into a payout verdict.
type EligibilityService struct {
	txRepo                 *repository.TransactionRepository
	policyRepo             *repository.PolicyRepository
	referralRepo           *repository.ReferralRepository
	transferRepo           *repository.TransferRepository
	minPayout              int64
	requiredNormalCashback int64
}

// NewEligibilityService creates a new EligibilityService instance.
func NewEligibilityService(
	txRepo *repository.TransactionRepository,
	policyRepo *repository.PolicyRepository,
	referralRepo *repository.ReferralRepository,
	transferRepo *repository.TransferRepository,
	minPayout, requiredNormalCashback int64,
) *EligibilityService {
	return &EligibilityService{
		txRepo:                 txRepo,
		policyRepo:             policyRepo,
		referralRepo:           referralRepo,
		transferRepo:           transferRepo,
		minPayout:              minPayout,
		requiredNormalCashback: requiredNormalCashback,
	}
}

// Evaluate returns the eligibility verdict for a requested payout amount.
// It fails closed: any internal error yields an ineligible verdict with
// reason check_failed instead of propagating the error to the caller.
func (s *EligibilityService) Evaluate(ctx context.Context, userID uuid.UUID, requestedAmount int64) EligibilityResult {
	result, err := s.evaluate(ctx, userID, requestedAmount)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("Eligibility check failed")
		return EligibilityResult{Eligible: false, Reason: ReasonCheckFailed}
	}
	return result
}

func (s *EligibilityService) evaluate(ctx context.Context, userID uuid.UUID, requestedAmount int64) (EligibilityResult, error) {
	policy, err := s.policyRepo.Get(ctx)
	if err != nil {
		return EligibilityResult{}, fmt.Errorf("failed to load policy: %w", err)
	}

	txs, err := s.txRepo.GetByUser(ctx, userID)
	if err != nil {
		return EligibilityResult{}, fmt.Errorf("failed to load transactions: %w", err)
	}

	now := time.Now()
	var cashbackReleased, lockedTotal int64
	for _, tx := range txs {
		v := release.Compute(tx, policy, now)
		cashbackReleased += v.AvailableAmount
		lockedTotal += v.LockedAmount
	}

	unlocked, err := s.referralRepo.SumUnlockedByReferrer(ctx, userID)
	if err != nil {
		return EligibilityResult{}, fmt.Errorf("failed to sum unlocked referrals: %w", err)
	}
	credits, err := s.referralRepo.CreditBalance(ctx, userID)
	if err != nil {
		return EligibilityResult{}, fmt.Errorf("failed to load referral credits: %w", err)
	}
	consumed, err := s.transferRepo.SumConsumed(ctx, userID)
	if err != nil {
		return EligibilityResult{}, fmt.Errorf("failed to sum transfers: %w", err)
	}

	inputs := BalanceInputs{
		CashbackReleased:       cashbackReleased,
		ReferralAvailable:      unlocked + credits,
		Consumed:               consumed,
		MinPayout:              s.minPayout,
		RequiredNormalCashback: s.requiredNormalCashback,
	}

	eligible, reason := Decide(requestedAmount, inputs)

	available := inputs.CashbackReleased + inputs.ReferralAvailable - inputs.Consumed
	if available < 0 {
		available = 0
	}

	return EligibilityResult{
		Eligible:        eligible,
		Reason:          reason,
		AvailableAmount: available,
		BalanceTotal:    available + lockedTotal,
		LockedTotal:     lockedTotal,
		NormalCashback:  cashbackReleased,
	}, nil
}
