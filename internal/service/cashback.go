package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Serhat17/bonkback/internal/model"
	"github.com/Serhat17/bonkback/internal/release"
	"github.com/Serhat17/bonkback/internal/repository"
)

// Cashback-related errors.
var (
	ErrNoActiveOffer    = errors.New("no active offer for merchant")
	ErrInvalidPurchase  = errors.New("purchase amount must be positive")
	ErrOrderAlreadySeen = errors.New("order already tracked")
)

// CashbackService handles purchase intake and derived balance reads.
type CashbackService struct {
	offerRepo    *repository.OfferRepository
	txRepo       *repository.TransactionRepository
	policyRepo   *repository.PolicyRepository
	referralRepo *repository.ReferralRepository
	transferRepo *repository.TransferRepository
}

// NewCashbackService creates a new CashbackService instance.
func NewCashbackService(
	offerRepo *repository.OfferRepository,
	txRepo *repository.TransactionRepository,
	policyRepo *repository.PolicyRepository,
	referralRepo *repository.ReferralRepository,
	transferRepo *repository.TransferRepository,
) *CashbackService {
	return &CashbackService{
		offerRepo:    offerRepo,
		txRepo:       txRepo,
		policyRepo:   policyRepo,
		referralRepo: referralRepo,
		transferRepo: transferRepo,
	}
}

// ComputeCashback applies an offer's percentage and cap to a purchase amount.
func ComputeCashback(purchaseAmount int64, offer *model.Offer) int64 {
	cashback := purchaseAmount * int64(offer.CashbackPercent) / 100
	if offer.MaxCashback > 0 && cashback > offer.MaxCashback {
		cashback = offer.MaxCashback
	}
	return cashback
}

// TrackPurchase records a tracked purchase from the merchant integration,
// matching it to an active offer to compute the cashback amount and return
// window. Duplicate order ids are rejected so at-least-once delivery from the
// email parser cannot double-credit.
func (s *CashbackService) TrackPurchase(ctx context.Context, userID uuid.UUID, merchantName, orderID string, purchaseAmount int64, purchaseDate time.Time) (*model.CashbackTransaction, error) {
	if purchaseAmount <= 0 {
		return nil, ErrInvalidPurchase
	}

	offer, err := s.offerRepo.GetActiveByMerchant(ctx, merchantName)
	if err != nil {
		if errors.Is(err, repository.ErrOfferNotFound) {
			return nil, ErrNoActiveOffer
		}
		return nil, fmt.Errorf("failed to look up offer: %w", err)
	}

	tx := &model.CashbackTransaction{
		UserID:             userID,
		OrderID:            orderID,
		MerchantName:       offer.MerchantName,
		PurchaseAmount:     purchaseAmount,
		TotalCashback:      ComputeCashback(purchaseAmount, offer),
		PurchaseDate:       purchaseDate,
		ReturnWindowEndsAt: purchaseDate.AddDate(0, 0, offer.ReturnWindowDays),
	}

	created, err := s.txRepo.Create(ctx, tx)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateOrder) {
			return nil, ErrOrderAlreadySeen
		}
		return nil, fmt.Errorf("failed to record purchase: %w", err)
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("merchant", offer.MerchantName).
		Str("order_id", orderID).
		Int64("cashback", created.TotalCashback).
		Msg("Purchase tracked")

	return created, nil
}

// MarkReturned voids a transaction's cashback after a return.
func (s *CashbackService) MarkReturned(ctx context.Context, txID uuid.UUID) error {
	return s.txRepo.MarkReturned(ctx, txID)
}

// BalanceSummary aggregates the user's derived balance at the current time.
// Nothing here is cached; every read recomputes release views against the
// policy in force right now.
func (s *CashbackService) BalanceSummary(ctx context.Context, userID uuid.UUID) (*model.BalanceSummary, error) {
	policy, err := s.policyRepo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}

	txs, err := s.txRepo.GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	now := time.Now()
	var summary model.BalanceSummary
	for _, tx := range txs {
		v := release.Compute(tx, policy, now)
		summary.NormalCashback += v.AvailableAmount
		summary.Locked += v.LockedAmount
	}

	unlocked, err := s.referralRepo.SumUnlockedByReferrer(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum unlocked referrals: %w", err)
	}
	lockedReferrals, err := s.referralRepo.SumLockedByReferrer(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum locked referrals: %w", err)
	}
	credits, err := s.referralRepo.CreditBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load referral credits: %w", err)
	}
	consumed, err := s.transferRepo.SumConsumed(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum transfers: %w", err)
	}
	pending, err := s.transferRepo.SumPending(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum pending transfers: %w", err)
	}

	summary.ReferralRewards = unlocked + credits
	summary.Locked += lockedReferrals
	summary.PendingTransfer = pending
	summary.PaidOut = consumed - pending
	summary.Available = summary.NormalCashback + summary.ReferralRewards - consumed
	if summary.Available < 0 {
		summary.Available = 0
	}
	return &summary, nil
}

// ListTransactions retrieves the user's tracked purchases.
func (s *CashbackService) ListTransactions(ctx context.Context, userID uuid.UUID) ([]*model.CashbackTransaction, error) {
	return s.txRepo.GetByUser(ctx, userID)
}
