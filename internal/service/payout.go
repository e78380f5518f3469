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
	"github.com/Serhat17/bonkback/internal/pkg/lock"
	"github.com/Serhat17/bonkback/internal/pkg/ratelimit"
	"github.com/Serhat17/bonkback/internal/repository"
	"github.com/Serhat17/bonkback/internal/solana"
)

// Payout-related errors.
var (
	ErrEligibilityChanged = errors.New("eligibility changed before execution")
	ErrTransferFailed     = errors.New("token transfer failed")
	ErrTransferInFlight   = errors.New("transfer is still pending")
	ErrWalletInvalid      = errors.New("invalid wallet address")
)

// TokenSender issues an external token transfer. The dedup key is derived
// from the transfer id so duplicate sends of the same payout are detectable
// downstream and cannot double-credit.
type TokenSender interface {
	Send(ctx context.Context, walletAddress string, amount int64, dedupKey string) (string, error)
}

// PayoutService orchestrates BONK payouts: re-validate eligibility, reserve
// the amount as a pending transfer, issue the external send without holding
// any lock, then confirm or fail the row. Retries are explicit and reuse the
// original transfer identity.
type PayoutService struct {
	eligibility  *EligibilityService
	transferRepo *repository.TransferRepository
	sender       TokenSender
	locks        *lock.UserLock
	limiter      *ratelimit.Limiter
	maxPayouts   int
	payoutWindow time.Duration
}

// NewPayoutService creates a new PayoutService instance.
func NewPayoutService(
	eligibility *EligibilityService,
	transferRepo *repository.TransferRepository,
	sender TokenSender,
	locks *lock.UserLock,
	limiter *ratelimit.Limiter,
	maxPayouts int,
	payoutWindow time.Duration,
) *PayoutService {
	return &PayoutService{
		eligibility:  eligibility,
		transferRepo: transferRepo,
		sender:       sender,
		locks:        locks,
		limiter:      limiter,
		maxPayouts:   maxPayouts,
		payoutWindow: payoutWindow,
	}
}

// dedupKey derives the external deduplication key from the transfer id.
// Stable across retries of the same transfer.
func dedupKey(transferID uuid.UUID) string {
	return "bonkback:payout:" + transferID.String()
}

// ExecuteTransfer runs a payout end to end. Eligibility is re-validated at
// execution time under the user's lock (amounts may have changed since the
// caller's check); the pending row created inside the lock is the balance
// reservation, so the lock is released before the external call. A failed
// send is persisted with its error and returned alongside ErrTransferFailed.
func (s *PayoutService) ExecuteTransfer(ctx context.Context, userID uuid.UUID, amount int64, walletAddress, sourceType string) (*model.BonkTransfer, error) {
	if err := s.limiter.Check(ratelimit.OpPayout, userID.String(), s.maxPayouts, s.payoutWindow); err != nil {
		return nil, err
	}
	if err := solana.ValidateAddress(walletAddress); err != nil {
		return nil, ErrWalletInvalid
	}
	if sourceType == "" {
		sourceType = model.SourceTypeCashback
	}

	var transfer *model.BonkTransfer
	err := s.locks.WithLock(userID.String(), func() error {
		result := s.eligibility.Evaluate(ctx, userID, amount)
		if !result.Eligible {
			monitoring.EligibilityChecksTotal.WithLabelValues(result.Reason).Inc()
			return fmt.Errorf("%w: %s", ErrEligibilityChanged, result.Reason)
		}

		var err error
		transfer, err = s.transferRepo.CreatePending(ctx, userID, amount, walletAddress, sourceType)
		return err
	})
	if err != nil {
		return nil, err
	}

	return s.send(ctx, transfer)
}

// RetryTransfer retries a failed transfer. The original transfer id (and with
// it the dedup key) is reused, eligibility and wallet validity are checked
// again, and the retry count was already incremented when the attempt failed.
// Retrying an already-completed transfer is a no-op returning the record.
func (s *PayoutService) RetryTransfer(ctx context.Context, transferID uuid.UUID) (*model.BonkTransfer, error) {
	transfer, err := s.transferRepo.GetByID(ctx, transferID)
	if err != nil {
		return nil, err
	}

	switch transfer.Status {
	case model.TransferStatusCompleted:
		// Intent already satisfied; retry is benign.
		return transfer, nil
	case model.TransferStatusPending:
		return nil, ErrTransferInFlight
	}

	if err := s.limiter.Check(ratelimit.OpPayout, transfer.UserID.String(), s.maxPayouts, s.payoutWindow); err != nil {
		return nil, err
	}
	if err := solana.ValidateAddress(transfer.WalletAddress); err != nil {
		return nil, ErrWalletInvalid
	}

	err = s.locks.WithLock(transfer.UserID.String(), func() error {
		// A failed transfer does not count as consumed, so this check
		// covers re-reserving the amount.
		result := s.eligibility.Evaluate(ctx, transfer.UserID, transfer.Amount)
		if !result.Eligible {
			monitoring.EligibilityChecksTotal.WithLabelValues(result.Reason).Inc()
			return fmt.Errorf("%w: %s", ErrEligibilityChanged, result.Reason)
		}

		var err error
		transfer, err = s.transferRepo.Reactivate(ctx, transferID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return s.send(ctx, transfer)
}

// send issues the external transfer for a pending row and finalizes it.
// No balance lock is held here; the pending row is the reservation.
func (s *PayoutService) send(ctx context.Context, transfer *model.BonkTransfer) (*model.BonkTransfer, error) {
	txHash, sendErr := s.sender.Send(ctx, transfer.WalletAddress, transfer.Amount, dedupKey(transfer.ID))
	if sendErr != nil {
		monitoring.TransfersTotal.WithLabelValues("failed").Inc()
		failed, err := s.transferRepo.MarkFailed(ctx, transfer.ID, sendErr.Error())
		if err != nil {
			// The send outcome is unknown to the row now; surface both.
			return nil, fmt.Errorf("failed to record transfer failure (%v): %w", sendErr, err)
		}
		log.Warn().
			Str("transfer_id", transfer.ID.String()).
			Str("error", sendErr.Error()).
			Int("retry_count", failed.RetryCount).
			Msg("BONK transfer failed")
		return failed, ErrTransferFailed
	}

	completed, err := s.transferRepo.MarkCompleted(ctx, transfer.ID, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to record transfer completion: %w", err)
	}

	monitoring.TransfersTotal.WithLabelValues("completed").Inc()
	log.Info().
		Str("transfer_id", completed.ID.String()).
		Str("tx_hash", txHash).
		Int64("amount", completed.Amount).
		Msg("BONK transfer completed")

	return completed, nil
}

// GetTransfer retrieves a transfer by id.
func (s *PayoutService) GetTransfer(ctx context.Context, transferID uuid.UUID) (*model.BonkTransfer, error) {
	return s.transferRepo.GetByID(ctx, transferID)
}

// ListTransfers retrieves a user's transfers.
func (s *PayoutService) ListTransfers(ctx context.Context, userID uuid.UUID) ([]*model.BonkTransfer, error) {
	return s.transferRepo.ListByUser(ctx, userID)
}

// PayoutLimit reports the user's remaining payout quota.
func (s *PayoutService) PayoutLimit(userID uuid.UUID) ratelimit.Status {
	return s.limiter.Remaining(ratelimit.OpPayout, userID.String(), s.maxPayouts, s.payoutWindow)
}
