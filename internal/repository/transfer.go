package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Serhat17/bonkback/internal/model"
)

// ErrTransferNotRetryable is returned when a retry targets a transfer that is
// not in failed state.
var ErrTransferNotRetryable = errors.New("transfer is not in failed state")

const transferColumns = `id, user_id, amount, wallet_address, status, tx_hash,
		error_message, retry_count, source_type, created_at, updated_at`

// TransferRepository handles BONK transfer persistence. Pending and completed
// rows count as consumed balance; a pending row is the payout reservation.
type TransferRepository struct {
	pool *pgxpool.Pool
}

// NewTransferRepository creates a new TransferRepository instance.
func NewTransferRepository(pool *pgxpool.Pool) *TransferRepository {
	return &TransferRepository{pool: pool}
}

func scanTransfer(row pgx.Row) (*model.BonkTransfer, error) {
	var t model.BonkTransfer
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Amount,
		&t.WalletAddress,
		&t.Status,
		&t.TxHash,
		&t.ErrorMessage,
		&t.RetryCount,
		&t.SourceType,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreatePending inserts a new transfer in pending state, reserving the amount
// against the user's available balance.
func (r *TransferRepository) CreatePending(ctx context.Context, userID uuid.UUID, amount int64, walletAddress, sourceType string) (*model.BonkTransfer, error) {
	const query = `
		INSERT INTO bonk_transfers
			(id, user_id, amount, wallet_address, status, retry_count, source_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, NOW(), NOW())
		RETURNING ` + transferColumns

	t, err := scanTransfer(r.pool.QueryRow(ctx, query,
		uuid.New(), userID, amount, walletAddress, model.TransferStatusPending, sourceType,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create transfer: %w", err)
	}
	return t, nil
}

// GetByID retrieves a transfer by id.
func (r *TransferRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.BonkTransfer, error) {
	const query = `SELECT ` + transferColumns + ` FROM bonk_transfers WHERE id = $1`

	t, err := scanTransfer(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransferNotFound
		}
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}
	return t, nil
}

// ListByUser retrieves all transfers for a user, newest first.
func (r *TransferRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.BonkTransfer, error) {
	const query = `
		SELECT ` + transferColumns + `
		FROM bonk_transfers
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	var transfers []*model.BonkTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transfers: %w", err)
	}

	return transfers, nil
}

// SumConsumed sums pending and completed transfer amounts for a user.
// This is the portion of the derived balance already spoken for.
func (r *TransferRepository) SumConsumed(ctx context.Context, userID uuid.UUID) (int64, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0)
		FROM bonk_transfers
		WHERE user_id = $1 AND status IN ('pending', 'completed')
	`

	var sum int64
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum consumed transfers: %w", err)
	}
	return sum, nil
}

// SumPending sums only pending (reserved, in-flight) transfer amounts.
func (r *TransferRepository) SumPending(ctx context.Context, userID uuid.UUID) (int64, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0)
		FROM bonk_transfers
		WHERE user_id = $1 AND status = 'pending'
	`

	var sum int64
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum pending transfers: %w", err)
	}
	return sum, nil
}

// MarkCompleted finalizes a pending transfer with its on-chain signature.
// The status guard makes a duplicate confirmation a no-op.
func (r *TransferRepository) MarkCompleted(ctx context.Context, id uuid.UUID, txHash string) (*model.BonkTransfer, error) {
	const query = `
		UPDATE bonk_transfers
		SET status = 'completed', tx_hash = $2, error_message = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + transferColumns

	t, err := scanTransfer(r.pool.QueryRow(ctx, query, id, txHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransferNotFound
		}
		return nil, fmt.Errorf("failed to mark transfer completed: %w", err)
	}
	return t, nil
}

// MarkFailed records a failed attempt, releasing the reservation. The error
// message is always persisted so no transfer sits in an ambiguous state.
func (r *TransferRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) (*model.BonkTransfer, error) {
	const query = `
		UPDATE bonk_transfers
		SET status = 'failed', error_message = $2, retry_count = retry_count + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + transferColumns

	t, err := scanTransfer(r.pool.QueryRow(ctx, query, id, errMsg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransferNotFound
		}
		return nil, fmt.Errorf("failed to mark transfer failed: %w", err)
	}
	return t, nil
}

// Reactivate moves a failed transfer back to pending for a retry, restoring
// the reservation under the original transfer id. Only failed transfers can
// be reactivated; anything else returns ErrTransferNotRetryable.
func (r *TransferRepository) Reactivate(ctx context.Context, id uuid.UUID) (*model.BonkTransfer, error) {
	const query = `
		UPDATE bonk_transfers
		SET status = 'pending', updated_at = NOW()
		WHERE id = $1 AND status = 'failed'
		RETURNING ` + transferColumns

	t, err := scanTransfer(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransferNotRetryable
		}
		return nil, fmt.Errorf("failed to reactivate transfer: %w", err)
	}
	return t, nil
}
