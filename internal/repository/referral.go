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

const referralColumns = `id, referrer_id, referred_user_id, amount, required_threshold,
		status, unlocked_at, claimed_at, created_at`

// ReferralRepository handles referral payout persistence, including the
// locked -> unlocked -> claimed transitions.
type ReferralRepository struct {
	pool *pgxpool.Pool
}

// NewReferralRepository creates a new ReferralRepository instance.
func NewReferralRepository(pool *pgxpool.Pool) *ReferralRepository {
	return &ReferralRepository{pool: pool}
}

func scanReferral(row pgx.Row) (*model.ReferralPayout, error) {
	var p model.ReferralPayout
	err := row.Scan(
		&p.ID,
		&p.ReferrerID,
		&p.ReferredUserID,
		&p.Amount,
		&p.RequiredThreshold,
		&p.Status,
		&p.UnlockedAt,
		&p.ClaimedAt,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a referral payout in locked state.
func (r *ReferralRepository) Create(ctx context.Context, referrerID, referredUserID uuid.UUID, amount, requiredThreshold int64) (*model.ReferralPayout, error) {
	const query = `
		INSERT INTO referral_payouts
			(id, referrer_id, referred_user_id, amount, required_threshold, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING ` + referralColumns

	p, err := scanReferral(r.pool.QueryRow(ctx, query,
		uuid.New(), referrerID, referredUserID, amount, requiredThreshold, model.ReferralStatusLocked,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create referral payout: %w", err)
	}
	return p, nil
}

// ExistsPair reports whether a payout already exists for this referrer and
// referred user pair, regardless of direction-specific amounts.
func (r *ReferralRepository) ExistsPair(ctx context.Context, referrerID, referredUserID uuid.UUID) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM referral_payouts
			WHERE referrer_id = $1 AND referred_user_id = $2
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, referrerID, referredUserID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check referral pair: %w", err)
	}
	return exists, nil
}

// ListByReferrer retrieves all payouts where the user is the referrer.
func (r *ReferralRepository) ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]*model.ReferralPayout, error) {
	const query = `
		SELECT ` + referralColumns + `
		FROM referral_payouts
		WHERE referrer_id = $1
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, referrerID)
}

// ListLockedByReferredUser retrieves locked payouts whose unlock condition
// depends on the given referred user's qualifying activity.
func (r *ReferralRepository) ListLockedByReferredUser(ctx context.Context, referredUserID uuid.UUID) ([]*model.ReferralPayout, error) {
	const query = `
		SELECT ` + referralColumns + `
		FROM referral_payouts
		WHERE referred_user_id = $1 AND status = 'locked'
		ORDER BY created_at
	`
	return r.list(ctx, query, referredUserID)
}

func (r *ReferralRepository) list(ctx context.Context, query string, arg any) ([]*model.ReferralPayout, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list referral payouts: %w", err)
	}
	defer rows.Close()

	var payouts []*model.ReferralPayout
	for rows.Next() {
		p, err := scanReferral(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan referral payout: %w", err)
		}
		payouts = append(payouts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating referral payouts: %w", err)
	}

	return payouts, nil
}

// Unlock transitions a payout from locked to unlocked. The status guard in
// the WHERE clause makes re-checks no-ops: an already-unlocked or claimed
// payout is left untouched and false is returned.
func (r *ReferralRepository) Unlock(ctx context.Context, id uuid.UUID) (bool, error) {
	const query = `
		UPDATE referral_payouts
		SET status = 'unlocked', unlocked_at = NOW()
		WHERE id = $1 AND status = 'locked'
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to unlock referral payout: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// Claim transitions a single unlocked payout to claimed and credits its
// amount to the referrer's credit balance in one database transaction.
// Either both happen or neither does. Claiming an already-claimed payout
// credits nothing and returns (0, nil): losing a claim race is benign.
func (r *ReferralRepository) Claim(ctx context.Context, id, referrerID uuid.UUID) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	const claimQuery = `
		UPDATE referral_payouts
		SET status = 'claimed', claimed_at = NOW()
		WHERE id = $1 AND referrer_id = $2 AND status = 'unlocked'
		RETURNING amount
	`

	var amount int64
	err = tx.QueryRow(ctx, claimQuery, id, referrerID).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Not unlocked anymore: already claimed or still locked.
			return 0, nil
		}
		return 0, fmt.Errorf("failed to claim referral payout: %w", err)
	}

	const creditQuery = `
		INSERT INTO referral_credits (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET balance = referral_credits.balance + EXCLUDED.balance
	`

	if _, err := tx.Exec(ctx, creditQuery, referrerID, amount); err != nil {
		return 0, fmt.Errorf("failed to credit referral amount: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit claim: %w", err)
	}

	return amount, nil
}

// SumUnlockedByReferrer sums the amounts of unlocked, not yet claimed payouts.
func (r *ReferralRepository) SumUnlockedByReferrer(ctx context.Context, referrerID uuid.UUID) (int64, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0)
		FROM referral_payouts
		WHERE referrer_id = $1 AND status = 'unlocked'
	`

	var sum int64
	if err := r.pool.QueryRow(ctx, query, referrerID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum unlocked payouts: %w", err)
	}
	return sum, nil
}

// SumLockedByReferrer sums the amounts of still-locked payouts for reporting.
func (r *ReferralRepository) SumLockedByReferrer(ctx context.Context, referrerID uuid.UUID) (int64, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0)
		FROM referral_payouts
		WHERE referrer_id = $1 AND status = 'locked'
	`

	var sum int64
	if err := r.pool.QueryRow(ctx, query, referrerID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum locked payouts: %w", err)
	}
	return sum, nil
}

// CreditBalance retrieves the claimed-and-credited referral balance.
func (r *ReferralRepository) CreditBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	const query = `SELECT COALESCE((SELECT balance FROM referral_credits WHERE user_id = $1), 0)`

	var balance int64
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("failed to get credit balance: %w", err)
	}
	return balance, nil
}
