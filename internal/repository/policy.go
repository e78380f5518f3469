// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Serhat17/bonkback/internal/model"
)

// Common errors for repository operations.
var (
	ErrPolicyNotFound   = errors.New("cashback policy not found")
	ErrOfferNotFound    = errors.New("offer not found")
	ErrTxNotFound       = errors.New("cashback transaction not found")
	ErrDuplicateOrder   = errors.New("order already tracked")
	ErrTransferNotFound = errors.New("transfer not found")
)

// PolicyRepository handles the singleton cashback policy row.
type PolicyRepository struct {
	pool *pgxpool.Pool
}

// NewPolicyRepository creates a new PolicyRepository instance.
func NewPolicyRepository(pool *pgxpool.Pool) *PolicyRepository {
	return &PolicyRepository{pool: pool}
}

// Get retrieves the active cashback policy.
func (r *PolicyRepository) Get(ctx context.Context) (*model.CashbackPolicy, error) {
	const query = `
		SELECT immediate_release_percent, deferred_release_delay_days, version, updated_at
		FROM cashback_policy
		WHERE id = 1
	`

	var p model.CashbackPolicy
	err := r.pool.QueryRow(ctx, query).Scan(
		&p.ImmediateReleasePercent,
		&p.DeferredReleaseDelayDays,
		&p.Version,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPolicyNotFound
		}
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}

	return &p, nil
}

// Update replaces the policy values and bumps the version. The new policy
// applies to balance computed after the update; settled history is untouched
// because release views are derived from transaction timestamps on read.
func (r *PolicyRepository) Update(ctx context.Context, immediatePercent, delayDays int) (*model.CashbackPolicy, error) {
	const query = `
		UPDATE cashback_policy
		SET immediate_release_percent = $1,
		    deferred_release_delay_days = $2,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = 1
		RETURNING immediate_release_percent, deferred_release_delay_days, version, updated_at
	`

	var p model.CashbackPolicy
	err := r.pool.QueryRow(ctx, query, immediatePercent, delayDays).Scan(
		&p.ImmediateReleasePercent,
		&p.DeferredReleaseDelayDays,
		&p.Version,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPolicyNotFound
		}
		return nil, fmt.Errorf("failed to update policy: %w", err)
	}

	return &p, nil
}

// Seed inserts the initial policy row if none exists yet.
func (r *PolicyRepository) Seed(ctx context.Context, immediatePercent, delayDays int) error {
	const query = `
		INSERT INTO cashback_policy (id, immediate_release_percent, deferred_release_delay_days, version, updated_at)
		VALUES (1, $1, $2, 1, NOW())
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, immediatePercent, delayDays); err != nil {
		return fmt.Errorf("failed to seed policy: %w", err)
	}
	return nil
}
