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

// OfferRepository handles merchant cashback offers.
type OfferRepository struct {
	pool *pgxpool.Pool
}

// NewOfferRepository creates a new OfferRepository instance.
func NewOfferRepository(pool *pgxpool.Pool) *OfferRepository {
	return &OfferRepository{pool: pool}
}

// Create inserts a new offer.
func (r *OfferRepository) Create(ctx context.Context, offer *model.Offer) (*model.Offer, error) {
	const query = `
		INSERT INTO offers (id, merchant_name, cashback_percent, max_cashback, return_window_days, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, merchant_name, cashback_percent, max_cashback, return_window_days, active
	`

	id := offer.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	var o model.Offer
	err := r.pool.QueryRow(ctx, query,
		id, offer.MerchantName, offer.CashbackPercent, offer.MaxCashback, offer.ReturnWindowDays, offer.Active,
	).Scan(&o.ID, &o.MerchantName, &o.CashbackPercent, &o.MaxCashback, &o.ReturnWindowDays, &o.Active)
	if err != nil {
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}

	return &o, nil
}

// GetActiveByMerchant retrieves the active offer for a merchant name.
// Matching is case-insensitive since merchant names arrive from parsed
// order confirmation emails with inconsistent casing.
func (r *OfferRepository) GetActiveByMerchant(ctx context.Context, merchantName string) (*model.Offer, error) {
	const query = `
		SELECT id, merchant_name, cashback_percent, max_cashback, return_window_days, active
		FROM offers
		WHERE LOWER(merchant_name) = LOWER($1) AND active
		LIMIT 1
	`

	var o model.Offer
	err := r.pool.QueryRow(ctx, query, merchantName).Scan(
		&o.ID, &o.MerchantName, &o.CashbackPercent, &o.MaxCashback, &o.ReturnWindowDays, &o.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOfferNotFound
		}
		return nil, fmt.Errorf("failed to get offer: %w", err)
	}

	return &o, nil
}
