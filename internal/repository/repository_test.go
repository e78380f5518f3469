// Tests use testcontainers-go to spin up a PostgreSQL container and are
// skipped when Docker is unavailable.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Serhat17/bonkback/internal/model"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	return cmd.Run() == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool.
// Skips the test if Docker is not available.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, applySchema(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// applySchema mirrors the startup migrations.
func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS cashback_policy (
			id INT PRIMARY KEY CHECK (id = 1),
			immediate_release_percent INT NOT NULL CHECK (immediate_release_percent BETWEEN 0 AND 100),
			deferred_release_delay_days INT NOT NULL CHECK (deferred_release_delay_days >= 0),
			version BIGINT NOT NULL DEFAULT 1,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS offers (
			id UUID PRIMARY KEY,
			merchant_name TEXT NOT NULL,
			cashback_percent INT NOT NULL,
			max_cashback BIGINT NOT NULL DEFAULT 0,
			return_window_days INT NOT NULL DEFAULT 30,
			active BOOLEAN NOT NULL DEFAULT TRUE
		);

		CREATE TABLE IF NOT EXISTS cashback_transactions (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			order_id TEXT NOT NULL UNIQUE,
			merchant_name TEXT NOT NULL,
			purchase_amount BIGINT NOT NULL,
			total_cashback BIGINT NOT NULL,
			purchase_date TIMESTAMPTZ NOT NULL,
			return_window_ends_at TIMESTAMPTZ NOT NULL,
			is_returned BOOLEAN NOT NULL DEFAULT FALSE,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS referral_payouts (
			id UUID PRIMARY KEY,
			referrer_id UUID NOT NULL,
			referred_user_id UUID NOT NULL,
			amount BIGINT NOT NULL,
			required_threshold BIGINT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'locked',
			unlocked_at TIMESTAMPTZ,
			claimed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS referral_credits (
			user_id UUID PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS bonk_transfers (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			amount BIGINT NOT NULL CHECK (amount > 0),
			wallet_address TEXT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			tx_hash TEXT,
			error_message TEXT,
			retry_count INT NOT NULL DEFAULT 0,
			source_type VARCHAR(20) NOT NULL DEFAULT 'cashback',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func newTx(userID uuid.UUID, orderID string, cashback int64) *model.CashbackTransaction {
	now := time.Now()
	return &model.CashbackTransaction{
		UserID:             userID,
		OrderID:            orderID,
		MerchantName:       "Amazon",
		PurchaseAmount:     10_000,
		TotalCashback:      cashback,
		PurchaseDate:       now,
		ReturnWindowEndsAt: now.AddDate(0, 0, 14),
	}
}

// ============================================================================
// PolicyRepository Tests
// ============================================================================

func TestPolicyRepository_SeedGetUpdate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPolicyRepository(pool)
	ctx := context.Background()

	_, err := repo.Get(ctx)
	assert.ErrorIs(t, err, ErrPolicyNotFound)

	require.NoError(t, repo.Seed(ctx, 20, 30))
	// Seeding again is a no-op.
	require.NoError(t, repo.Seed(ctx, 99, 99))

	p, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, p.ImmediateReleasePercent)
	assert.Equal(t, 30, p.DeferredReleaseDelayDays)
	assert.Equal(t, int64(1), p.Version)

	updated, err := repo.Update(ctx, 50, 14)
	require.NoError(t, err)
	assert.Equal(t, 50, updated.ImmediateReleasePercent)
	assert.Equal(t, 14, updated.DeferredReleaseDelayDays)
	assert.Equal(t, int64(2), updated.Version)
}

// ============================================================================
// OfferRepository Tests
// ============================================================================

func TestOfferRepository_MatchIsCaseInsensitive(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewOfferRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, &model.Offer{
		MerchantName:     "Amazon",
		CashbackPercent:  5,
		MaxCashback:      50_000,
		ReturnWindowDays: 14,
		Active:           true,
	})
	require.NoError(t, err)

	offer, err := repo.GetActiveByMerchant(ctx, "AMAZON")
	require.NoError(t, err)
	assert.Equal(t, "Amazon", offer.MerchantName)

	_, err = repo.GetActiveByMerchant(ctx, "Unknown Shop")
	assert.ErrorIs(t, err, ErrOfferNotFound)
}

// ============================================================================
// TransactionRepository Tests
// ============================================================================

func TestTransactionRepository_CreateAndDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewTransactionRepository(pool)
	ctx := context.Background()
	userID := uuid.New()

	created, err := repo.Create(ctx, newTx(userID, "order-1", 1000))
	require.NoError(t, err)
	assert.Equal(t, model.TxStatusPending, created.Status)
	assert.False(t, created.IsReturned)

	_, err = repo.Create(ctx, newTx(userID, "order-1", 1000))
	assert.ErrorIs(t, err, ErrDuplicateOrder)

	txs, err := repo.GetByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestTransactionRepository_MarkReturned(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewTransactionRepository(pool)
	ctx := context.Background()

	created, err := repo.Create(ctx, newTx(uuid.New(), "order-2", 1000))
	require.NoError(t, err)

	require.NoError(t, repo.MarkReturned(ctx, created.ID))

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.IsReturned)
	assert.Equal(t, model.TxStatusReturned, got.Status)

	assert.ErrorIs(t, repo.MarkReturned(ctx, uuid.New()), ErrTxNotFound)
}

// ============================================================================
// ReferralRepository Tests
// ============================================================================

func TestReferralRepository_UnlockIsIdempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewReferralRepository(pool)
	ctx := context.Background()
	referrer := uuid.New()
	referred := uuid.New()

	p, err := repo.Create(ctx, referrer, referred, 333333, 100000)
	require.NoError(t, err)
	assert.Equal(t, model.ReferralStatusLocked, p.Status)

	ok, err := repo.Unlock(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Re-checking an already-unlocked payout is a no-op.
	ok, err = repo.Unlock(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	sum, err := repo.SumUnlockedByReferrer(ctx, referrer)
	require.NoError(t, err)
	assert.Equal(t, int64(333333), sum)
}

func TestReferralRepository_ClaimCreditsExactlyOnce(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewReferralRepository(pool)
	ctx := context.Background()
	referrer := uuid.New()

	p, err := repo.Create(ctx, referrer, uuid.New(), 333333, 100000)
	require.NoError(t, err)

	// Claiming a still-locked payout credits nothing.
	credited, err := repo.Claim(ctx, p.ID, referrer)
	require.NoError(t, err)
	assert.Equal(t, int64(0), credited)

	_, err = repo.Unlock(ctx, p.ID)
	require.NoError(t, err)

	credited, err = repo.Claim(ctx, p.ID, referrer)
	require.NoError(t, err)
	assert.Equal(t, int64(333333), credited)

	// A second claim is a benign no-op.
	credited, err = repo.Claim(ctx, p.ID, referrer)
	require.NoError(t, err)
	assert.Equal(t, int64(0), credited)

	balance, err := repo.CreditBalance(ctx, referrer)
	require.NoError(t, err)
	assert.Equal(t, int64(333333), balance)

	// The unlocked sum no longer includes the claimed payout.
	sum, err := repo.SumUnlockedByReferrer(ctx, referrer)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum)
}

// ============================================================================
// TransferRepository Tests
// ============================================================================

func TestTransferRepository_Lifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewTransferRepository(pool)
	ctx := context.Background()
	userID := uuid.New()

	tr, err := repo.CreatePending(ctx, userID, 5000, "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin", model.SourceTypeCashback)
	require.NoError(t, err)
	assert.Equal(t, model.TransferStatusPending, tr.Status)
	assert.Equal(t, 0, tr.RetryCount)

	// A pending transfer reserves balance.
	consumed, err := repo.SumConsumed(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), consumed)

	// Failure releases the reservation and records the cause.
	failed, err := repo.MarkFailed(ctx, tr.ID, "rpc timeout")
	require.NoError(t, err)
	assert.Equal(t, model.TransferStatusFailed, failed.Status)
	assert.Equal(t, 1, failed.RetryCount)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, "rpc timeout", *failed.ErrorMessage)

	consumed, err = repo.SumConsumed(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), consumed)

	// Retry reuses the same row and restores the reservation.
	reactivated, err := repo.Reactivate(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, tr.ID, reactivated.ID)
	assert.Equal(t, model.TransferStatusPending, reactivated.Status)

	// Completion finalizes the transfer; double confirmation is rejected.
	completed, err := repo.MarkCompleted(ctx, tr.ID, "sig123")
	require.NoError(t, err)
	assert.Equal(t, model.TransferStatusCompleted, completed.Status)
	require.NotNil(t, completed.TxHash)
	assert.Equal(t, "sig123", *completed.TxHash)
	assert.Nil(t, completed.ErrorMessage)

	_, err = repo.MarkCompleted(ctx, tr.ID, "sig456")
	assert.ErrorIs(t, err, ErrTransferNotFound)

	// Completed transfers cannot be reactivated.
	_, err = repo.Reactivate(ctx, tr.ID)
	assert.ErrorIs(t, err, ErrTransferNotRetryable)

	consumed, err = repo.SumConsumed(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), consumed)
}
