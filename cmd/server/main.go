// Package main is the entry point for the BonkBack cashback service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Serhat17/bonkback/internal/config"
	"github.com/Serhat17/bonkback/internal/handler"
	"github.com/Serhat17/bonkback/internal/pkg/db"
	"github.com/Serhat17/bonkback/internal/pkg/lock"
	"github.com/Serhat17/bonkback/internal/pkg/ratelimit"
	"github.com/Serhat17/bonkback/internal/repository"
	"github.com/Serhat17/bonkback/internal/service"
	"github.com/Serhat17/bonkback/internal/solana"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	policyRepo := repository.NewPolicyRepository(dbPool.Pool)
	offerRepo := repository.NewOfferRepository(dbPool.Pool)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)
	referralRepo := repository.NewReferralRepository(dbPool.Pool)
	transferRepo := repository.NewTransferRepository(dbPool.Pool)

	// Seed the release policy on first startup
	if err := policyRepo.Seed(ctx, cfg.Policy.ImmediateReleasePercent, cfg.Policy.DeferredReleaseDelayDays); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed release policy")
	}

	// Initialize the Solana BONK transfer client
	solanaClient, err := solana.NewClient(&cfg.Solana)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Solana client")
	}
	log.Info().Str("payer", solanaClient.PayerAddress()).Msg("Solana client ready")

	userLock := lock.NewUserLock()
	limiter := ratelimit.NewLimiter()

	// Initialize services
	policyService := service.NewPolicyService(policyRepo)
	cashbackService := service.NewCashbackService(offerRepo, txRepo, policyRepo, referralRepo, transferRepo)
	eligibilityService := service.NewEligibilityService(txRepo, policyRepo, referralRepo, transferRepo, cfg.Payout.MinAmount, cfg.Payout.RequiredNormalCashback)
	referralService := service.NewReferralService(
		referralRepo,
		txRepo,
		limiter,
		cfg.Referral.ReferrerReward,
		cfg.Referral.ReferredReward,
		cfg.Referral.RequiredThreshold,
		cfg.RateLimit.ClaimMax,
		cfg.RateLimit.ClaimWindow,
	)

	payoutService := service.NewPayoutService(
		eligibilityService,
		transferRepo,
		solanaClient,
		userLock,
		limiter,
		cfg.RateLimit.PayoutMax,
		cfg.RateLimit.PayoutWindow,
	)

	// Build the router
	h := handler.New(cfg, dbPool, policyService, cashbackService, eligibilityService, referralService, payoutService)
	router := h.Router()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Server is starting...")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("Server stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: Create cashback policy table (singleton row)
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS cashback_policy (
			id INT PRIMARY KEY CHECK (id = 1),
			immediate_release_percent INT NOT NULL CHECK (immediate_release_percent BETWEEN 0 AND 100),
			deferred_release_delay_days INT NOT NULL CHECK (deferred_release_delay_days >= 0),
			version BIGINT NOT NULL DEFAULT 1,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: cashback_policy table created")

	// Migration 2: Create offers table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS offers (
			id UUID PRIMARY KEY,
			merchant_name TEXT NOT NULL,
			cashback_percent INT NOT NULL CHECK (cashback_percent BETWEEN 0 AND 100),
			max_cashback BIGINT NOT NULL DEFAULT 0,
			return_window_days INT NOT NULL DEFAULT 30,
			active BOOLEAN NOT NULL DEFAULT TRUE
		);
		CREATE INDEX IF NOT EXISTS idx_offers_merchant ON offers(LOWER(merchant_name)) WHERE active;
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: offers table created")

	// Migration 3: Create cashback transactions table
	_, err = pool.Exec(ctx, `
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
		CREATE INDEX IF NOT EXISTS idx_cashback_tx_user ON cashback_transactions(user_id, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: cashback_transactions table created")

	// Migration 4: Create referral payouts and credits tables
	_, err = pool.Exec(ctx, `
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
		CREATE INDEX IF NOT EXISTS idx_referral_referrer ON referral_payouts(referrer_id, status);
		CREATE INDEX IF NOT EXISTS idx_referral_referred ON referral_payouts(referred_user_id) WHERE status = 'locked';

		CREATE TABLE IF NOT EXISTS referral_credits (
			user_id UUID PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: referral tables created")

	// Migration 5: Create bonk transfers table
	_, err = pool.Exec(ctx, `
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
		CREATE INDEX IF NOT EXISTS idx_transfers_user ON bonk_transfers(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_transfers_consumed ON bonk_transfers(user_id) WHERE status IN ('pending', 'completed');
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 5: bonk_transfers table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
