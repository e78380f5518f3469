// Package model defines the data models for the BonkBack cashback service.
package model

import (
	"time"

	"github.com/google/uuid"
)

// CashbackPolicy is the singleton release policy. The immediate percentage of
// a transaction's cashback unlocks at return-window end; the remainder unlocks
// after an additional delay. Version increments on every admin update.
type CashbackPolicy struct {
	ImmediateReleasePercent  int       `db:"immediate_release_percent" json:"immediateReleasePercent"`
	DeferredReleaseDelayDays int       `db:"deferred_release_delay_days" json:"deferredReleaseDelayDays"`
	Version                  int64     `db:"version" json:"version"`
	UpdatedAt                time.Time `db:"updated_at" json:"updatedAt"`
}

// Offer is a merchant cashback offer used by purchase intake to compute the
// cashback amount and return window for a tracked purchase.
type Offer struct {
	ID               uuid.UUID `db:"id" json:"id"`
	MerchantName     string    `db:"merchant_name" json:"merchantName"`
	CashbackPercent  int       `db:"cashback_percent" json:"cashbackPercent"`
	MaxCashback      int64     `db:"max_cashback" json:"maxCashback"`
	ReturnWindowDays int       `db:"return_window_days" json:"returnWindowDays"`
	Active           bool      `db:"active" json:"active"`
}

// CashbackTransaction represents a tracked purchase and the cashback earned
// on it. PurchaseAmount is in fiat cents; TotalCashback is in BONK units.
// Immutable once created except for IsReturned and Status, which the returns
// process may flip at any time.
type CashbackTransaction struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	UserID             uuid.UUID `db:"user_id" json:"userId"`
	OrderID            string    `db:"order_id" json:"orderId"`
	MerchantName       string    `db:"merchant_name" json:"merchantName"`
	PurchaseAmount     int64     `db:"purchase_amount" json:"purchaseAmount"`
	TotalCashback      int64     `db:"total_cashback" json:"totalCashback"`
	PurchaseDate       time.Time `db:"purchase_date" json:"purchaseDate"`
	ReturnWindowEndsAt time.Time `db:"return_window_ends_at" json:"returnWindowEndsAt"`
	IsReturned         bool      `db:"is_returned" json:"isReturned"`
	Status             string    `db:"status" json:"status"`
	CreatedAt          time.Time `db:"created_at" json:"createdAt"`
}

// Cashback transaction statuses.
const (
	TxStatusPending  = "pending"  // inside the return window
	TxStatusReleased = "released" // past the return window
	TxStatusReturned = "returned" // purchase was returned, cashback voided
)

// ReferralPayout tracks a single referral reward through its lifecycle.
// Transitions are strictly locked -> unlocked -> claimed; claimed is terminal.
type ReferralPayout struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	ReferrerID        uuid.UUID  `db:"referrer_id" json:"referrerId"`
	ReferredUserID    uuid.UUID  `db:"referred_user_id" json:"referredUserId"`
	Amount            int64      `db:"amount" json:"amount"`
	RequiredThreshold int64      `db:"required_threshold" json:"requiredThreshold"`
	Status            string     `db:"status" json:"status"`
	UnlockedAt        *time.Time `db:"unlocked_at" json:"unlockedAt"`
	ClaimedAt         *time.Time `db:"claimed_at" json:"claimedAt"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
}

// Referral payout statuses.
const (
	ReferralStatusLocked   = "locked"
	ReferralStatusUnlocked = "unlocked"
	ReferralStatusClaimed  = "claimed"
)

// BonkTransfer records one external BONK token transfer. A pending row doubles
// as the balance reservation; a failed row releases it and may be retried with
// the same id so the on-chain dedup key stays stable.
type BonkTransfer struct {
	ID            uuid.UUID `db:"id" json:"id"`
	UserID        uuid.UUID `db:"user_id" json:"userId"`
	Amount        int64     `db:"amount" json:"amount"`
	WalletAddress string    `db:"wallet_address" json:"walletAddress"`
	Status        string    `db:"status" json:"status"`
	TxHash        *string   `db:"tx_hash" json:"txHash"`
	ErrorMessage  *string   `db:"error_message" json:"errorMessage"`
	RetryCount    int       `db:"retry_count" json:"retryCount"`
	SourceType    string    `db:"source_type" json:"sourceType"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// Bonk transfer statuses.
const (
	TransferStatusPending   = "pending"
	TransferStatusCompleted = "completed"
	TransferStatusFailed    = "failed"
)

// Transfer source types.
const (
	SourceTypeCashback = "cashback"
	SourceTypeReferral = "referral"
)

// BalanceSummary is the derived balance breakdown for a user. Never stored;
// recomputed from transactions, referral payouts and transfers on every read.
type BalanceSummary struct {
	Available       int64 `json:"available"`
	Locked          int64 `json:"locked"`
	NormalCashback  int64 `json:"normalCashback"`
	ReferralRewards int64 `json:"referralRewards"`
	PendingTransfer int64 `json:"pendingTransfer"`
	PaidOut         int64 `json:"paidOut"`
}
