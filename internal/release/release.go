// Package release computes the time-gated release schedule for a cashback
// transaction. The computation is pure: it depends only on the transaction,
// the current policy and the supplied clock value, so views are recomputed on
// every read instead of being cached.
package release

import (
	"time"

	"github.com/Serhat17/bonkback/internal/model"
)

// View is the derived release schedule for a single transaction.
type View struct {
	ImmediateAmount        int64
	DeferredAmount         int64
	AvailableFromImmediate time.Time
	AvailableFromDeferred  time.Time
	AvailableAmount        int64
	LockedAmount           int64
	IsReturned             bool
}

// Split divides totalCashback into immediate and deferred tranches according
// to the policy percentage. Integer division assigns the rounding remainder
// to the deferred tranche, so immediate + deferred == totalCashback exactly.
func Split(totalCashback int64, immediatePercent int) (immediate, deferred int64) {
	if totalCashback <= 0 {
		return 0, 0
	}
	immediate = totalCashback * int64(immediatePercent) / 100
	deferred = totalCashback - immediate
	return immediate, deferred
}

// Compute derives the release view for a transaction at the given instant.
// The immediate tranche unlocks exactly at return-window end; the deferred
// tranche unlocks after the policy delay on top of that. A returned purchase
// releases nothing regardless of elapsed time, but the tranche amounts are
// still reported (as locked) for display purposes.
func Compute(tx *model.CashbackTransaction, policy *model.CashbackPolicy, now time.Time) View {
	immediate, deferred := Split(tx.TotalCashback, policy.ImmediateReleasePercent)

	v := View{
		ImmediateAmount:        immediate,
		DeferredAmount:         deferred,
		AvailableFromImmediate: tx.ReturnWindowEndsAt,
		AvailableFromDeferred:  tx.ReturnWindowEndsAt.AddDate(0, 0, policy.DeferredReleaseDelayDays),
		IsReturned:             tx.IsReturned,
	}

	if tx.IsReturned {
		v.LockedAmount = tx.TotalCashback
		return v
	}

	if !now.Before(v.AvailableFromImmediate) {
		v.AvailableAmount += immediate
	}
	if !now.Before(v.AvailableFromDeferred) {
		v.AvailableAmount += deferred
	}
	v.LockedAmount = tx.TotalCashback - v.AvailableAmount
	return v
}
