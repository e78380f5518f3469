package release

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/Serhat17/bonkback/internal/model"
)

func policy(percent, delayDays int) *model.CashbackPolicy {
	return &model.CashbackPolicy{
		ImmediateReleasePercent:  percent,
		DeferredReleaseDelayDays: delayDays,
	}
}

func tx(totalCashback int64, windowEnd time.Time, returned bool) *model.CashbackTransaction {
	return &model.CashbackTransaction{
		TotalCashback:      totalCashback,
		ReturnWindowEndsAt: windowEnd,
		IsReturned:         returned,
	}
}

func TestCompute_ExampleSchedule(t *testing.T) {
	// totalCashback=100, 20% immediate, 30 day deferral, window ends at T.
	T := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := policy(20, 30)
	transaction := tx(100, T, false)

	v := Compute(transaction, p, T.Add(-time.Second))
	assert.Equal(t, int64(0), v.AvailableAmount)
	assert.Equal(t, int64(100), v.LockedAmount)

	v = Compute(transaction, p, T.Add(time.Second))
	assert.Equal(t, int64(20), v.AvailableAmount)
	assert.Equal(t, int64(80), v.LockedAmount)

	v = Compute(transaction, p, T.AddDate(0, 0, 30).Add(time.Second))
	assert.Equal(t, int64(100), v.AvailableAmount)
	assert.Equal(t, int64(0), v.LockedAmount)
}

func TestCompute_ReturnedReleasesNothing(t *testing.T) {
	T := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	v := Compute(tx(500, T, true), policy(20, 30), T.AddDate(10, 0, 0))

	assert.Equal(t, int64(0), v.AvailableAmount)
	assert.Equal(t, int64(500), v.LockedAmount)
	assert.True(t, v.IsReturned)
	// Tranches are still reported for display.
	assert.Equal(t, int64(100), v.ImmediateAmount)
	assert.Equal(t, int64(400), v.DeferredAmount)
}

func TestCompute_ZeroPercentDefersEverything(t *testing.T) {
	T := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	p := policy(0, 30)
	transaction := tx(100, T, false)

	v := Compute(transaction, p, T.Add(time.Hour))
	assert.Equal(t, int64(0), v.AvailableAmount)

	v = Compute(transaction, p, T.AddDate(0, 0, 30))
	assert.Equal(t, int64(100), v.AvailableAmount)
}

func TestCompute_HundredPercentIgnoresDeferralDelay(t *testing.T) {
	T := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	p := policy(100, 365)
	transaction := tx(100, T, false)

	v := Compute(transaction, p, T)
	assert.Equal(t, int64(100), v.AvailableAmount)
	assert.Equal(t, int64(0), v.DeferredAmount)
}

func TestSplit_EdgeCases(t *testing.T) {
	immediate, deferred := Split(0, 50)
	assert.Equal(t, int64(0), immediate)
	assert.Equal(t, int64(0), deferred)

	// Rounding remainder goes to the deferred tranche.
	immediate, deferred = Split(99, 50)
	assert.Equal(t, int64(49), immediate)
	assert.Equal(t, int64(50), deferred)
}

// TestSplitExactSumProperty checks that the tranche split never loses or
// invents a unit for any cashback amount and percentage.
func TestSplitExactSumProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		total := rapid.Int64Range(0, 1_000_000_000).Draw(t, "total")
		percent := rapid.IntRange(0, 100).Draw(t, "percent")

		immediate, deferred := Split(total, percent)

		if immediate+deferred != total {
			t.Fatalf("tranches do not sum: %d + %d != %d", immediate, deferred, total)
		}
		if immediate < 0 || deferred < 0 {
			t.Fatalf("negative tranche: immediate=%d deferred=%d", immediate, deferred)
		}
		// The immediate tranche never exceeds the exact percentage.
		if immediate*100 > total*int64(percent) {
			t.Fatalf("immediate tranche overshoots percentage: %d of %d at %d%%", immediate, total, percent)
		}
	})
}

// TestComputeMonotonicProperty checks that the available amount never
// decreases as time advances, for any non-returned transaction.
func TestComputeMonotonicProperty(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	rapid.Check(t, func(t *rapid.T) {
		total := rapid.Int64Range(1, 1_000_000).Draw(t, "total")
		percent := rapid.IntRange(0, 100).Draw(t, "percent")
		delay := rapid.IntRange(0, 120).Draw(t, "delay")
		windowDays := rapid.IntRange(0, 60).Draw(t, "windowDays")

		p := policy(percent, delay)
		transaction := tx(total, base.AddDate(0, 0, windowDays), false)

		t1 := base.Add(time.Duration(rapid.Int64Range(0, 400*24).Draw(t, "h1")) * time.Hour)
		t2 := t1.Add(time.Duration(rapid.Int64Range(0, 400*24).Draw(t, "h2")) * time.Hour)

		v1 := Compute(transaction, p, t1)
		v2 := Compute(transaction, p, t2)

		if v2.AvailableAmount < v1.AvailableAmount {
			t.Fatalf("available decreased over time: %d then %d", v1.AvailableAmount, v2.AvailableAmount)
		}
		if v1.AvailableAmount+v1.LockedAmount != total {
			t.Fatalf("available+locked != total: %d + %d != %d", v1.AvailableAmount, v1.LockedAmount, total)
		}
	})
}
