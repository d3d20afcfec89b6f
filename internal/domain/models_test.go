package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestAllocationPercentRoundsHalfUp(t *testing.T) {
	rule := ProductCostRule{Mode: RulePercent, Value: decimal.RequireFromString("12.5")}
	if got := rule.Allocation(1000, 1); got != 125 {
		t.Fatalf("expected 125, got %d", got)
	}
	if got := rule.Allocation(1004, 1); got != 126 {
		t.Fatalf("expected 125.5 to round to 126, got %d", got)
	}
}

func TestAllocationFixedScalesWithQuantity(t *testing.T) {
	rule := ProductCostRule{Mode: RuleFixed, Value: decimal.NewFromInt(150)}
	if got := rule.Allocation(99999, 3); got != 450 {
		t.Fatalf("expected 450, got %d", got)
	}
	unknown := ProductCostRule{Mode: "other", Value: decimal.NewFromInt(10)}
	if got := unknown.Allocation(1000, 1); got != 0 {
		t.Fatalf("expected unknown mode to allocate nothing, got %d", got)
	}
}

func TestProgress(t *testing.T) {
	cases := []struct {
		part, whole int64
		want        float64
	}{
		{0, 0, 100},
		{50, 0, 100},
		{-10, 100, 0},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{150, 100, 100},
		{100, 100, 100},
		{999_999, 1_000_000, 99.99},
		{99_995, 100_000, 99.99},
	}
	for _, tc := range cases {
		if got := Progress(tc.part, tc.whole); got != tc.want {
			t.Fatalf("Progress(%d, %d) = %v, want %v", tc.part, tc.whole, got, tc.want)
		}
	}
}

func TestPayableStatusFor(t *testing.T) {
	if got := PayableStatusFor(0, 500); got != PayablePending {
		t.Fatalf("expected Pending, got %s", got)
	}
	if got := PayableStatusFor(200, 500); got != PayablePartial {
		t.Fatalf("expected Partial, got %s", got)
	}
	if got := PayableStatusFor(500, 500); got != PayablePaid {
		t.Fatalf("expected Paid, got %s", got)
	}
}

func TestAssetRecoveryClampsAndRetires(t *testing.T) {
	asset := Asset{TotalCost: 1000}
	asset.ApplyRecovery(400)
	if asset.RecoveredAmount != 400 || asset.Status != AssetActive {
		t.Fatalf("unexpected asset after partial recovery: %+v", asset)
	}
	asset.ApplyRecovery(900)
	if asset.RecoveredAmount != 1000 {
		t.Fatalf("expected recovery clamped to 1000, got %d", asset.RecoveredAmount)
	}
	if asset.Status != AssetRetired {
		t.Fatalf("expected Retired, got %s", asset.Status)
	}
	if asset.Remaining() != 0 {
		t.Fatalf("expected nothing remaining, got %d", asset.Remaining())
	}
}

func TestAssetStaysActiveUntilLastCent(t *testing.T) {
	asset := Asset{TotalCost: 1_000_000}
	asset.ApplyRecovery(999_999)
	if asset.Status != AssetActive {
		t.Fatalf("expected Active with 1 cent owed, got %s", asset.Status)
	}
	if asset.Progress() != 99.99 {
		t.Fatalf("expected progress 99.99, got %v", asset.Progress())
	}
	if asset.Remaining() != 1 {
		t.Fatalf("expected 1 remaining, got %d", asset.Remaining())
	}
	asset.ApplyRecovery(1)
	if asset.Status != AssetRetired || asset.Progress() != 100 {
		t.Fatalf("expected Retired at 100, got %s at %v", asset.Status, asset.Progress())
	}
}

func TestAccountKindOverdraft(t *testing.T) {
	for _, kind := range []AccountKind{AccountCash, AccountBank} {
		if kind.AllowsOverdraft() {
			t.Fatalf("%s must not allow overdraft", kind)
		}
	}
	for _, kind := range []AccountKind{AccountCredit, AccountDebit} {
		if !kind.AllowsOverdraft() {
			t.Fatalf("%s should allow overdraft", kind)
		}
	}
	if AccountKind("gold").Valid() {
		t.Fatalf("unexpected valid kind")
	}
}
