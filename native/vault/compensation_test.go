package vault

import (
	"errors"
	"math"
	"testing"
)

func TestTotalCompensationPricesMinority(t *testing.T) {
	total, err := TotalCompensation(1_000_000, 800_000, 2_000_000)
	if err != nil {
		t.Fatalf("total compensation: %v", err)
	}
	if total != 400_000_000_000 {
		t.Fatalf("unexpected total %d", total)
	}
	if total, err := TotalCompensation(10, 10, math.MaxUint64); err != nil || total != 0 {
		t.Fatalf("full escrow should owe nothing: %d %v", total, err)
	}
	if _, err := TotalCompensation(10, 11, 1); !errors.Is(err, errEscrowOverflow) {
		t.Fatalf("expected escrow overflow, got %v", err)
	}
}

func TestCompensationOverflow(t *testing.T) {
	if _, err := TotalCompensation(math.MaxUint64, 0, 2); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("expected ErrMathOverflow, got %v", err)
	}
	if _, err := PaymentFor(1<<33, 1<<31); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("expected ErrMathOverflow, got %v", err)
	}
	paid, err := PaymentFor(1<<32, 1<<31)
	if err != nil || paid != 1<<63 {
		t.Fatalf("unexpected payment %d %v", paid, err)
	}
}

func TestRequiredHoldingRoundsUp(t *testing.T) {
	cases := []struct {
		supply uint64
		pct    uint8
		want   uint64
	}{
		{1_000_000, 80, 800_000},
		{1_000_001, 80, 800_001},
		{3, 80, 3},
		{7, 50, 4},
		{math.MaxUint64, 100, math.MaxUint64},
	}
	for _, tc := range cases {
		if got := RequiredHolding(tc.supply, tc.pct); got != tc.want {
			t.Fatalf("RequiredHolding(%d, %d) = %d, want %d", tc.supply, tc.pct, got, tc.want)
		}
		if !meetsPercentage(tc.want, tc.supply, tc.pct) {
			t.Fatalf("required holding %d does not satisfy %d%% of %d", tc.want, tc.pct, tc.supply)
		}
		if tc.want > 0 && meetsPercentage(tc.want-1, tc.supply, tc.pct) {
			t.Fatalf("holding %d should fall short of %d%% of %d", tc.want-1, tc.pct, tc.supply)
		}
	}
}
