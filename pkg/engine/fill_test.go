package engine_test

import (
	"context"
	"testing"

	"github.com/darkpool-labs/ciphermatch/pkg/engine"
	"github.com/darkpool-labs/ciphermatch/pkg/fhe"
)

func TestCalculateOptimalFill(t *testing.T) {
	rt := fhe.NewDevMock(engineAddr)
	fc := engine.NewFillCalculator(rt)

	tests := []struct {
		name           string
		size, filled   uint64
		minFill        uint64
		liquidity      uint64
		partialAllowed bool
		expected       uint64
	}{
		{"partial fill bounded by liquidity", 10, 3, 1, 2, true, 2},
		{"partial fill bounded by remaining", 10, 3, 1, 20, true, 7},
		{"partial disallowed, depth too shallow", 10, 0, 1, 5, false, 0},
		{"partial disallowed, full fill achievable", 10, 2, 1, 20, false, 8},
		{"candidate below min fill floor", 10, 0, 5, 3, true, 0},
		{"candidate exactly at min fill", 10, 0, 5, 5, true, 5},
		{"completing fill overrides min floor", 100, 95, 10, 5, true, 5},
		{"fully filled order yields zero", 10, 10, 1, 20, true, 0},
		{"empty venue yields zero", 10, 0, 1, 0, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fill := fc.CalculateOptimalFill(
				rt.EncryptUint64(tt.size),
				rt.EncryptUint64(tt.filled),
				rt.EncryptUint64(tt.minFill),
				rt.EncryptUint64(tt.liquidity),
				rt.EncryptBool(tt.partialAllowed),
			)
			got, err := rt.RevealUint64(context.Background(), fill, engineAddr)
			if err != nil {
				t.Fatalf("reveal error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("CalculateOptimalFill() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestApplySlippageProtection(t *testing.T) {
	rt := fhe.NewDevMock(engineAddr)
	fc := engine.NewFillCalculator(rt)

	tests := []struct {
		name             string
		current, trigger uint64
		maxBps           uint64
		expected         uint64
	}{
		{"within bound", 1970, 2000, 200, 7},
		{"exactly at bound", 1960, 2000, 200, 7},
		{"beyond bound below", 1950, 2000, 200, 0},
		{"beyond bound above", 2050, 2000, 200, 0},
		{"no deviation", 2000, 2000, 200, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fill := fc.ApplySlippageProtection(
				rt.EncryptUint64(7),
				rt.EncryptUint64(tt.current),
				rt.EncryptUint64(tt.trigger),
				tt.maxBps,
			)
			got, err := rt.RevealUint64(context.Background(), fill, engineAddr)
			if err != nil {
				t.Fatalf("reveal error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("ApplySlippageProtection() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestCalculatePriceImpact_Monotonic(t *testing.T) {
	rt := fhe.NewDevMock(engineAddr)
	fc := engine.NewFillCalculator(rt)
	ctx := context.Background()

	liquidity := rt.EncryptUint64(100)
	var prev uint64
	for _, fill := range []uint64{0, 10, 25, 50, 100} {
		impact := fc.CalculatePriceImpact(rt.EncryptUint64(fill), liquidity)
		got, err := rt.RevealUint64(ctx, impact, engineAddr)
		if err != nil {
			t.Fatalf("reveal error = %v", err)
		}
		if got < prev {
			t.Errorf("impact decreased: fill %d gave %d after %d", fill, got, prev)
		}
		prev = got
	}
	if prev != 10000 {
		t.Errorf("full consumption impact = %d, want 10000 bps", prev)
	}

	// Empty venue: division by zero collapses to zero, not a fault.
	impact := fc.CalculatePriceImpact(rt.EncryptUint64(10), rt.EncryptUint64(0))
	if got, _ := rt.RevealUint64(ctx, impact, engineAddr); got != 0 {
		t.Errorf("empty venue impact = %d, want 0", got)
	}
}

func TestTriggerEvaluator_PriceCondition(t *testing.T) {
	rt := fhe.NewDevMock(engineAddr)
	te := engine.NewTriggerEvaluator(rt)
	ctx := context.Background()

	tests := []struct {
		name             string
		trigger, current uint64
		buy              bool
		expected         bool
	}{
		{"buy below trigger", 2000, 1900, true, true},
		{"buy at trigger", 2000, 2000, true, true},
		{"buy above trigger", 2000, 2100, true, false},
		{"sell above trigger", 2000, 2100, false, true},
		{"sell at trigger", 2000, 2000, false, true},
		{"sell below trigger", 2000, 1900, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := te.EvaluatePriceCondition(
				rt.EncryptUint64(tt.trigger),
				rt.EncryptUint64(tt.current),
				rt.EncryptBool(tt.buy),
			)
			got, err := rt.RevealBool(ctx, cond, engineAddr)
			if err != nil {
				t.Fatalf("reveal error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("EvaluatePriceCondition() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTriggerEvaluator_IsSlippageAcceptable(t *testing.T) {
	rt := fhe.NewDevMock(engineAddr)
	te := engine.NewTriggerEvaluator(rt)
	ctx := context.Background()

	tests := []struct {
		name             string
		current, trigger uint64
		maxBps           uint64
		expected         bool
	}{
		{"within bound", 2020, 2000, 200, true},
		{"exactly at bound", 2040, 2000, 200, true},
		{"beyond bound", 2050, 2000, 200, false},
		{"symmetric below", 1950, 2000, 200, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := te.IsSlippageAcceptable(
				rt.EncryptUint64(tt.current), rt.EncryptUint64(tt.trigger), tt.maxBps)
			got, err := rt.RevealBool(ctx, flag, engineAddr)
			if err != nil {
				t.Fatalf("reveal error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("IsSlippageAcceptable(%d, %d, %d) = %v, want %v",
					tt.current, tt.trigger, tt.maxBps, got, tt.expected)
			}
		})
	}
}

func TestTriggerEvaluator_ShouldExecute(t *testing.T) {
	rt := fhe.NewDevMock(engineAddr)
	te := engine.NewTriggerEvaluator(rt)
	ctx := context.Background()
	now := uint64(baseTime)

	check := func(active bool, exp uint64, current uint64, want bool) {
		t.Helper()
		flag := te.ShouldExecute(
			rt.EncryptUint64(2000), rt.EncryptUint64(current),
			rt.EncryptBool(true), rt.EncryptBool(active),
			rt.EncryptUint64(exp), now,
		)
		got, err := rt.RevealBool(ctx, flag, engineAddr)
		if err != nil {
			t.Fatalf("reveal error = %v", err)
		}
		if got != want {
			t.Errorf("ShouldExecute(active=%v exp=%d price=%d) = %v, want %v",
				active, exp, current, got, want)
		}
	}

	check(true, now+100, 1900, true)
	check(false, now+100, 1900, false) // inactive
	check(true, now, 1900, false)      // expired (expiration not strictly after now)
	check(true, now+100, 2100, false)  // price condition fails
}
