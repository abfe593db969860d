package engine_test

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/darkpool-labs/ciphermatch/pkg/engine"
	"github.com/darkpool-labs/ciphermatch/pkg/fhe"
)

func TestEvaluate_DefaultsOnIndeterminate(t *testing.T) {
	rt := fhe.NewDevMock(engineAddr)
	de := engine.NewDecisionEvaluator(rt, engineAddr, zap.NewNop())
	ctx := context.Background()

	healthy := rt.EncryptBool(true)
	if !de.Evaluate(ctx, healthy, false) {
		t.Error("healthy flag evaluated false")
	}

	broken := rt.EncryptBool(true)
	rt.Corrupt(broken.Handle)
	if de.Evaluate(ctx, broken, false) {
		t.Error("indeterminate flag did not degrade to default false")
	}
	if !de.Evaluate(ctx, broken, true) {
		t.Error("indeterminate flag did not degrade to default true")
	}

	amount := rt.EncryptUint64(42)
	rt.Corrupt(amount.Handle)
	if got := de.RevealAmount(ctx, amount, 7); got != 7 {
		t.Errorf("indeterminate amount = %d, want default 7", got)
	}
}

func TestEvaluateBatch(t *testing.T) {
	rt := fhe.NewDevMock(engineAddr)
	de := engine.NewDecisionEvaluator(rt, engineAddr, zap.NewNop())
	ctx := context.Background()

	broken := rt.EncryptBool(true)
	rt.Corrupt(broken.Handle)
	flags := []fhe.EncBool{rt.EncryptBool(true), rt.EncryptBool(false), broken}

	got, err := de.EvaluateBatch(ctx, flags, []bool{false, true, true})
	if err != nil {
		t.Fatalf("EvaluateBatch() error = %v", err)
	}
	want := []bool{true, false, true} // third degrades to its default
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("batch[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if _, err := de.EvaluateBatch(ctx, flags, []bool{false}); err == nil {
		t.Error("length mismatch accepted")
	}
}

func TestIsExpired_NotExpiredOnIndeterminate(t *testing.T) {
	rt := fhe.NewDevMock(engineAddr)
	de := engine.NewDecisionEvaluator(rt, engineAddr, zap.NewNop())
	ctx := context.Background()
	now := uint64(baseTime)

	if de.IsExpired(ctx, rt.EncryptUint64(now+100), now) {
		t.Error("future expiration reported expired")
	}
	if !de.IsExpired(ctx, rt.EncryptUint64(now), now) {
		t.Error("expiration at now not reported expired")
	}

	// A sweep must never finalize an order whose deadline it cannot read.
	broken := rt.EncryptUint64(now - 100)
	rt.Corrupt(broken.Handle)
	if de.IsExpired(ctx, broken, now) {
		t.Error("indeterminate expiration reported expired")
	}
}

func TestIsOrderFullyFilled(t *testing.T) {
	rt := fhe.NewDevMock(engineAddr)
	de := engine.NewDecisionEvaluator(rt, engineAddr, zap.NewNop())
	ctx := context.Background()

	o := &engine.Order{Size: rt.EncryptUint64(10), FilledAmount: rt.EncryptUint64(9)}
	if de.IsOrderFullyFilled(ctx, o) {
		t.Error("9/10 reported fully filled")
	}
	o.FilledAmount = rt.EncryptUint64(10)
	if !de.IsOrderFullyFilled(ctx, o) {
		t.Error("10/10 not reported fully filled")
	}
}
