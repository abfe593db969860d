package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/darkpool-labs/ciphermatch/pkg/fhe"
	"github.com/darkpool-labs/ciphermatch/pkg/metrics"
)

// DecisionEvaluator is the single point where an encrypted boolean (or a
// revealed amount) becomes usable plaintext. Everything upstream of it
// computes on handles and never branches on secret state; everything
// downstream may use ordinary control flow.
//
// An indeterminate reveal resolves to the caller-supplied default instead
// of failing, so batch sweeps degrade per item rather than aborting.
type DecisionEvaluator struct {
	rt   fhe.Runtime
	self common.Address
	log  *zap.Logger
}

func NewDecisionEvaluator(rt fhe.Runtime, self common.Address, log *zap.Logger) *DecisionEvaluator {
	return &DecisionEvaluator{rt: rt, self: self, log: log}
}

// Evaluate reveals an encrypted flag, returning def when the runtime
// cannot resolve it.
func (de *DecisionEvaluator) Evaluate(ctx context.Context, flag fhe.EncBool, def bool) bool {
	v, err := de.rt.RevealBool(ctx, flag, de.self)
	if err != nil {
		metrics.RevealFailures.Inc()
		de.log.Debug("reveal degraded to default",
			zap.String("handle", flag.Handle.Hex()), zap.Bool("default", def), zap.Error(err))
		return def
	}
	return v
}

// EvaluateBatch evaluates N independent flags. It fails fast on a
// flags/defaults length mismatch and otherwise degrades per item.
func (de *DecisionEvaluator) EvaluateBatch(ctx context.Context, flags []fhe.EncBool, defaults []bool) ([]bool, error) {
	if len(flags) != len(defaults) {
		return nil, fmt.Errorf("engine: batch evaluate: %d flags vs %d defaults", len(flags), len(defaults))
	}
	out := make([]bool, len(flags))
	for i, f := range flags {
		out[i] = de.Evaluate(ctx, f, defaults[i])
	}
	return out, nil
}

// RevealAmount reveals an encrypted amount, returning def when the
// runtime cannot resolve it.
func (de *DecisionEvaluator) RevealAmount(ctx context.Context, v fhe.EncUint64, def uint64) uint64 {
	u, err := de.rt.RevealUint64(ctx, v, de.self)
	if err != nil {
		metrics.RevealFailures.Inc()
		de.log.Debug("amount reveal degraded to default",
			zap.String("handle", v.Handle.Hex()), zap.Uint64("default", def), zap.Error(err))
		return def
	}
	return u
}

// IsActive reveals an order's active flag. Inactive on indeterminate.
func (de *DecisionEvaluator) IsActive(ctx context.Context, o *Order) bool {
	return de.Evaluate(ctx, o.IsActive, false)
}

// IsExpired compares an encrypted expiration against now. Not expired on
// indeterminate, so a sweep never finalizes an order it cannot read.
func (de *DecisionEvaluator) IsExpired(ctx context.Context, expiration fhe.EncUint64, now uint64) bool {
	return de.Evaluate(ctx, de.rt.Le(expiration, de.rt.EncryptUint64(now)), false)
}

// IsPartialFillAllowed reveals the partial-fill policy flag.
func (de *DecisionEvaluator) IsPartialFillAllowed(ctx context.Context, o *Order) bool {
	return de.Evaluate(ctx, o.PartialFillAllowed, false)
}

// MeetsMinimumFillRequirement accepts a proposed fill that reaches the
// stated minimum, or one that exactly finishes the order even below it.
func (de *DecisionEvaluator) MeetsMinimumFillRequirement(ctx context.Context, proposed, minFill, remaining fhe.EncUint64) bool {
	ok := de.rt.Or(de.rt.Ge(proposed, minFill), de.rt.Ge(proposed, remaining))
	return de.Evaluate(ctx, ok, false)
}

// IsOrderFullyFilled reveals whether filled >= size at check time.
func (de *DecisionEvaluator) IsOrderFullyFilled(ctx context.Context, o *Order) bool {
	return de.Evaluate(ctx, de.rt.Ge(o.FilledAmount, o.Size), false)
}
