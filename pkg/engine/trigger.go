package engine

import (
	"github.com/darkpool-labs/ciphermatch/pkg/fhe"
)

// bpsDenominator scales ratios into integer basis points (1/100 of one
// percent), keeping all encrypted arithmetic integral.
const bpsDenominator = 10000

// TriggerEvaluator combines price, direction, expiry and active state into
// a single encrypted execution flag. It exposes the standalone price and
// slippage predicates as cheaper pre-filters for schedulers.
type TriggerEvaluator struct {
	rt fhe.Runtime
}

func NewTriggerEvaluator(rt fhe.Runtime) *TriggerEvaluator {
	return &TriggerEvaluator{rt: rt}
}

// EvaluatePriceCondition returns the encrypted trigger condition: a buy
// fires when current <= trigger, a sell when current >= trigger. The
// direction branch is an encrypted select over both comparisons, so
// neither path is observable from outside.
func (t *TriggerEvaluator) EvaluatePriceCondition(trigger, current fhe.EncUint64, isBuy fhe.EncBool) fhe.EncBool {
	buyCondition := t.rt.Le(current, trigger)
	sellCondition := t.rt.Ge(current, trigger)
	return t.rt.SelectBool(isBuy, buyCondition, sellCondition)
}

// IsSlippageAcceptable checks |current - trigger| * 10000 / trigger <=
// maxSlippageBps. Division by trigger is safe: validation guarantees
// trigger > 0 for every stored order.
func (t *TriggerEvaluator) IsSlippageAcceptable(current, trigger fhe.EncUint64, maxSlippageBps uint64) fhe.EncBool {
	deviation := t.rt.Select(
		t.rt.Ge(current, trigger),
		t.rt.Sub(current, trigger),
		t.rt.Sub(trigger, current),
	)
	deviationBps := t.rt.Div(t.rt.Mul(deviation, t.rt.EncryptUint64(bpsDenominator)), trigger)
	return t.rt.Le(deviationBps, t.rt.EncryptUint64(maxSlippageBps))
}

// ShouldExecute is the composite trigger: active AND NOT expired AND
// price-condition(direction). All three legs are computed unconditionally
// in the encrypted domain.
func (t *TriggerEvaluator) ShouldExecute(trigger, current fhe.EncUint64, isBuy fhe.EncBool, active fhe.EncBool, expiration fhe.EncUint64, now uint64) fhe.EncBool {
	notExpired := t.rt.Gt(expiration, t.rt.EncryptUint64(now))
	priceOK := t.EvaluatePriceCondition(trigger, current, isBuy)
	return t.rt.And(t.rt.And(active, notExpired), priceOK)
}
