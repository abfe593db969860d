package engine

import (
	"github.com/darkpool-labs/ciphermatch/pkg/fhe"
)

// FillCalculator sizes fills against remaining quantity, venue liquidity,
// the order's minimum-fill floor and its partial-fill policy. Every branch
// is computed and the result is chosen with encrypted selects; there is no
// early return to observe.
type FillCalculator struct {
	rt fhe.Runtime
}

func NewFillCalculator(rt fhe.Runtime) *FillCalculator {
	return &FillCalculator{rt: rt}
}

// CalculateOptimalFill implements the fill policy:
//
//	remaining = size - filled
//	candidate = min(remaining, liquidity)
//	if partialAllowed and candidate >= minFill: fill = candidate
//	else if candidate >= remaining (full fill achievable): fill = remaining
//	else: fill = 0
func (f *FillCalculator) CalculateOptimalFill(size, filled, minFill, liquidity fhe.EncUint64, partialAllowed fhe.EncBool) fhe.EncUint64 {
	zero := f.rt.EncryptUint64(0)

	remaining := f.rt.Sub(size, filled)
	candidate := f.rt.Min(remaining, liquidity)

	partialOK := f.rt.And(partialAllowed, f.rt.Ge(candidate, minFill))
	fullAchievable := f.rt.Ge(candidate, remaining)

	fallback := f.rt.Select(fullAchievable, remaining, zero)
	return f.rt.Select(partialOK, candidate, fallback)
}

// ApplySlippageProtection zeroes the fill when the tick price deviates
// from the trigger by more than maxSlippageBps basis points of the
// trigger.
func (f *FillCalculator) ApplySlippageProtection(fill, current, trigger fhe.EncUint64, maxSlippageBps uint64) fhe.EncUint64 {
	deviation := f.rt.Select(
		f.rt.Ge(current, trigger),
		f.rt.Sub(current, trigger),
		f.rt.Sub(trigger, current),
	)
	deviationBps := f.rt.Div(f.rt.Mul(deviation, f.rt.EncryptUint64(bpsDenominator)), trigger)
	withinBound := f.rt.Le(deviationBps, f.rt.EncryptUint64(maxSlippageBps))
	return f.rt.Select(withinBound, fill, f.rt.EncryptUint64(0))
}

// CalculatePriceImpact returns fill * 10000 / liquidity in basis points.
// Non-decreasing in fill for fixed liquidity; an empty venue yields zero.
func (f *FillCalculator) CalculatePriceImpact(fill, liquidity fhe.EncUint64) fhe.EncUint64 {
	return f.rt.Div(f.rt.Mul(fill, f.rt.EncryptUint64(bpsDenominator)), liquidity)
}
