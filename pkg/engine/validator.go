package engine

import (
	"github.com/darkpool-labs/ciphermatch/pkg/fhe"
)

// Validator gates order creation with encrypted-domain sanity checks.
type Validator struct {
	rt fhe.Runtime
}

func NewValidator(rt fhe.Runtime) *Validator {
	return &Validator{rt: rt}
}

// Validate computes the encrypted AND of all four parameter predicates.
// Every predicate is evaluated unconditionally: short-circuiting would
// leak which one failed. Only the combined flag crosses the decision
// boundary.
func (v *Validator) Validate(trigger, size, expiration, minFill fhe.EncUint64, now uint64) fhe.EncBool {
	zero := v.rt.EncryptUint64(0)
	encNow := v.rt.EncryptUint64(now)

	triggerPositive := v.rt.Gt(trigger, zero)
	sizePositive := v.rt.Gt(size, zero)
	expiresInFuture := v.rt.Gt(expiration, encNow)
	minFillFits := v.rt.Le(minFill, size)

	valid := v.rt.And(triggerPositive, sizePositive)
	valid = v.rt.And(valid, expiresInFuture)
	return v.rt.And(valid, minFillFits)
}
