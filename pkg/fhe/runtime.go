package fhe

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// ErrIndeterminate is returned by the reveal primitives when the runtime
// cannot resolve a handle to a plaintext (unknown handle, corrupted
// ciphertext, failed attestation). Callers are expected to degrade to a
// default rather than abort; this is steady-state behavior during batch
// sweeps, not an exceptional condition.
var ErrIndeterminate = errors.New("fhe: reveal indeterminate")

// ErrNotPermitted is returned when the revealing party holds no grant on
// the handle.
var ErrNotPermitted = errors.New("fhe: caller not permitted on handle")

// Runtime is the homomorphic compute surface the engine runs on. Every
// operation returns a fresh handle immediately and never blocks on the
// underlying decryption machinery; plaintext escapes only through the two
// Reveal methods, and only to parties holding a grant.
//
// Arithmetic semantics follow the coprocessor conventions the engine
// depends on: Sub saturates at zero, Div by an encrypted zero yields an
// encrypted zero, Mul wraps on overflow.
type Runtime interface {
	EncryptUint64(v uint64) EncUint64
	EncryptBool(v bool) EncBool

	Add(a, b EncUint64) EncUint64
	Sub(a, b EncUint64) EncUint64
	Mul(a, b EncUint64) EncUint64
	Div(a, b EncUint64) EncUint64
	Min(a, b EncUint64) EncUint64

	Lt(a, b EncUint64) EncBool
	Le(a, b EncUint64) EncBool
	Gt(a, b EncUint64) EncBool
	Ge(a, b EncUint64) EncBool
	Eq(a, b EncUint64) EncBool

	And(a, b EncBool) EncBool
	Or(a, b EncBool) EncBool
	Not(a EncBool) EncBool

	// Select returns a iff cond is true, else b. Both arms are computed by
	// the coprocessor regardless of the condition; neither path is
	// observable from outside.
	Select(cond EncBool, a, b EncUint64) EncUint64
	SelectBool(cond EncBool, a, b EncBool) EncBool

	RevealBool(ctx context.Context, v EncBool, caller common.Address) (bool, error)
	RevealUint64(ctx context.Context, v EncUint64, caller common.Address) (uint64, error)

	Grant(h Handle, grantee common.Address) error
	Revoke(h Handle, grantee common.Address) error
}
