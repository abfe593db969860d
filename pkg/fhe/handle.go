package fhe

import (
	"github.com/ethereum/go-ethereum/common"
)

// Handle is an opaque 32-byte reference to an encrypted value held by the
// confidential-compute runtime. Nothing about the plaintext is derivable
// from the handle; two handles over equal plaintexts are not equal.
type Handle = common.Hash

// EncUint64 references an encrypted unsigned integer. Prices, sizes and
// timestamps are all integer-valued (ticks, lots, unix seconds, basis
// points) so a single numeric ciphertext type covers the engine.
type EncUint64 struct {
	Handle Handle `json:"handle"`
}

// EncBool references an encrypted boolean.
type EncBool struct {
	Handle Handle `json:"handle"`
}

// IsZero reports whether the ciphertext was never initialized.
func (e EncUint64) IsZero() bool { return e.Handle == (Handle{}) }

func (e EncBool) IsZero() bool { return e.Handle == (Handle{}) }
