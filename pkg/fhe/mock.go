package fhe

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/darkpool-labs/ciphermatch/pkg/crypto"
)

// Opcode tags mixed into handle derivation. Fresh randomness (the counter)
// is mixed in as well so repeated operations over equal operands never
// produce equal handles.
const (
	opEncrypt byte = iota
	opAdd
	opSub
	opMul
	opDiv
	opMin
	opLt
	opLe
	opGt
	opGe
	opEq
	opAnd
	opOr
	opNot
	opSelect
)

const (
	tagUint64 byte = 0x01
	tagBool   byte = 0x02
)

// Mock is an in-process Runtime for development and tests. It stands in
// for the external coprocessor: plaintexts are sealed at rest with
// chacha20poly1305, handles are keccak-derived, per-handle grants are
// enforced on reveal, and every reveal is attested by a BLS oracle
// signature which is verified before the plaintext is released.
type Mock struct {
	mu       sync.Mutex
	aead     cipher.AEAD
	sealed   map[Handle][]byte
	poisoned map[Handle]struct{}
	acl      map[Handle]map[common.Address]struct{}
	admin    common.Address
	oracle   *crypto.AttestationSigner
	ctr      uint64
}

// NewMock builds a mock runtime. sealKey must be 32 bytes; admin is the
// engine identity that receives standing access to every produced handle.
func NewMock(sealKey []byte, oracleSeed []byte, admin common.Address) (*Mock, error) {
	aead, err := chacha20poly1305.New(sealKey)
	if err != nil {
		return nil, fmt.Errorf("seal key: %w", err)
	}
	return &Mock{
		aead:     aead,
		sealed:   make(map[Handle][]byte),
		poisoned: make(map[Handle]struct{}),
		acl:      make(map[Handle]map[common.Address]struct{}),
		admin:    admin,
		oracle:   crypto.NewAttestationSignerFromSeed(oracleSeed),
	}, nil
}

// NewDevMock builds a mock runtime with a random seal key. Devnet/tests.
func NewDevMock(admin common.Address) *Mock {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		panic(err)
	}
	m, err := NewMock(key, []byte("ciphermatch-devnet-oracle"), admin)
	if err != nil {
		panic(err)
	}
	return m
}

// OraclePubkey exposes the attestation oracle's verification key.
func (m *Mock) OraclePubkey() *crypto.BLSPubKey { return m.oracle.Pubkey() }

// Corrupt poisons a handle so any value derived from it reveals as
// indeterminate. Test helper.
func (m *Mock) Corrupt(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poisoned[h] = struct{}{}
	delete(m.sealed, h)
}

func (m *Mock) newHandle(op byte, operands ...Handle) Handle {
	m.ctr++
	var buf []byte
	buf = append(buf, op)
	for _, h := range operands {
		buf = append(buf, h[:]...)
	}
	var c [8]byte
	binary.BigEndian.PutUint64(c[:], m.ctr)
	buf = append(buf, c[:]...)
	return ethcrypto.Keccak256Hash(buf)
}

func (m *Mock) seal(h Handle, tag byte, v uint64) {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		panic(err)
	}
	var pt [9]byte
	pt[0] = tag
	binary.BigEndian.PutUint64(pt[1:], v)
	m.sealed[h] = m.aead.Seal(nonce, nonce, pt[:], h[:])
	if m.acl[h] == nil {
		m.acl[h] = make(map[common.Address]struct{})
	}
	m.acl[h][m.admin] = struct{}{}
}

func (m *Mock) unseal(h Handle) (tag byte, v uint64, ok bool) {
	blob, exists := m.sealed[h]
	if !exists || len(blob) <= chacha20poly1305.NonceSize {
		return 0, 0, false
	}
	nonce, ct := blob[:chacha20poly1305.NonceSize], blob[chacha20poly1305.NonceSize:]
	pt, err := m.aead.Open(nil, nonce, ct, h[:])
	if err != nil || len(pt) != 9 {
		return 0, 0, false
	}
	return pt[0], binary.BigEndian.Uint64(pt[1:]), true
}

func (m *Mock) EncryptUint64(v uint64) EncUint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.newHandle(opEncrypt)
	m.seal(h, tagUint64, v)
	return EncUint64{Handle: h}
}

func (m *Mock) EncryptBool(v bool) EncBool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.newHandle(opEncrypt)
	var u uint64
	if v {
		u = 1
	}
	m.seal(h, tagBool, u)
	return EncBool{Handle: h}
}

// binOp derives the result handle first, then either seals the computed
// value or marks the result poisoned when an operand is unresolvable.
// The caller observes an identical shape either way.
func (m *Mock) binOp(op byte, a, b Handle, tag byte, f func(x, y uint64) uint64) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.newHandle(op, a, b)
	_, x, okA := m.unseal(a)
	_, y, okB := m.unseal(b)
	if !okA || !okB {
		m.poisoned[h] = struct{}{}
		return h
	}
	m.seal(h, tag, f(x, y))
	return h
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (m *Mock) Add(a, b EncUint64) EncUint64 {
	return EncUint64{Handle: m.binOp(opAdd, a.Handle, b.Handle, tagUint64, func(x, y uint64) uint64 { return x + y })}
}

func (m *Mock) Sub(a, b EncUint64) EncUint64 {
	return EncUint64{Handle: m.binOp(opSub, a.Handle, b.Handle, tagUint64, func(x, y uint64) uint64 {
		if y > x {
			return 0
		}
		return x - y
	})}
}

func (m *Mock) Mul(a, b EncUint64) EncUint64 {
	return EncUint64{Handle: m.binOp(opMul, a.Handle, b.Handle, tagUint64, func(x, y uint64) uint64 { return x * y })}
}

func (m *Mock) Div(a, b EncUint64) EncUint64 {
	return EncUint64{Handle: m.binOp(opDiv, a.Handle, b.Handle, tagUint64, func(x, y uint64) uint64 {
		if y == 0 {
			return 0
		}
		return x / y
	})}
}

func (m *Mock) Min(a, b EncUint64) EncUint64 {
	return EncUint64{Handle: m.binOp(opMin, a.Handle, b.Handle, tagUint64, func(x, y uint64) uint64 {
		if x < y {
			return x
		}
		return y
	})}
}

func (m *Mock) Lt(a, b EncUint64) EncBool {
	return EncBool{Handle: m.binOp(opLt, a.Handle, b.Handle, tagBool, func(x, y uint64) uint64 { return b2u(x < y) })}
}

func (m *Mock) Le(a, b EncUint64) EncBool {
	return EncBool{Handle: m.binOp(opLe, a.Handle, b.Handle, tagBool, func(x, y uint64) uint64 { return b2u(x <= y) })}
}

func (m *Mock) Gt(a, b EncUint64) EncBool {
	return EncBool{Handle: m.binOp(opGt, a.Handle, b.Handle, tagBool, func(x, y uint64) uint64 { return b2u(x > y) })}
}

func (m *Mock) Ge(a, b EncUint64) EncBool {
	return EncBool{Handle: m.binOp(opGe, a.Handle, b.Handle, tagBool, func(x, y uint64) uint64 { return b2u(x >= y) })}
}

func (m *Mock) Eq(a, b EncUint64) EncBool {
	return EncBool{Handle: m.binOp(opEq, a.Handle, b.Handle, tagBool, func(x, y uint64) uint64 { return b2u(x == y) })}
}

func (m *Mock) And(a, b EncBool) EncBool {
	return EncBool{Handle: m.binOp(opAnd, a.Handle, b.Handle, tagBool, func(x, y uint64) uint64 { return x & y & 1 })}
}

func (m *Mock) Or(a, b EncBool) EncBool {
	return EncBool{Handle: m.binOp(opOr, a.Handle, b.Handle, tagBool, func(x, y uint64) uint64 { return (x | y) & 1 })}
}

func (m *Mock) Not(a EncBool) EncBool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.newHandle(opNot, a.Handle)
	_, x, ok := m.unseal(a.Handle)
	if !ok {
		m.poisoned[h] = struct{}{}
		return EncBool{Handle: h}
	}
	m.seal(h, tagBool, (x^1)&1)
	return EncBool{Handle: h}
}

func (m *Mock) Select(cond EncBool, a, b EncUint64) EncUint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.newHandle(opSelect, cond.Handle, a.Handle, b.Handle)
	_, c, okC := m.unseal(cond.Handle)
	_, x, okA := m.unseal(a.Handle)
	_, y, okB := m.unseal(b.Handle)
	if !okC || !okA || !okB {
		m.poisoned[h] = struct{}{}
		return EncUint64{Handle: h}
	}
	v := y
	if c == 1 {
		v = x
	}
	m.seal(h, tagUint64, v)
	return EncUint64{Handle: h}
}

func (m *Mock) SelectBool(cond EncBool, a, b EncBool) EncBool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.newHandle(opSelect, cond.Handle, a.Handle, b.Handle)
	_, c, okC := m.unseal(cond.Handle)
	_, x, okA := m.unseal(a.Handle)
	_, y, okB := m.unseal(b.Handle)
	if !okC || !okA || !okB {
		m.poisoned[h] = struct{}{}
		return EncBool{Handle: h}
	}
	v := y
	if c == 1 {
		v = x
	}
	m.seal(h, tagBool, v)
	return EncBool{Handle: h}
}

// reveal unseals, attests, verifies the attestation, and only then
// releases the plaintext. Any failure along the path is indeterminate.
func (m *Mock) reveal(h Handle, caller common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	grants, known := m.acl[h]
	if known {
		if _, ok := grants[caller]; !ok {
			return 0, ErrNotPermitted
		}
	}
	if _, bad := m.poisoned[h]; bad {
		return 0, ErrIndeterminate
	}
	_, v, ok := m.unseal(h)
	if !ok {
		return 0, ErrIndeterminate
	}

	var msg [40]byte
	copy(msg[:32], h[:])
	binary.BigEndian.PutUint64(msg[32:], v)
	sig := m.oracle.Attest(msg[:])
	if !crypto.VerifyAttestation(m.oracle.Pubkey(), msg[:], sig) {
		return 0, ErrIndeterminate
	}
	return v, nil
}

func (m *Mock) RevealBool(ctx context.Context, v EncBool, caller common.Address) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	u, err := m.reveal(v.Handle, caller)
	if err != nil {
		return false, err
	}
	return u == 1, nil
}

func (m *Mock) RevealUint64(ctx context.Context, v EncUint64, caller common.Address) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return m.reveal(v.Handle, caller)
}

func (m *Mock) Grant(h Handle, grantee common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, known := m.sealed[h]; !known {
		if _, bad := m.poisoned[h]; !bad {
			return fmt.Errorf("fhe: grant on unknown handle %s", h.Hex())
		}
	}
	if m.acl[h] == nil {
		m.acl[h] = make(map[common.Address]struct{})
	}
	m.acl[h][grantee] = struct{}{}
	return nil
}

func (m *Mock) Revoke(h Handle, grantee common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if grants, ok := m.acl[h]; ok {
		delete(grants, grantee)
	}
	return nil
}

var _ Runtime = (*Mock)(nil)
