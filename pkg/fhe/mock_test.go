package fhe

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	admin = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func revealU64(t *testing.T, m *Mock, v EncUint64) uint64 {
	t.Helper()
	got, err := m.RevealUint64(context.Background(), v, admin)
	if err != nil {
		t.Fatalf("RevealUint64() error = %v", err)
	}
	return got
}

func revealBool(t *testing.T, m *Mock, v EncBool) bool {
	t.Helper()
	got, err := m.RevealBool(context.Background(), v, admin)
	if err != nil {
		t.Fatalf("RevealBool() error = %v", err)
	}
	return got
}

func TestMock_Arithmetic(t *testing.T) {
	m := NewDevMock(admin)

	tests := []struct {
		name     string
		op       func(a, b EncUint64) EncUint64
		a, b     uint64
		expected uint64
	}{
		{"add", m.Add, 7, 5, 12},
		{"sub", m.Sub, 7, 5, 2},
		{"sub saturates at zero", m.Sub, 5, 7, 0},
		{"mul", m.Mul, 7, 5, 35},
		{"div", m.Div, 35, 5, 7},
		{"div truncates", m.Div, 7, 2, 3},
		{"div by zero yields zero", m.Div, 7, 0, 0},
		{"min left", m.Min, 3, 9, 3},
		{"min right", m.Min, 9, 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := revealU64(t, m, tt.op(m.EncryptUint64(tt.a), m.EncryptUint64(tt.b)))
			if got != tt.expected {
				t.Errorf("%s(%d, %d) = %d, want %d", tt.name, tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestMock_Comparisons(t *testing.T) {
	m := NewDevMock(admin)

	tests := []struct {
		name     string
		op       func(a, b EncUint64) EncBool
		a, b     uint64
		expected bool
	}{
		{"lt true", m.Lt, 3, 5, true},
		{"lt false on equal", m.Lt, 5, 5, false},
		{"le true on equal", m.Le, 5, 5, true},
		{"gt true", m.Gt, 9, 5, true},
		{"ge false", m.Ge, 3, 5, false},
		{"eq true", m.Eq, 5, 5, true},
		{"eq false", m.Eq, 5, 6, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := revealBool(t, m, tt.op(m.EncryptUint64(tt.a), m.EncryptUint64(tt.b)))
			if got != tt.expected {
				t.Errorf("%s(%d, %d) = %v, want %v", tt.name, tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestMock_BooleanOps(t *testing.T) {
	m := NewDevMock(admin)
	tr := m.EncryptBool(true)
	fa := m.EncryptBool(false)

	if got := revealBool(t, m, m.And(tr, fa)); got {
		t.Error("And(true, false) = true, want false")
	}
	if got := revealBool(t, m, m.Or(tr, fa)); !got {
		t.Error("Or(true, false) = false, want true")
	}
	if got := revealBool(t, m, m.Not(tr)); got {
		t.Error("Not(true) = true, want false")
	}
}

func TestMock_Select(t *testing.T) {
	m := NewDevMock(admin)
	a := m.EncryptUint64(100)
	b := m.EncryptUint64(200)

	if got := revealU64(t, m, m.Select(m.EncryptBool(true), a, b)); got != 100 {
		t.Errorf("Select(true) = %d, want 100", got)
	}
	if got := revealU64(t, m, m.Select(m.EncryptBool(false), a, b)); got != 200 {
		t.Errorf("Select(false) = %d, want 200", got)
	}

	x := m.EncryptBool(true)
	y := m.EncryptBool(false)
	if got := revealBool(t, m, m.SelectBool(m.EncryptBool(false), x, y)); got {
		t.Error("SelectBool(false) picked the first arm")
	}
}

func TestMock_HandleUniqueness(t *testing.T) {
	m := NewDevMock(admin)

	// Equal plaintexts must never share a handle, or observers could
	// test ciphertexts for equality without a reveal.
	a := m.EncryptUint64(42)
	b := m.EncryptUint64(42)
	if a.Handle == b.Handle {
		t.Fatal("equal plaintexts produced equal handles")
	}

	s1 := m.Add(a, b)
	s2 := m.Add(a, b)
	if s1.Handle == s2.Handle {
		t.Fatal("repeated operation over same operands produced equal handles")
	}
}

func TestMock_ACL(t *testing.T) {
	m := NewDevMock(admin)
	v := m.EncryptUint64(42)

	// Admin has standing access.
	if got := revealU64(t, m, v); got != 42 {
		t.Fatalf("admin reveal = %d, want 42", got)
	}

	// Ungranted caller is refused.
	if _, err := m.RevealUint64(context.Background(), v, alice); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("ungranted reveal error = %v, want ErrNotPermitted", err)
	}

	// Grant, reveal, revoke, refused again.
	if err := m.Grant(v.Handle, alice); err != nil {
		t.Fatalf("Grant() error = %v", err)
	}
	got, err := m.RevealUint64(context.Background(), v, alice)
	if err != nil || got != 42 {
		t.Fatalf("granted reveal = %d, %v, want 42, nil", got, err)
	}
	if err := m.Revoke(v.Handle, alice); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if _, err := m.RevealUint64(context.Background(), v, alice); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("revoked reveal error = %v, want ErrNotPermitted", err)
	}
}

func TestMock_GrantUnknownHandle(t *testing.T) {
	m := NewDevMock(admin)
	var h Handle
	h[0] = 0xff
	if err := m.Grant(h, alice); err == nil {
		t.Fatal("Grant() on unknown handle succeeded")
	}
}

func TestMock_IndeterminatePropagation(t *testing.T) {
	m := NewDevMock(admin)

	a := m.EncryptUint64(10)
	b := m.EncryptUint64(3)
	m.Corrupt(a.Handle)

	// Corrupted operand reveals as indeterminate.
	if _, err := m.RevealUint64(context.Background(), a, admin); !errors.Is(err, ErrIndeterminate) {
		t.Fatalf("corrupted reveal error = %v, want ErrIndeterminate", err)
	}

	// The fault flows through arithmetic, comparison, and select without
	// erroring at compute time.
	sum := m.Add(a, b)
	if _, err := m.RevealUint64(context.Background(), sum, admin); !errors.Is(err, ErrIndeterminate) {
		t.Fatalf("derived sum reveal error = %v, want ErrIndeterminate", err)
	}
	cmp := m.Lt(a, b)
	sel := m.Select(cmp, b, b)
	if _, err := m.RevealUint64(context.Background(), sel, admin); !errors.Is(err, ErrIndeterminate) {
		t.Fatalf("derived select reveal error = %v, want ErrIndeterminate", err)
	}

	// Healthy values are unaffected.
	if got := revealU64(t, m, b); got != 3 {
		t.Fatalf("healthy reveal = %d, want 3", got)
	}
}

func TestMock_RevealHonorsContext(t *testing.T) {
	m := NewDevMock(admin)
	v := m.EncryptUint64(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.RevealUint64(ctx, v, admin); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled reveal error = %v, want context.Canceled", err)
	}
}

func TestMock_MulWraps(t *testing.T) {
	m := NewDevMock(admin)
	big := m.EncryptUint64(1 << 63)
	two := m.EncryptUint64(2)
	if got := revealU64(t, m, m.Mul(big, two)); got != 0 {
		t.Errorf("Mul(2^63, 2) = %d, want 0 (wrapping)", got)
	}
}
