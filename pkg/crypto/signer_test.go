package crypto

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestSignAndRecover(t *testing.T) {
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	digest := CancelDigest("ord-123")
	sig, err := signer.Sign(digest)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}

	recovered, err := RecoverAddress(digest, sig)
	if err != nil {
		t.Fatalf("RecoverAddress() error = %v", err)
	}
	if recovered != signer.Address() {
		t.Errorf("recovered %s, want %s", recovered.Hex(), signer.Address().Hex())
	}
	if !VerifySignature(signer.Address(), digest, sig) {
		t.Error("VerifySignature() = false for valid signature")
	}

	// A different order id must not verify against the same signature.
	other := CancelDigest("ord-456")
	if addr, err := RecoverAddress(other, sig); err == nil && addr == signer.Address() {
		t.Error("signature verified against a different order's digest")
	}
}

func TestFromPrivateKeyHex(t *testing.T) {
	original, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	// Round trip, with and without the 0x prefix.
	for _, hexKey := range []string{original.PrivateKeyHex(), "0x" + original.PrivateKeyHex()} {
		restored, err := FromPrivateKeyHex(hexKey)
		if err != nil {
			t.Fatalf("FromPrivateKeyHex(%q) error = %v", hexKey, err)
		}
		if restored.Address() != original.Address() {
			t.Errorf("restored address %s, want %s", restored.Address().Hex(), original.Address().Hex())
		}
	}

	if _, err := FromPrivateKeyHex("not-hex"); err == nil {
		t.Error("FromPrivateKeyHex(garbage) succeeded")
	}
}

func TestSign_RejectsBadHashLength(t *testing.T) {
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	if _, err := signer.Sign([]byte("short")); err == nil {
		t.Error("Sign() accepted a non-32-byte hash")
	}
}

func TestRecoverAddress_RejectsMalformedInput(t *testing.T) {
	digest := CancelDigest("ord-1")
	if _, err := RecoverAddress(digest, make([]byte, 10)); err == nil {
		t.Error("RecoverAddress() accepted a short signature")
	}
	if _, err := RecoverAddress([]byte("short"), make([]byte, 65)); err == nil {
		t.Error("RecoverAddress() accepted a short hash")
	}
}

func TestVerifySignature_WrongSigner(t *testing.T) {
	a, _ := GenerateKey()
	digest := CancelDigest("ord-1")
	sig, err := a.Sign(digest)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if VerifySignature(common.HexToAddress("0x1"), digest, sig) {
		t.Error("VerifySignature() accepted the wrong address")
	}
}

func TestCancelDigest_Deterministic(t *testing.T) {
	a := CancelDigest("ord-1")
	b := CancelDigest("ord-1")
	c := CancelDigest("ord-2")
	if !bytes.Equal(a, b) {
		t.Error("same order id produced different digests")
	}
	if bytes.Equal(a, c) {
		t.Error("different order ids produced equal digests")
	}
	if len(a) != 32 {
		t.Errorf("digest length = %d, want 32", len(a))
	}
}
