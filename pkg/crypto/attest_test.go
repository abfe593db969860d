package crypto

import "testing"

func TestAttestAndVerify(t *testing.T) {
	oracle := NewAttestationSignerFromSeed([]byte("test-oracle"))
	msg := []byte("handle-and-plaintext")

	sig := oracle.Attest(msg)
	if !VerifyAttestation(oracle.Pubkey(), msg, sig) {
		t.Fatal("valid attestation did not verify")
	}
	if VerifyAttestation(oracle.Pubkey(), []byte("different message"), sig) {
		t.Error("attestation verified against a different message")
	}

	other := NewAttestationSignerFromSeed([]byte("another-oracle"))
	if VerifyAttestation(other.Pubkey(), msg, sig) {
		t.Error("attestation verified under a different oracle key")
	}
	if VerifyAttestation(oracle.Pubkey(), msg, nil) {
		t.Error("empty attestation verified")
	}
}

func TestAttestationSigner_DeterministicFromSeed(t *testing.T) {
	a := NewAttestationSignerFromSeed([]byte("seed"))
	b := NewAttestationSignerFromSeed([]byte("seed"))

	msg := []byte("msg")
	if !VerifyAttestation(b.Pubkey(), msg, a.Attest(msg)) {
		t.Error("same seed did not derive the same oracle identity")
	}
}
