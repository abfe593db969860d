package crypto

import (
	bls "github.com/cloudflare/circl/sign/bls"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

type scheme = bls.KeyG1SigG2

type BLSPubKey = bls.PublicKey[scheme]

// AttestationSigner is the decryption oracle's BLS identity. Every reveal
// the coprocessor services is attested by a signature over the handle and
// the disclosed plaintext; the decision boundary verifies it before
// trusting the value.
type AttestationSigner struct {
	sk *bls.PrivateKey[scheme]
	pk *BLSPubKey
}

// NewAttestationSignerFromSeed derives a deterministic oracle key. Devnet
// and tests only; production oracles bring their own key material.
func NewAttestationSignerFromSeed(seed []byte) *AttestationSigner {
	// KeyGen needs at least 32 bytes of keying material; stretch the seed.
	ikm := ethcrypto.Keccak256(seed)
	sk, err := bls.KeyGen[scheme](ikm, nil, nil)
	if err != nil {
		panic(err)
	}
	return &AttestationSigner{sk: sk, pk: sk.PublicKey()}
}

func (s *AttestationSigner) Pubkey() *BLSPubKey { return s.pk }

func (s *AttestationSigner) Attest(msg []byte) []byte {
	return bls.Sign(s.sk, msg)
}

func VerifyAttestation(pk *BLSPubKey, msg, sig []byte) bool {
	if len(sig) == 0 {
		return false
	}
	return bls.Verify(pk, msg, bls.Signature(sig))
}
