// Package p256 implements the P-256 authentication discipline: a compact
// 64-byte ECDSA signature over the multicast digest, and the SHA-256
// link-hash chain used by the optional linking extension.
package p256

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"math/big"
)

// LoadPrivateKey reads a PEM-encoded EC private key.
func LoadPrivateKey(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("p256: no PEM block found")
	}
	return x509.ParseECPrivateKey(block.Bytes)
}

// PublicKeyToPEM serves the matching counterpart to LoadPrivateKey.
func PublicKeyToPEM(key *ecdsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// LoadPublicKey reads a PEM-encoded PKIX public key, the format
// PublicKeyToPEM writes. Replicas use it to load the sequencer's
// verification key from the file an operator distributes out of band.
func LoadPublicKey(pemBytes []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("p256: no PEM block found")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	ecKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("p256: PEM block is not an ECDSA public key")
	}
	return ecKey, nil
}

// Sign produces a 64-byte compact r‖s ECDSA signature over digest, which
// is already a 32-byte SHA-256 multicast digest and is signed as-is. The
// curve must be P-256.
func Sign(key *ecdsa.PrivateKey, digest []byte) [64]byte {
	r, s, err := ecdsa.Sign(rand.Reader, key, digest)
	if err != nil {
		panic("p256: ecdsa.Sign failed")
	}
	var sig [64]byte
	r.FillBytes(sig[0:32])
	s.FillBytes(sig[32:64])
	return sig
}

// Verify checks a 64-byte compact signature over digest.
func Verify(key *ecdsa.PublicKey, digest []byte, signature [64]byte) bool {
	r := new(big.Int).SetBytes(signature[0:32])
	s := new(big.Int).SetBytes(signature[32:64])
	return ecdsa.Verify(key, digest, r, s)
}

// NewKey generates a fresh P-256 key pair, used by test/dev setups that
// don't load a provisioned key from disk.
func NewKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// LinkHash computes the cumulative chain hash for the P-256-with-linking
// extension: SHA256(digest || prevLinkHash).
func LinkHash(digest [32]byte, prevLinkHash [32]byte) [32]byte {
	h := sha256.New()
	h.Write(digest[:])
	h.Write(prevLinkHash[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
