// Package secp256k1 implements the Bitcoin-chain half of the
// cross-curve cryptography spec.md §4.1 requires: ordinary keypairs and
// the Schnorr-style adaptor-signature primitives (encsign/decsign/
// verify_encsig/recover) that bind a Bitcoin signature to a secret
// learned only by publishing it on chain.
package secp256k1

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Keypair wraps a secp256k1 private/public key pair: Alice's Bitcoin
// secret key `a` and public key `A` in spec.md §3's data model, or the
// local representation of Bob's received public key `B`.
type Keypair struct {
	priv *btcec.PrivateKey
}

// Generate draws a fresh keypair from the OS CSPRNG.
func Generate() (*Keypair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("unable to generate secp256k1 keypair: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// FromScalar builds a keypair from 32 bytes of seed-derived key
// material (common.Seed.Derive's output), the deterministic
// counterpart to Generate that original_source/seed.rs's
// extended_private_key plays the analogous role for.
func FromScalar(scalar [32]byte) *Keypair {
	priv, _ := btcec.PrivKeyFromBytes(scalar[:])
	return &Keypair{priv: priv}
}

// PrivateKey exposes the underlying btcec private key for signing
// operations that don't go through the adaptor-signature primitives.
func (k *Keypair) PrivateKey() *btcec.PrivateKey {
	return k.priv
}

// PublicKey returns the corresponding public key.
func (k *Keypair) PublicKey() *btcec.PublicKey {
	return k.priv.PubKey()
}

// Scalar returns the raw 32-byte big-endian scalar. spec.md §9 requires
// that a cross-curve scalar like `s_a` be carried as "the canonical
// little-endian 32-byte integer" for use on both curves; callers on the
// Monero side reverse the byte order themselves (see crypto/monero),
// since secp256k1's own convention here is big-endian.
func (k *Keypair) Scalar() [32]byte {
	return k.priv.Key.Bytes()
}

// PointFromScalar computes s*G_secp for an arbitrary scalar, used by
// crypto/dleq to build the secp256k1 half of a cross-curve proof.
func PointFromScalar(scalar [32]byte) *btcec.PublicKey {
	var s btcec.ModNScalar
	s.SetBytes(&scalar)
	return scalarBaseMul(&s)
}
