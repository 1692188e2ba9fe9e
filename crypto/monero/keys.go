// Package monero implements the Monero-side key material spec.md §4.4
// needs to construct and spend the joint 2-of-2 subaddress: private
// spend/view keypairs, key summation for the joint spend key `S =
// (s_a+s_b)·G`, and the base58 address encoding Alice hands Bob in M1.
//
// Grounded on noot-atomic-swap/monero/client.go's
// PrivateKeyPair/PrivateViewKey call shape (SpendKey/ViewKey/Address),
// generalized here with a concrete ed25519-backed implementation since
// the upstream mcrypto package body was not retrieved.
package monero

import (
	"crypto/rand"
	"fmt"
	"io"

	"filippo.io/edwards25519"
	"github.com/xmrswap/swapd/common"
)

// PrivateSpendKey is an ed25519 scalar controlling the ability to spend
// from a Monero output.
type PrivateSpendKey struct {
	scalar *edwards25519.Scalar
}

// PrivateViewKey is an ed25519 scalar controlling the ability to scan
// for and decrypt a wallet's incoming outputs.
type PrivateViewKey struct {
	scalar *edwards25519.Scalar
}

// PublicKey is a compressed ed25519 point: either a public spend key or
// a public view key, depending on context.
type PublicKey struct {
	point *edwards25519.Point
}

// NewPrivateSpendKey draws a fresh random private spend key.
func NewPrivateSpendKey() (*PrivateSpendKey, error) {
	s, err := randomScalar()
	if err != nil {
		return nil, err
	}
	return &PrivateSpendKey{scalar: s}, nil
}

// NewPrivateViewKey draws a fresh random private view key.
func NewPrivateViewKey() (*PrivateViewKey, error) {
	s, err := randomScalar()
	if err != nil {
		return nil, err
	}
	return &PrivateViewKey{scalar: s}, nil
}

// SumPrivateSpendKeys computes the joint private spend key s_a+s_b.
// Neither party ever holds the sum in the swap protocol — this exists
// so tests can assert the joint public key both parties derive
// independently equals (a+b)·G.
func SumPrivateSpendKeys(a, b *PrivateSpendKey) *PrivateSpendKey {
	sum := edwards25519.NewScalar().Add(a.scalar, b.scalar)
	return &PrivateSpendKey{scalar: sum}
}

// SumPrivateViewKeys computes the joint private view key v_a+v_b. Per
// spec.md's Monero model, both swap participants learn this sum (it
// must be shared to allow either side to detect the lock output), only
// the spend-key sum stays split.
func SumPrivateViewKeys(a, b *PrivateViewKey) *PrivateViewKey {
	sum := edwards25519.NewScalar().Add(a.scalar, b.scalar)
	return &PrivateViewKey{scalar: sum}
}

// PublicKey returns s·G.
func (k *PrivateSpendKey) PublicKey() *PublicKey {
	return &PublicKey{point: edwards25519.NewIdentityPoint().ScalarBaseMult(k.scalar)}
}

// PublicKey returns v·G.
func (k *PrivateViewKey) PublicKey() *PublicKey {
	return &PublicKey{point: edwards25519.NewIdentityPoint().ScalarBaseMult(k.scalar)}
}

// Bytes returns the little-endian canonical scalar encoding.
func (k *PrivateSpendKey) Bytes() [32]byte {
	var out [32]byte
	copy(out[:], k.scalar.Bytes())
	return out
}

// Bytes returns the little-endian canonical scalar encoding.
func (k *PrivateViewKey) Bytes() [32]byte {
	var out [32]byte
	copy(out[:], k.scalar.Bytes())
	return out
}

// Bytes returns the compressed point encoding.
func (p *PublicKey) Bytes() [32]byte {
	var out [32]byte
	copy(out[:], p.point.Bytes())
	return out
}

// Point exposes the underlying ed25519 point, for callers (net/message's
// M0/M1 encoders, crypto/dleq) that need to hand it to an API expecting
// *edwards25519.Point directly rather than its compressed encoding.
func (p *PublicKey) Point() *edwards25519.Point {
	return p.point
}

// PrivateSpendKeyFromBytes decodes a spend key recovered via adaptor
// signature recovery (secp256k1.Recover) or read back from persisted
// swap state.
func PrivateSpendKeyFromBytes(b [32]byte) (*PrivateSpendKey, error) {
	s, err := edwards25519.NewScalar().SetCanonicalBytes(b[:])
	if err != nil {
		return nil, fmt.Errorf("monero: invalid spend key encoding: %w", err)
	}
	return &PrivateSpendKey{scalar: s}, nil
}

// PrivateViewKeyFromBytes decodes a view key received over the wire
// (M0's v_b, M1's v_a); the joint view key model shares these in the
// clear so both parties can scan for the lock output.
func PrivateViewKeyFromBytes(b [32]byte) (*PrivateViewKey, error) {
	s, err := edwards25519.NewScalar().SetCanonicalBytes(b[:])
	if err != nil {
		return nil, fmt.Errorf("monero: invalid view key encoding: %w", err)
	}
	return &PrivateViewKey{scalar: s}, nil
}

// PublicKeyFromBytes decodes a compressed ed25519 point received over
// the wire (M0's S_b, M1's S_a).
func PublicKeyFromBytes(b [32]byte) (*PublicKey, error) {
	p, err := edwards25519.NewIdentityPoint().SetBytes(b[:])
	if err != nil {
		return nil, fmt.Errorf("monero: invalid public key encoding: %w", err)
	}
	return &PublicKey{point: p}, nil
}

// SumPublicKeys computes the group sum of two public keys — used to
// derive the joint spend public key S = S_a + S_b without either side
// learning the other's private scalar.
func SumPublicKeys(a, b *PublicKey) *PublicKey {
	return &PublicKey{point: edwards25519.NewIdentityPoint().Add(a.point, b.point)}
}

// PrivateSpendKeyFromSwapScalar derives a private spend key from the
// numBits-bounded scalar bound by the cross-curve DLEQ proof
// (crypto/dleq), per spec.md §4.4's requirement that the same secret
// underlies both Alice's Bitcoin adaptor point and her half of the
// Monero spend key.
func PrivateSpendKeyFromSwapScalar(secret [32]byte) (*PrivateSpendKey, error) {
	var wide [64]byte
	// secret is big-endian (secp256k1 convention); ed25519 scalars are
	// little-endian.
	for i := 0; i < 32; i++ {
		wide[i] = secret[31-i]
	}
	s, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		return nil, fmt.Errorf("monero: invalid swap scalar: %w", err)
	}
	return &PrivateSpendKey{scalar: s}, nil
}

// PrivateViewKeyFromSeed derives a private view key deterministically
// from a swap seed, so a crashed-and-restarted Alice can recompute it
// without re-persisting raw key material. Grounded on
// common.Seed.Derive, itself grounded on lnwallet's deriveElkremRoot.
func PrivateViewKeyFromSeed(seed common.Seed) (*PrivateViewKey, error) {
	material := seed.Derive(common.InfoMoneroViewKey)
	s, err := edwards25519.NewScalar().SetUniformBytes(expandTo64(material))
	if err != nil {
		return nil, fmt.Errorf("monero: invalid derived view key: %w", err)
	}
	return &PrivateViewKey{scalar: s}, nil
}

func randomScalar() (*edwards25519.Scalar, error) {
	var b [64]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		return nil, err
	}
	return edwards25519.NewScalar().SetUniformBytes(b[:])
}

// expandTo64 widens a 32-byte HKDF output into the 64-byte uniform
// input SetUniformBytes requires, by repeating it; SetUniformBytes only
// needs enough entropy to reduce mod l, and 32 bytes of HKDF output
// already provide that.
func expandTo64(b [32]byte) []byte {
	var out [64]byte
	copy(out[:32], b[:])
	copy(out[32:], b[:])
	return out[:]
}
