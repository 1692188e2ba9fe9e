package dleq

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"filippo.io/edwards25519"
)

// numBits bounds every cross-curve scalar this package handles to
// [0, 2^numBits), which is below both the secp256k1 group order and the
// (smaller) ed25519 group order — spec.md §9's "the lesser order
// dominates" rule, made concrete.
const numBits = 252

// numsPointSecp derives a secp256k1 point with no known discrete log
// relative to the curve's standard generator, by the try-and-increment
// method also used to construct BIP-340-style "nothing up my sleeve"
// points: hash a domain tag and a counter, and try to parse the digest
// as the x-coordinate of a compressed, even-y point.
func numsPointSecp(tag string) *btcec.PublicKey {
	for counter := byte(0); ; counter++ {
		h := sha256.Sum256(append([]byte(tag), counter))
		candidate := append([]byte{0x02}, h[:]...)
		if pub, err := btcec.ParsePubKey(candidate); err == nil {
			return pub
		}
	}
}

// numsPointEd derives an ed25519 point with no known discrete log
// relative to the curve's standard generator, by the same
// try-and-increment method applied to ed25519's compressed point
// encoding.
func numsPointEd(tag string) *edwards25519.Point {
	for counter := byte(0); ; counter++ {
		h := sha256.Sum256(append([]byte(tag), counter))
		p := edwards25519.NewIdentityPoint()
		if _, err := p.SetBytes(h[:]); err == nil {
			return p
		}
	}
}

// hGenSecp and hGenEd are the Pedersen-commitment second generators
// used by the per-bit proofs below. Neither prover nor verifier may
// know their discrete log relative to G — that's what makes the bit
// commitments binding.
var (
	hGenSecp = numsPointSecp("swapd/dleq/nums-point/secp256k1/v1")
	hGenEd   = numsPointEd("swapd/dleq/nums-point/ed25519/v1")
)

func secpScalarBaseMul(s *btcec.ModNScalar) *btcec.PublicKey {
	var p btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(s, &p)
	p.ToAffine()
	return btcec.NewPublicKey(&p.X, &p.Y)
}

func secpScalarMul(s *btcec.ModNScalar, point *btcec.PublicKey) *btcec.PublicKey {
	var pJ, rJ btcec.JacobianPoint
	point.AsJacobian(&pJ)
	btcec.ScalarMultNonConst(s, &pJ, &rJ)
	rJ.ToAffine()
	return btcec.NewPublicKey(&rJ.X, &rJ.Y)
}

func secpAdd(a, b *btcec.PublicKey) *btcec.PublicKey {
	var aJ, bJ, sumJ btcec.JacobianPoint
	a.AsJacobian(&aJ)
	b.AsJacobian(&bJ)
	btcec.AddNonConst(&aJ, &bJ, &sumJ)
	sumJ.ToAffine()
	return btcec.NewPublicKey(&sumJ.X, &sumJ.Y)
}

func secpSub(a, b *btcec.PublicKey) *btcec.PublicKey {
	var negB btcec.ModNScalar
	negB.SetInt(1)
	negB.Negate()
	return secpAdd(a, secpScalarMul(&negB, b))
}

// secpScalarFromUint64 builds a small ModNScalar, used for bit values
// (0 or 1) and sub-challenges, which are always far smaller than the
// curve order and so never need modular reduction.
func secpScalarFromUint64(v uint64) *btcec.ModNScalar {
	var b [32]byte
	for i := 0; i < 8; i++ {
		b[31-i] = byte(v >> (8 * i))
	}
	var s btcec.ModNScalar
	s.SetBytes(&b)
	return &s
}

func secpScalarFromBytes(b []byte) *btcec.ModNScalar {
	var padded [32]byte
	copy(padded[32-len(b):], b)
	var s btcec.ModNScalar
	s.SetBytes(&padded)
	return &s
}

func edScalarFromUint64(v uint64) *edwards25519.Scalar {
	var wide [64]byte
	for i := 0; i < 8; i++ {
		wide[i] = byte(v >> (8 * i))
	}
	s, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		panic(err)
	}
	return s
}

func edScalarFromBytes(b []byte) *edwards25519.Scalar {
	var wide [64]byte
	copy(wide[:len(b)], b)
	s, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		panic(err)
	}
	return s
}

// secretScalar reduces the canonical cross-curve secret into the two
// curves' native scalar representations. Both share the same
// underlying numBits-bounded integer, per spec.md §9.
func secretScalarSecp(secret [32]byte) *btcec.ModNScalar {
	var s btcec.ModNScalar
	s.SetBytes(&secret)
	return &s
}

func secretScalarEd(secret [32]byte) *edwards25519.Scalar {
	var wide [64]byte
	// secret is stored big-endian (secp256k1's native convention, see
	// secp256k1.Keypair.Scalar); edwards25519 scalars are little-endian,
	// so reverse before reduction.
	for i := 0; i < 32; i++ {
		wide[i] = secret[31-i]
	}
	s, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		panic(err)
	}
	return s
}
