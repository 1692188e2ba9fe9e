package secp256k1

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// challengeTag domain-separates the Schnorr challenge hash used by the
// adaptor-signature scheme from any other tagged hash in the protocol.
var challengeTag = []byte("swapd/adaptor-signature/challenge")

// EncryptedSignature is a Schnorr-style adaptor signature: a signature
// on a digest under the signer's key, encrypted under an adaptor point
// Y, per spec.md §4.1. Publishing the plain Signature this decrypts to
// reveals the discrete log of Y (see Recover).
type EncryptedSignature struct {
	// RPrime is the signer's plain nonce commitment k*G, prior to
	// folding in the adaptor point.
	RPrime *btcec.PublicKey

	// S is the encrypted response scalar s' = k + c*a (mod n), where
	// c is the Schnorr challenge computed over the *adapted* nonce
	// R = R' + Y.
	S *btcec.ModNScalar
}

// Signature is a plain Schnorr signature: the form that ends up
// published on chain, either directly signed or produced by DecSign.
type Signature struct {
	R *btcec.PublicKey
	S *btcec.ModNScalar
}

func scalarBaseMul(s *btcec.ModNScalar) *btcec.PublicKey {
	var p btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(s, &p)
	p.ToAffine()
	return btcec.NewPublicKey(&p.X, &p.Y)
}

func scalarMul(s *btcec.ModNScalar, point *btcec.PublicKey) *btcec.PublicKey {
	var pJ, rJ btcec.JacobianPoint
	point.AsJacobian(&pJ)
	btcec.ScalarMultNonConst(s, &pJ, &rJ)
	rJ.ToAffine()
	return btcec.NewPublicKey(&rJ.X, &rJ.Y)
}

func pointAdd(a, b *btcec.PublicKey) *btcec.PublicKey {
	var aJ, bJ, sumJ btcec.JacobianPoint
	a.AsJacobian(&aJ)
	b.AsJacobian(&bJ)
	btcec.AddNonConst(&aJ, &bJ, &sumJ)
	sumJ.ToAffine()
	return btcec.NewPublicKey(&sumJ.X, &sumJ.Y)
}

func challengeScalar(adaptedR, pub *btcec.PublicKey, digest []byte) *btcec.ModNScalar {
	h := chainhash.TaggedHash(challengeTag,
		adaptedR.SerializeCompressed(),
		pub.SerializeCompressed(),
		digest,
	)

	var c btcec.ModNScalar
	c.SetBytes((*[32]byte)(h))
	return &c
}

// Sign produces a plain Schnorr signature over digest under priv, using
// the same nonce/challenge construction EncSign uses with Y set to the
// point at infinity — i.e. Sign(a, d) and DecSign(s_b, EncSign(a, S_b,
// d)) are required by spec.md §8 to agree, so both paths share this
// challenge function.
func Sign(priv *btcec.PrivateKey, digest []byte) (*Signature, error) {
	k, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("unable to draw nonce: %w", err)
	}

	r := scalarBaseMul(&k.Key)
	c := challengeScalar(r, priv.PubKey(), digest)

	var ca btcec.ModNScalar
	ca.Set(c).Mul(&priv.Key)

	var s btcec.ModNScalar
	s.Set(&k.Key).Add(&ca)

	return &Signature{R: r, S: &s}, nil
}

// Verify checks a plain Schnorr signature against pub and digest.
func Verify(pub *btcec.PublicKey, digest []byte, sig *Signature) bool {
	c := challengeScalar(sig.R, pub, digest)

	lhs := scalarBaseMul(sig.S)
	rhs := pointAdd(sig.R, scalarMul(c, pub))
	return lhs.IsEqual(rhs)
}

// EncSign produces an encrypted signature on digest under priv's key,
// encrypted under the adaptor point y. Only the holder of the discrete
// log of y can decrypt it into a valid Signature (DecSign); publishing
// that Signature reveals the discrete log (Recover).
func EncSign(priv *btcec.PrivateKey, y *btcec.PublicKey, digest []byte) (*EncryptedSignature, error) {
	k, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("unable to draw nonce: %w", err)
	}

	rPrime := scalarBaseMul(&k.Key)
	adaptedR := pointAdd(rPrime, y)
	c := challengeScalar(adaptedR, priv.PubKey(), digest)

	var ca btcec.ModNScalar
	ca.Set(c).Mul(&priv.Key)

	var sPrime btcec.ModNScalar
	sPrime.Set(&k.Key).Add(&ca)

	return &EncryptedSignature{RPrime: rPrime, S: &sPrime}, nil
}

// VerifyEncSig validates an encrypted signature without decrypting it,
// per spec.md §4.1's verify_encsig.
func VerifyEncSig(pub, y *btcec.PublicKey, digest []byte, sig *EncryptedSignature) bool {
	adaptedR := pointAdd(sig.RPrime, y)
	c := challengeScalar(adaptedR, pub, digest)

	lhs := scalarBaseMul(sig.S)
	rhs := pointAdd(sig.RPrime, scalarMul(c, pub))
	return lhs.IsEqual(rhs)
}

// DecSign decrypts an encrypted signature with the adaptor scalar y
// such that y*G = Y, producing a plain Signature that verifies under
// the signer's public key. Per spec.md §8, DecSign(s_b,
// EncSign(a, S_b, d)) must equal Sign(a, d).
func DecSign(y *btcec.ModNScalar, sig *EncryptedSignature) *Signature {
	var s btcec.ModNScalar
	s.Set(sig.S).Add(y)

	yPoint := scalarBaseMul(y)
	r := pointAdd(sig.RPrime, yPoint)

	return &Signature{R: r, S: &s}
}

// Recover extracts the adaptor scalar y from a plain signature that was
// published on chain, given the encrypted signature it was decrypted
// from and the adaptor point y*G. This is the mechanism by which
// Bob publishing a decrypted tx_refund lets Alice recover `s_b` and
// sweep the Monero lock (spec.md §3, §4.4 step 6).
func Recover(y *btcec.PublicKey, sig *Signature, encsig *EncryptedSignature) (*btcec.ModNScalar, error) {
	var negSPrime btcec.ModNScalar
	negSPrime.Set(encsig.S).Negate()

	var recovered btcec.ModNScalar
	recovered.Set(sig.S).Add(&negSPrime)

	if !scalarBaseMul(&recovered).IsEqual(y) {
		return nil, fmt.Errorf("recovered scalar does not match adaptor point")
	}

	return &recovered, nil
}
