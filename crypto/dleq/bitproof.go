package dleq

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"filippo.io/edwards25519"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var bitChallengeTag = []byte("swapd/dleq/bit-challenge")

// proveBit constructs a 1-of-2 OR proof (Cramer-Damgard-Schoenmakers)
// that commitSecp/commitEd jointly open to bit on both curves at once,
// without revealing which branch is real.
func proveBit(bit int, rSecp *btcec.ModNScalar, rEd *edwards25519.Scalar,
	commitSecp *btcec.PublicKey, commitEd *edwards25519.Point, index int) (*bitProof, error) {

	y0Secp, y1Secp := branchStatementsSecp(commitSecp)
	y0Ed, y1Ed := branchStatementsEd(commitEd)

	bp := &bitProof{}

	fakeBranch := 1 - bit

	var fakeC [16]byte
	if _, err := io.ReadFull(rand.Reader, fakeC[:]); err != nil {
		return nil, err
	}
	zFakeSecp, err := randomSecpScalar()
	if err != nil {
		return nil, err
	}
	zFakeEd, err := randomEdScalar()
	if err != nil {
		return nil, err
	}

	var yFakeSecp *btcec.PublicKey
	var yFakeEd *edwards25519.Point
	if fakeBranch == 0 {
		yFakeSecp, yFakeEd = y0Secp, y0Ed
	} else {
		yFakeSecp, yFakeEd = y1Secp, y1Ed
	}

	fakeCScalarSecp := scalar16ToSecp(fakeC)
	rFakeSecp := secpSub(secpScalarMul(zFakeSecp, hGenSecp), secpScalarMul(fakeCScalarSecp, yFakeSecp))

	fakeCScalarEd := scalar16ToEd(fakeC)
	rFakeEd := edwards25519.NewIdentityPoint().Subtract(
		edwards25519.NewIdentityPoint().ScalarMult(zFakeEd, hGenEd),
		edwards25519.NewIdentityPoint().ScalarMult(fakeCScalarEd, yFakeEd),
	)

	kSecp, err := randomSecpScalar()
	if err != nil {
		return nil, err
	}
	kEd, err := randomEdScalar()
	if err != nil {
		return nil, err
	}
	rRealSecp := secpScalarMul(kSecp, hGenSecp)
	rRealEd := edwards25519.NewIdentityPoint().ScalarMult(kEd, hGenEd)

	var r0Secp, r1Secp *btcec.PublicKey
	var r0Ed, r1Ed *edwards25519.Point
	if bit == 0 {
		r0Secp, r1Secp = rRealSecp, rFakeSecp
		r0Ed, r1Ed = rRealEd, rFakeEd
	} else {
		r0Secp, r1Secp = rFakeSecp, rRealSecp
		r0Ed, r1Ed = rFakeEd, rRealEd
	}

	cTotal := bitTranscriptChallenge(index, commitSecp, commitEd, r0Secp, r0Ed, r1Secp, r1Ed)
	realC := xor16(cTotal, fakeC)

	realCScalarSecp := scalar16ToSecp(realC)
	var zRealSecp btcec.ModNScalar
	zRealSecp.Set(realCScalarSecp).Mul(rSecp).Add(kSecp)

	realCScalarEd := scalar16ToEd(realC)
	zRealEd := edwards25519.NewScalar().Multiply(realCScalarEd, rEd)
	zRealEd.Add(zRealEd, kEd)

	if bit == 0 {
		bp.c0, bp.c1 = realC, fakeC
		bp.z0Secp, bp.z1Secp = &zRealSecp, zFakeSecp
		bp.z0Ed, bp.z1Ed = zRealEd, zFakeEd
	} else {
		bp.c0, bp.c1 = fakeC, realC
		bp.z0Secp, bp.z1Secp = zFakeSecp, &zRealSecp
		bp.z0Ed, bp.z1Ed = zFakeEd, zRealEd
	}
	bp.r0Secp, bp.r1Secp = r0Secp, r1Secp
	bp.r0Ed, bp.r1Ed = r0Ed, r1Ed

	return bp, nil
}

func verifyBit(bp *bitProof, commitSecp *btcec.PublicKey, commitEd *edwards25519.Point, index int) error {
	cTotal := bitTranscriptChallenge(index, commitSecp, commitEd, bp.r0Secp, bp.r0Ed, bp.r1Secp, bp.r1Ed)
	if xor16(bp.c0, bp.c1) != cTotal {
		return fmt.Errorf("challenge split does not match transcript")
	}

	y0Secp, y1Secp := branchStatementsSecp(commitSecp)
	y0Ed, y1Ed := branchStatementsEd(commitEd)

	c0Secp := scalar16ToSecp(bp.c0)
	lhs0Secp := secpScalarMul(bp.z0Secp, hGenSecp)
	rhs0Secp := secpAdd(bp.r0Secp, secpScalarMul(c0Secp, y0Secp))
	if !lhs0Secp.IsEqual(rhs0Secp) {
		return fmt.Errorf("branch-0 secp256k1 equation failed")
	}

	c1Secp := scalar16ToSecp(bp.c1)
	lhs1Secp := secpScalarMul(bp.z1Secp, hGenSecp)
	rhs1Secp := secpAdd(bp.r1Secp, secpScalarMul(c1Secp, y1Secp))
	if !lhs1Secp.IsEqual(rhs1Secp) {
		return fmt.Errorf("branch-1 secp256k1 equation failed")
	}

	c0Ed := scalar16ToEd(bp.c0)
	lhs0Ed := edwards25519.NewIdentityPoint().ScalarMult(bp.z0Ed, hGenEd)
	rhs0Ed := edwards25519.NewIdentityPoint().Add(bp.r0Ed, edwards25519.NewIdentityPoint().ScalarMult(c0Ed, y0Ed))
	if lhs0Ed.Equal(rhs0Ed) != 1 {
		return fmt.Errorf("branch-0 ed25519 equation failed")
	}

	c1Ed := scalar16ToEd(bp.c1)
	lhs1Ed := edwards25519.NewIdentityPoint().ScalarMult(bp.z1Ed, hGenEd)
	rhs1Ed := edwards25519.NewIdentityPoint().Add(bp.r1Ed, edwards25519.NewIdentityPoint().ScalarMult(c1Ed, y1Ed))
	if lhs1Ed.Equal(rhs1Ed) != 1 {
		return fmt.Errorf("branch-1 ed25519 equation failed")
	}

	return nil
}

func branchStatementsSecp(commit *btcec.PublicKey) (y0, y1 *btcec.PublicKey) {
	return commit, secpSub(commit, basePointSecp())
}

func branchStatementsEd(commit *edwards25519.Point) (y0, y1 *edwards25519.Point) {
	y1 = edwards25519.NewIdentityPoint().Subtract(commit, edwards25519.NewGeneratorPoint())
	return commit, y1
}

func bitTranscriptChallenge(index int, commitSecp *btcec.PublicKey, commitEd *edwards25519.Point,
	r0Secp *btcec.PublicKey, r0Ed *edwards25519.Point, r1Secp *btcec.PublicKey, r1Ed *edwards25519.Point) [16]byte {

	var idxBytes [4]byte
	binary.BigEndian.PutUint32(idxBytes[:], uint32(index))

	h := chainhash.TaggedHash(bitChallengeTag,
		idxBytes[:],
		commitSecp.SerializeCompressed(),
		commitEd.Bytes(),
		r0Secp.SerializeCompressed(),
		r0Ed.Bytes(),
		r1Secp.SerializeCompressed(),
		r1Ed.Bytes(),
	)

	var out [16]byte
	copy(out[:], h[:16])
	return out
}

func xor16(a, b [16]byte) [16]byte {
	var out [16]byte
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func scalar16ToSecp(b [16]byte) *btcec.ModNScalar {
	var padded [32]byte
	copy(padded[16:], b[:])
	var s btcec.ModNScalar
	s.SetBytes(&padded)
	return &s
}

func scalar16ToEd(b [16]byte) *edwards25519.Scalar {
	var wide [64]byte
	copy(wide[:16], b[:])
	s, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		panic(err)
	}
	return s
}
