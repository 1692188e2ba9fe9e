package dleq

import (
	"crypto/rand"
	"io"
	"testing"

	"filippo.io/edwards25519"
	"github.com/stretchr/testify/require"
)

// randomSecret draws a secret strictly below 2^numBits by zeroing the
// top bits of a random 32-byte value.
func randomSecret(t *testing.T) [32]byte {
	t.Helper()
	var b [32]byte
	_, err := io.ReadFull(rand.Reader, b[:])
	require.NoError(t, err)
	b[0] &= 0x0f // numBits=252 leaves the top nibble of the first byte at zero
	return b
}

// TestProveVerifyRoundTrip exercises spec.md §8's invariant: for every
// pair (s, π) emitted, DLEQ.verify(π, s·G_secp, s·G_ed) = true.
func TestProveVerifyRoundTrip(t *testing.T) {
	secret := randomSecret(t)

	proof, err := Prove(secret)
	require.NoError(t, err)

	result, err := proof.Verify()
	require.NoError(t, err)

	expectedSecp := secpScalarBaseMul(secretScalarSecp(secret))
	require.True(t, result.Secp256k1Point.IsEqual(expectedSecp))

	expectedEd := edwards25519.NewIdentityPoint().ScalarBaseMult(secretScalarEd(secret))
	require.Equal(t, 1, result.Ed25519Point.Equal(expectedEd))
}

// TestMarshalUnmarshalRoundTrip exercises spec.md §8's serialize/
// deserialize identity property for the M1 wire payload carrying π(s).
func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	secret := randomSecret(t)

	proof, err := Prove(secret)
	require.NoError(t, err)

	encoded, err := proof.MarshalBinary()
	require.NoError(t, err)

	decoded, err := UnmarshalProof(encoded)
	require.NoError(t, err)

	result, err := decoded.Verify()
	require.NoError(t, err)

	expectedSecp := secpScalarBaseMul(secretScalarSecp(secret))
	require.True(t, result.Secp256k1Point.IsEqual(expectedSecp))
}

// TestVerifyRejectsTamperedBit ensures flipping a single bit's proof
// invalidates the whole transcript rather than silently succeeding.
func TestVerifyRejectsTamperedBit(t *testing.T) {
	secret := randomSecret(t)

	proof, err := Prove(secret)
	require.NoError(t, err)

	proof.bits[0].c0[0] ^= 0xff

	_, err = proof.Verify()
	require.Error(t, err)
}

// TestVerifyRejectsSwappedCommitment ensures a proof can't be replayed
// against a different bit's commitment.
func TestVerifyRejectsSwappedCommitment(t *testing.T) {
	secretA := randomSecret(t)
	secretB := randomSecret(t)

	proofA, err := Prove(secretA)
	require.NoError(t, err)
	proofB, err := Prove(secretB)
	require.NoError(t, err)

	proofA.commitSecp[1] = proofB.commitSecp[1]

	_, err = proofA.Verify()
	require.Error(t, err)
}

// TestDistinctSecretsProduceDistinctPoints guards against a degenerate
// construction that maps every secret to the same point pair.
func TestDistinctSecretsProduceDistinctPoints(t *testing.T) {
	secretA := randomSecret(t)
	secretB := randomSecret(t)

	proofA, err := Prove(secretA)
	require.NoError(t, err)
	resultA, err := proofA.Verify()
	require.NoError(t, err)

	proofB, err := Prove(secretB)
	require.NoError(t, err)
	resultB, err := proofB.Verify()
	require.NoError(t, err)

	if secretA != secretB {
		require.False(t, resultA.Secp256k1Point.IsEqual(resultB.Secp256k1Point))
	}
}
