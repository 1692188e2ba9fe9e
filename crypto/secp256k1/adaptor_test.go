package secp256k1

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func digestFor(msg string) []byte {
	d := sha256.Sum256([]byte(msg))
	return d[:]
}

// TestEncSignDecryptRoundTrip exercises spec.md §8's round-trip property:
// decsign(s_b, encsign(a, S_b, d)) = sign(a, d).
func TestEncSignDecryptRoundTrip(t *testing.T) {
	alice, err := Generate()
	require.NoError(t, err)

	bob, err := Generate()
	require.NoError(t, err)

	digest := digestFor("tx_refund digest")

	encsig, err := EncSign(alice.PrivateKey(), bob.PublicKey(), digest)
	require.NoError(t, err)
	require.True(t, VerifyEncSig(alice.PublicKey(), bob.PublicKey(), digest, encsig))

	decrypted := DecSign(&bob.PrivateKey().Key, encsig)
	require.True(t, Verify(alice.PublicKey(), digest, decrypted))
}

// TestRecoverRoundTrip exercises spec.md §8's recovery property:
// recover(S_b, sign(a, d), encsign(a, S_b, d)) = s_b.
func TestRecoverRoundTrip(t *testing.T) {
	alice, err := Generate()
	require.NoError(t, err)

	bob, err := Generate()
	require.NoError(t, err)

	digest := digestFor("tx_refund digest")

	encsig, err := EncSign(alice.PrivateKey(), bob.PublicKey(), digest)
	require.NoError(t, err)

	plain := DecSign(&bob.PrivateKey().Key, encsig)

	recovered, err := Recover(bob.PublicKey(), plain, encsig)
	require.NoError(t, err)
	require.Equal(t, bob.PrivateKey().Key.Bytes(), recovered.Bytes())
}

// TestVerifyEncSigRejectsTamperedDigest ensures a signature encrypted
// for one digest does not verify against another, the failure mode
// spec.md §4.1 classifies as CryptoInvalid.
func TestVerifyEncSigRejectsTamperedDigest(t *testing.T) {
	alice, err := Generate()
	require.NoError(t, err)
	bob, err := Generate()
	require.NoError(t, err)

	encsig, err := EncSign(alice.PrivateKey(), bob.PublicKey(), digestFor("real"))
	require.NoError(t, err)

	require.False(t, VerifyEncSig(alice.PublicKey(), bob.PublicKey(), digestFor("tampered"), encsig))
}

// TestRecoverRejectsWrongEncSig ensures Recover fails closed when the
// plain signature doesn't correspond to the given encrypted signature.
func TestRecoverRejectsWrongEncSig(t *testing.T) {
	alice, err := Generate()
	require.NoError(t, err)
	bob, err := Generate()
	require.NoError(t, err)
	mallory, err := Generate()
	require.NoError(t, err)

	digest := digestFor("tx_refund digest")
	encsig, err := EncSign(alice.PrivateKey(), bob.PublicKey(), digest)
	require.NoError(t, err)

	unrelated, err := Sign(mallory.PrivateKey(), digest)
	require.NoError(t, err)

	_, err = Recover(bob.PublicKey(), unrelated, encsig)
	require.Error(t, err)
}

// TestSignVerify exercises the plain-signature path used for Alice's
// own half of a 2-of-2 spend.
func TestSignVerify(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	digest := digestFor("tx_redeem digest")
	sig, err := Sign(kp.PrivateKey(), digest)
	require.NoError(t, err)

	require.True(t, Verify(kp.PublicKey(), digest, sig))
	require.False(t, Verify(kp.PublicKey(), digestFor("other"), sig))
}
