package message

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/xmrswap/swapd/crypto/dleq"
	"github.com/xmrswap/swapd/crypto/monero"
	"github.com/xmrswap/swapd/crypto/secp256k1"
)

func randomSwapScalar(t *testing.T) [32]byte {
	t.Helper()
	var b [32]byte
	_, err := io.ReadFull(rand.Reader, b[:])
	require.NoError(t, err)
	b[0] &= 0x0f
	return b
}

// TestBobKeysRoundTrip exercises M0's wire round trip end to end,
// including DLEQ proof serialization.
func TestBobKeysRoundTrip(t *testing.T) {
	pub, err := secp256k1.Generate()
	require.NoError(t, err)

	secret := randomSwapScalar(t)
	proof, err := dleq.Prove(secret)
	require.NoError(t, err)
	result, err := proof.Verify()
	require.NoError(t, err)

	view, err := monero.NewPrivateViewKey()
	require.NoError(t, err)

	msg, err := NewBobKeys(pub.PublicKey(), result.Secp256k1Point, result.Ed25519Point, view, proof, "bc1qrefund")
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = WriteMessage(&buf, msg)
	require.NoError(t, err)

	decoded, err := ReadMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, TypeBobKeys, decoded.MsgType())

	bobKeys, ok := decoded.(*BobKeys)
	require.True(t, ok)

	gotProof, err := bobKeys.DLEQProof()
	require.NoError(t, err)
	gotResult, err := gotProof.Verify()
	require.NoError(t, err)
	require.True(t, gotResult.Secp256k1Point.IsEqual(result.Secp256k1Point))

	gotB, err := bobKeys.B()
	require.NoError(t, err)
	require.True(t, gotB.IsEqual(pub.PublicKey()))

	require.Equal(t, "bc1qrefund", bobKeys.RefundAddr)
}

// TestAliceSigsRoundTrip exercises M3's wire round trip.
func TestAliceSigsRoundTrip(t *testing.T) {
	alice, err := secp256k1.Generate()
	require.NoError(t, err)
	bob, err := secp256k1.Generate()
	require.NoError(t, err)

	digest := make([]byte, 32)
	_, err = io.ReadFull(rand.Reader, digest)
	require.NoError(t, err)

	encsig, err := secp256k1.EncSign(alice.PrivateKey(), bob.PublicKey(), digest)
	require.NoError(t, err)

	sig, err := secp256k1.Sign(alice.PrivateKey(), digest)
	require.NoError(t, err)

	msg := NewAliceSigs(encsig, sig)

	encoded, err := EncodeMessage(msg)
	require.NoError(t, err)

	decoded, err := DecodeMessage(encoded)
	require.NoError(t, err)
	require.Equal(t, TypeAliceSigs, decoded.MsgType())

	aliceSigs := decoded.(*AliceSigs)
	gotEncSig, err := aliceSigs.EncSig()
	require.NoError(t, err)
	require.True(t, secp256k1.VerifyEncSig(alice.PublicKey(), bob.PublicKey(), digest, gotEncSig))
}

// TestLockTxRoundTrip exercises M2's wire round trip over a raw
// transaction.
func TestLockTxRoundTrip(t *testing.T) {
	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(100_000, []byte{0x00, 0x14}))

	msg, err := NewLockTx(tx)
	require.NoError(t, err)

	encoded, err := EncodeMessage(msg)
	require.NoError(t, err)

	decoded, err := DecodeMessage(encoded)
	require.NoError(t, err)

	lockTx := decoded.(*LockTx)
	gotTx, err := lockTx.Tx()
	require.NoError(t, err)
	require.Equal(t, tx.TxOut[0].Value, gotTx.TxOut[0].Value)
}

// TestReadMessageRejectsUnknownType ensures a type tag from a future
// protocol version fails closed rather than panicking.
func TestReadMessageRejectsUnknownType(t *testing.T) {
	var buf bytes.Buffer
	header := []byte{0, 0, 0, 0, 0xff, 0xff}
	buf.Write(header)

	_, err := ReadMessage(&buf)
	require.Error(t, err)
}
